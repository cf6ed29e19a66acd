package gamification

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/nursehub/backend/internal/models"
	"github.com/nursehub/backend/internal/progress"
)

type Handler struct {
	service  *Service
	progress *progress.Service
}

func NewHandler(service *Service, progressSvc *progress.Service) *Handler {
	return &Handler{service: service, progress: progressSvc}
}

func getUserID(r *http.Request) (int64, bool) {
	uid, ok := r.Context().Value("user_id").(int64)
	return uid, ok
}

// ── Completions ─────────────────────────────────────────

type completeRequest struct {
	SectionID string   `json:"section_id"`
	Score     *float64 `json:"score,omitempty"`
}

func (h *Handler) CompleteSection(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.SectionID == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "section_id is required"})
		return
	}
	if req.Score != nil && (*req.Score < 0 || *req.Score > 100) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "score must be between 0 and 100"})
		return
	}

	result, err := h.service.ProcessCompletion(r.Context(), models.CompletionEvent{
		UserID:    userID,
		SectionID: req.SectionID,
		Score:     req.Score,
	})
	if err != nil {
		if errors.Is(err, models.ErrUnknownSection) {
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Unknown section"})
			return
		}
		if errors.Is(err, models.ErrUnknownUser) {
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Unknown user"})
			return
		}
		if errors.Is(err, models.ErrConcurrentUpdate) {
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "Concurrent update, retry"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to record completion"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ── Progress reads ──────────────────────────────────────

func (h *Handler) GetSessionProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	sessionID := mux.Vars(r)["id"]
	p, err := h.progress.GetSessionProgress(r.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownSection) {
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Unknown session"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get progress"})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ListProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	list, err := h.progress.ListForUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list progress"})
		return
	}
	if list == nil {
		list = []models.SessionProgress{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"progress": list})
}

// ── Gamification reads ──────────────────────────────────

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	summary, err := h.service.GetUserSummary(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get summary"})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetPointsHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	limit := intQueryParam(r.URL.Query(), "limit", 50)
	offset := intQueryParam(r.URL.Query(), "offset", 0)

	awards, err := h.service.GetPointsHistory(r.Context(), userID, limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get points history"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"awards": awards})
}

// ListDefinitions returns the badge and achievement catalog. Hidden
// achievements the user has not earned are omitted.
func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	summary, err := h.service.GetUserSummary(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get definitions"})
		return
	}
	earned := make(map[string]bool, len(summary.Achievements))
	for _, a := range summary.Achievements {
		earned[a.AchievementSlug] = true
	}

	type badgeView struct {
		Slug         string             `json:"slug"`
		Name         string             `json:"name"`
		Description  string             `json:"description"`
		Rarity       models.BadgeRarity `json:"rarity"`
		PointsReward int64              `json:"points_reward"`
	}
	type achievementView struct {
		Slug         string                       `json:"slug"`
		Name         string                       `json:"name"`
		Description  string                       `json:"description"`
		Difficulty   models.AchievementDifficulty `json:"difficulty"`
		PointsReward int64                        `json:"points_reward"`
	}

	badges := make([]badgeView, 0, len(Badges))
	for _, b := range Badges {
		badges = append(badges, badgeView{b.Slug, b.Name, b.Description, b.Rarity, b.PointsReward})
	}
	achievements := make([]achievementView, 0, len(Achievements))
	for _, a := range Achievements {
		if a.Hidden && !earned[a.Slug] {
			continue
		}
		achievements = append(achievements, achievementView{a.Slug, a.Name, a.Description, a.Difficulty, a.PointsReward})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"badges":       badges,
		"achievements": achievements,
	})
}

// ── Leaderboards ────────────────────────────────────────

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := getUserID(r); !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	slug := mux.Vars(r)["slug"]
	page := intQueryParam(r.URL.Query(), "page", 1)
	pageSize := intQueryParam(r.URL.Query(), "page_size", defaultLeaderboardPageSize)

	resp, err := h.service.GetLeaderboard(r.Context(), slug, page, pageSize)
	if err != nil {
		if errors.Is(err, models.ErrUnknownLeaderboard) {
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Unknown leaderboard"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get leaderboard"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ── Helpers ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
