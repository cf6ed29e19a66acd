package gamification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nursehub/backend/internal/models"
)

type streakKey struct {
	userID     int64
	streakType string
}

type unlockKey struct {
	userID int64
	slug   string
}

type awardKey struct {
	userID     int64
	pointsType string
	sourceID   string
}

// MemoryStore is an in-memory Store with the same atomicity and
// create-if-absent semantics as the Postgres one. Used in tests and
// useful for local runs without a database.
type MemoryStore struct {
	mu           sync.RWMutex
	awards       []models.PointAward
	awarded      map[awardKey]bool
	totals       map[int64]models.UserPointsTotal
	streaks      map[streakKey]models.StreakState
	badges       map[unlockKey]models.UserBadge
	achievements map[unlockKey]models.UserAchievement
	names        map[int64]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		awarded:      make(map[awardKey]bool),
		totals:       make(map[int64]models.UserPointsTotal),
		streaks:      make(map[streakKey]models.StreakState),
		badges:       make(map[unlockKey]models.UserBadge),
		achievements: make(map[unlockKey]models.UserAchievement),
		names:        make(map[int64]string),
	}
}

// SetDisplayName seeds a leaderboard display name.
func (s *MemoryStore) SetDisplayName(userID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[userID] = name
}

func (s *MemoryStore) GetTotals(_ context.Context, userID int64) (models.UserPointsTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.totals[userID]; ok {
		return t, nil
	}
	return freshTotals(userID), nil
}

func (s *MemoryStore) ApplyAward(_ context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.totals[updated.UserID]
	switch {
	case !exists && expectedVersion != 0:
		return models.ErrConcurrentUpdate
	case exists && current.Version != expectedVersion:
		return models.ErrConcurrentUpdate
	}

	updated.Version = expectedVersion + 1
	s.totals[updated.UserID] = updated
	s.awards = append(s.awards, award)
	return nil
}

func (s *MemoryStore) ApplyAwardOnce(_ context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := awardKey{award.UserID, award.PointsType, award.SourceID}
	if award.SourceID != "" && s.awarded[k] {
		return false, nil
	}

	current, exists := s.totals[updated.UserID]
	switch {
	case !exists && expectedVersion != 0:
		return false, models.ErrConcurrentUpdate
	case exists && current.Version != expectedVersion:
		return false, models.ErrConcurrentUpdate
	}

	updated.Version = expectedVersion + 1
	s.totals[updated.UserID] = updated
	s.awards = append(s.awards, award)
	if award.SourceID != "" {
		s.awarded[k] = true
	}
	return true, nil
}

func (s *MemoryStore) ListAwards(_ context.Context, userID int64, limit, offset int) ([]models.PointAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var mine []models.PointAward
	for _, a := range s.awards {
		if a.UserID == userID {
			mine = append(mine, a)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if !mine[i].CreatedAt.Equal(mine[j].CreatedAt) {
			return mine[i].CreatedAt.After(mine[j].CreatedAt)
		}
		return mine[i].ID < mine[j].ID
	})

	if offset >= len(mine) {
		return nil, nil
	}
	mine = mine[offset:]
	if limit < len(mine) {
		mine = mine[:limit]
	}
	return mine, nil
}

func (s *MemoryStore) SumAwards(_ context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, a := range s.awards {
		if a.UserID == userID {
			sum += a.Amount
		}
	}
	return sum, nil
}

func (s *MemoryStore) PointsByUserBetween(_ context.Context, start, end time.Time) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int64)
	for _, a := range s.awards {
		if !a.CreatedAt.Before(start) && a.CreatedAt.Before(end) {
			out[a.UserID] += a.Amount
		}
	}
	return out, nil
}

func (s *MemoryStore) AllTotals(_ context.Context) ([]models.UserPointsTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.UserPointsTotal, 0, len(s.totals))
	for _, t := range s.totals {
		out = append(out, t)
	}
	return out, nil
}

func (s *MemoryStore) ReplaceTotals(_ context.Context, t models.UserPointsTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Version = s.totals[t.UserID].Version + 1
	s.totals[t.UserID] = t
	return nil
}

func (s *MemoryStore) GetStreak(_ context.Context, userID int64, streakType string) (models.StreakState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.streaks[streakKey{userID, streakType}]; ok {
		return st, nil
	}
	return models.StreakState{UserID: userID, StreakType: streakType}, nil
}

func (s *MemoryStore) ListStreaks(_ context.Context, userID int64) ([]models.StreakState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.StreakState
	for k, st := range s.streaks {
		if k.userID == userID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreakType < out[j].StreakType })
	return out, nil
}

func (s *MemoryStore) UpsertStreak(_ context.Context, st models.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[streakKey{st.UserID, st.StreakType}] = st
	return nil
}

func (s *MemoryStore) StreaksByUser(_ context.Context, streakType string) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int64)
	for k, st := range s.streaks {
		if k.streakType == streakType {
			out[k.userID] = int64(st.CurrentStreak)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListBadges(_ context.Context, userID int64) ([]models.UserBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UserBadge
	for k, b := range s.badges {
		if k.userID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		return out[i].BadgeSlug < out[j].BadgeSlug
	})
	return out, nil
}

func (s *MemoryStore) InsertBadge(_ context.Context, b models.UserBadge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := unlockKey{b.UserID, b.BadgeSlug}
	if _, ok := s.badges[k]; ok {
		return false, nil
	}
	s.badges[k] = b
	return true, nil
}

func (s *MemoryStore) ListAchievements(_ context.Context, userID int64) ([]models.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UserAchievement
	for k, a := range s.achievements {
		if k.userID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].AchievementSlug < out[j].AchievementSlug
	})
	return out, nil
}

func (s *MemoryStore) InsertAchievement(_ context.Context, a models.UserAchievement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := unlockKey{a.UserID, a.AchievementSlug}
	if _, ok := s.achievements[k]; ok {
		return false, nil
	}
	s.achievements[k] = a
	return true, nil
}

func (s *MemoryStore) DisplayNames(_ context.Context, userIDs []int64) (map[int64]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := s.names[id]; ok {
			out[id] = models.User{Name: name}.DisplayName()
		}
	}
	return out, nil
}
