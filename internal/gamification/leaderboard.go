package gamification

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nursehub/backend/internal/models"
)

// LeaderboardKind selects the scoring source for a board.
type LeaderboardKind string

const (
	// KindPoints scores by points: the running total for all-time boards,
	// the windowed ledger sum for periodic ones.
	KindPoints LeaderboardKind = "points"
	// KindStreak scores by current streak length of StreakType.
	KindStreak LeaderboardKind = "streak"
)

// LeaderboardDef is one ranked view. The set is fixed at build time, like
// badge and achievement definitions.
type LeaderboardDef struct {
	Slug       string
	Name       string
	Kind       LeaderboardKind
	Period     models.LeaderboardPeriod
	StreakType string
}

var Leaderboards = []LeaderboardDef{
	{Slug: "overall-points", Name: "Overall Points", Kind: KindPoints, Period: models.PeriodAllTime},
	{Slug: "daily-points", Name: "Today's Points", Kind: KindPoints, Period: models.PeriodDaily},
	{Slug: "weekly-points", Name: "This Week's Points", Kind: KindPoints, Period: models.PeriodWeekly},
	{Slug: "monthly-points", Name: "This Month's Points", Kind: KindPoints, Period: models.PeriodMonthly},
	{Slug: "daily-study-streak", Name: "Study Streaks", Kind: KindStreak, Period: models.PeriodAllTime, StreakType: StreakDailyStudy},
}

// LeaderboardBySlug looks up a board definition.
func LeaderboardBySlug(slug string) (LeaderboardDef, bool) {
	for _, def := range Leaderboards {
		if def.Slug == slug {
			return def, true
		}
	}
	return LeaderboardDef{}, false
}

// periodWindow returns the [start, end) UTC window containing now for a
// bounded period. Weeks start Monday. bounded is false for all-time.
func periodWindow(period models.LeaderboardPeriod, now time.Time) (start, end time.Time, bounded bool) {
	day := dayOf(now)
	switch period {
	case models.PeriodDaily:
		return day, day.AddDate(0, 0, 1), true
	case models.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		start = day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), true
	case models.PeriodMonthly:
		start = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// rankEntries orders scores into a dense-ranked board: score descending,
// user id ascending on ties so ordering is deterministic. Tied scores
// share a position; the next distinct score takes position + 1. Users
// with no positive score are omitted.
func rankEntries(scores map[int64]int64) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(scores))
	for userID, score := range scores {
		if score <= 0 {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{UserID: userID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})

	position := 0
	var prevScore int64
	for i := range entries {
		if i == 0 || entries[i].Score != prevScore {
			position++
		}
		entries[i].Position = position
		prevScore = entries[i].Score
	}
	return entries
}

// leaderboardCache holds prebuilt boards. Snapshots are swapped
// wholesale so readers never see a half-built board.
type leaderboardCache struct {
	mu      sync.RWMutex
	entries map[string][]models.LeaderboardEntry
}

func (c *leaderboardCache) get(slug string) ([]models.LeaderboardEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.entries[slug]
	return entries, ok
}

func (c *leaderboardCache) put(slug string, entries []models.LeaderboardEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string][]models.LeaderboardEntry)
	}
	c.entries[slug] = entries
}

// buildBoard computes a board's full entry list from the store.
func (s *Service) buildBoard(ctx context.Context, def LeaderboardDef, now time.Time) ([]models.LeaderboardEntry, error) {
	var scores map[int64]int64

	switch def.Kind {
	case KindStreak:
		byUser, err := s.store.StreaksByUser(ctx, def.StreakType)
		if err != nil {
			return nil, err
		}
		scores = byUser
	case KindPoints:
		if start, end, bounded := periodWindow(def.Period, now); bounded {
			byUser, err := s.store.PointsByUserBetween(ctx, start, end)
			if err != nil {
				return nil, err
			}
			scores = byUser
		} else {
			totals, err := s.store.AllTotals(ctx)
			if err != nil {
				return nil, err
			}
			scores = make(map[int64]int64, len(totals))
			for _, t := range totals {
				scores[t.UserID] = t.TotalPoints
			}
		}
	default:
		return nil, fmt.Errorf("unknown leaderboard kind %q", def.Kind)
	}

	entries := rankEntries(scores)

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	names, err := s.store.DisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].DisplayName = names[entries[i].UserID]
	}
	return entries, nil
}

// RefreshLeaderboards rebuilds every board and swaps the cache.
func (s *Service) RefreshLeaderboards(ctx context.Context) error {
	now := time.Now()
	for _, def := range Leaderboards {
		entries, err := s.buildBoard(ctx, def, now)
		if err != nil {
			return fmt.Errorf("build %s: %w", def.Slug, err)
		}
		s.boards.put(def.Slug, entries)
	}
	return nil
}

// StartLeaderboardWorker refreshes the boards on an interval until the
// context is cancelled. One immediate refresh so the cache is warm.
func (s *Service) StartLeaderboardWorker(ctx context.Context, interval time.Duration) {
	go func() {
		if err := s.RefreshLeaderboards(ctx); err != nil {
			log.Printf("[gamification] initial leaderboard refresh: %v", err)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RefreshLeaderboards(ctx); err != nil {
					log.Printf("[gamification] leaderboard refresh: %v", err)
				}
			}
		}
	}()
}

// GetLeaderboard returns one page of a board. The all-time points board
// is computed live from totals; periodic and streak boards come from the
// cache, built on demand if the worker has not run yet.
func (s *Service) GetLeaderboard(ctx context.Context, slug string, page, pageSize int) (*models.LeaderboardResponse, error) {
	def, ok := LeaderboardBySlug(slug)
	if !ok {
		return nil, fmt.Errorf("%w: leaderboard %q", models.ErrUnknownLeaderboard, slug)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxLeaderboardPageSize {
		pageSize = defaultLeaderboardPageSize
	}

	now := time.Now()
	var entries []models.LeaderboardEntry
	if def.Kind == KindPoints && def.Period == models.PeriodAllTime {
		built, err := s.buildBoard(ctx, def, now)
		if err != nil {
			return nil, err
		}
		entries = built
	} else {
		cached, ok := s.boards.get(def.Slug)
		if !ok {
			built, err := s.buildBoard(ctx, def, now)
			if err != nil {
				return nil, err
			}
			s.boards.put(def.Slug, built)
			cached = built
		}
		entries = cached
	}

	resp := &models.LeaderboardResponse{
		Slug:     def.Slug,
		Period:   def.Period,
		Page:     page,
		PageSize: pageSize,
	}
	if start, end, bounded := periodWindow(def.Period, now); bounded {
		resp.PeriodStart = &start
		resp.PeriodEnd = &end
	}

	lo := (page - 1) * pageSize
	if lo < len(entries) {
		hi := lo + pageSize
		if hi > len(entries) {
			hi = len(entries)
		}
		resp.Entries = entries[lo:hi]
	} else {
		resp.Entries = []models.LeaderboardEntry{}
	}
	return resp, nil
}

const (
	defaultLeaderboardPageSize = 25
	maxLeaderboardPageSize     = 100
)
