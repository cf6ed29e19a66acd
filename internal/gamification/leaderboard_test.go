package gamification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nursehub/backend/internal/models"
)

func TestRankEntriesDenseRank(t *testing.T) {
	entries := rankEntries(map[int64]int64{
		1: 50,
		2: 100,
		3: 100,
		4: 10,
		5: 0,
	})

	want := []models.LeaderboardEntry{
		{Position: 1, UserID: 2, Score: 100},
		{Position: 1, UserID: 3, Score: 100},
		{Position: 2, UserID: 1, Score: 50},
		{Position: 3, UserID: 4, Score: 10},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d (zero scores omitted)", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestPeriodWindow(t *testing.T) {
	// Wednesday mid-month.
	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

	start, end, bounded := periodWindow(models.PeriodDaily, now)
	if !bounded || !start.Equal(day(2026, 3, 4)) || !end.Equal(day(2026, 3, 5)) {
		t.Errorf("daily window = [%v, %v) bounded=%v", start, end, bounded)
	}

	start, end, _ = periodWindow(models.PeriodWeekly, now)
	if !start.Equal(day(2026, 3, 2)) || !end.Equal(day(2026, 3, 9)) {
		t.Errorf("weekly window = [%v, %v), want Monday-anchored [2026-03-02, 2026-03-09)", start, end)
	}

	// A Sunday belongs to the week starting the previous Monday.
	start, _, _ = periodWindow(models.PeriodWeekly, day(2026, 3, 8))
	if !start.Equal(day(2026, 3, 2)) {
		t.Errorf("Sunday week start = %v, want 2026-03-02", start)
	}

	start, end, _ = periodWindow(models.PeriodMonthly, now)
	if !start.Equal(day(2026, 3, 1)) || !end.Equal(day(2026, 4, 1)) {
		t.Errorf("monthly window = [%v, %v)", start, end)
	}

	if _, _, bounded := periodWindow(models.PeriodAllTime, now); bounded {
		t.Error("all-time should be unbounded")
	}
}

func TestGetLeaderboardOverallPoints(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	now := time.Now()

	store.SetDisplayName(1, "Maria Gonzalez")
	store.SetDisplayName(2, "James Okafor")

	svc.AwardPoints(ctx, 1, 120, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, now)
	svc.AwardPoints(ctx, 2, 300, PointsTypeSectionCompleted, "s1-b", SourceTypeSection, now)

	resp, err := svc.GetLeaderboard(ctx, "overall-points", 1, 25)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Period != models.PeriodAllTime {
		t.Errorf("period = %s, want all_time", resp.Period)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(resp.Entries))
	}
	top := resp.Entries[0]
	if top.UserID != 2 || top.Score != 300 || top.Position != 1 {
		t.Errorf("top entry = %+v, want user 2 at position 1 with 300", top)
	}
	if top.DisplayName != "James O." {
		t.Errorf("display name = %q, want %q", top.DisplayName, "James O.")
	}
}

func TestGetLeaderboardStreakFromCache(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	store.UpsertStreak(ctx, models.StreakState{UserID: 1, StreakType: StreakDailyStudy, CurrentStreak: 5})
	store.UpsertStreak(ctx, models.StreakState{UserID: 2, StreakType: StreakDailyStudy, CurrentStreak: 9})

	if err := svc.RefreshLeaderboards(ctx); err != nil {
		t.Fatal(err)
	}

	resp, err := svc.GetLeaderboard(ctx, "daily-study-streak", 1, 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].UserID != 2 || resp.Entries[0].Score != 9 {
		t.Errorf("entries = %+v, want user 2 first with score 9", resp.Entries)
	}
}

func TestGetLeaderboardWeeklyExcludesOldAwards(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	svc.AwardPoints(ctx, 1, 40, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, time.Now())
	svc.AwardPoints(ctx, 2, 500, PointsTypeSectionCompleted, "s1-b", SourceTypeSection, time.Now().AddDate(0, 0, -30))

	resp, err := svc.GetLeaderboard(ctx, "weekly-points", 1, 25)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].UserID != 1 {
		t.Errorf("entries = %+v, want only user 1's current-week award", resp.Entries)
	}
	if resp.PeriodStart == nil || resp.PeriodEnd == nil {
		t.Error("weekly response should carry the period window")
	}
}

func TestGetLeaderboardPagination(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := time.Now()

	for userID := int64(1); userID <= 5; userID++ {
		svc.AwardPoints(ctx, userID, userID*10, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, now)
	}

	resp, err := svc.GetLeaderboard(ctx, "overall-points", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("page 2 has %d entries, want 2", len(resp.Entries))
	}
	if resp.Entries[0].UserID != 3 || resp.Entries[1].UserID != 2 {
		t.Errorf("page 2 = %+v, want users 3 then 2", resp.Entries)
	}

	// A page past the end is empty, not an error.
	resp, err = svc.GetLeaderboard(ctx, "overall-points", 9, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 0 {
		t.Errorf("out-of-range page = %+v, want empty", resp.Entries)
	}
}

func TestGetLeaderboardUnknownSlug(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.GetLeaderboard(context.Background(), "no-such-board", 1, 25)
	if !errors.Is(err, models.ErrUnknownLeaderboard) {
		t.Errorf("err = %v, want ErrUnknownLeaderboard", err)
	}
}
