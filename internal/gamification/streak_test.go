package gamification

import (
	"testing"
	"time"

	"github.com/nursehub/backend/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAdvanceStreakSequence(t *testing.T) {
	st := models.StreakState{UserID: 1, StreakType: StreakDailyStudy}

	// First ever activity.
	st = advanceStreak(st, day(2026, 3, 2))
	if st.CurrentStreak != 1 || st.LongestStreak != 1 {
		t.Fatalf("after first activity: current=%d longest=%d, want 1/1", st.CurrentStreak, st.LongestStreak)
	}

	// Next day.
	st = advanceStreak(st, day(2026, 3, 3))
	if st.CurrentStreak != 2 || st.LongestStreak != 2 {
		t.Fatalf("after consecutive day: current=%d longest=%d, want 2/2", st.CurrentStreak, st.LongestStreak)
	}

	// Gap of two days resets, longest survives.
	st = advanceStreak(st, day(2026, 3, 5))
	if st.CurrentStreak != 1 {
		t.Errorf("after gap: current=%d, want 1", st.CurrentStreak)
	}
	if st.LongestStreak != 2 {
		t.Errorf("after gap: longest=%d, want 2", st.LongestStreak)
	}
}

func TestAdvanceStreakSameDayIdempotent(t *testing.T) {
	st := models.StreakState{UserID: 1, StreakType: StreakDailyStudy}
	st = advanceStreak(st, day(2026, 3, 2))

	// Second event later the same day, different clock time.
	again := advanceStreak(st, time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC))
	if again.CurrentStreak != st.CurrentStreak || again.LongestStreak != st.LongestStreak {
		t.Errorf("same-day touch changed state: %+v vs %+v", again, st)
	}
}

func TestAdvanceStreakBackfillResets(t *testing.T) {
	st := models.StreakState{UserID: 1, StreakType: StreakDailyStudy}
	st = advanceStreak(st, day(2026, 3, 10))
	st = advanceStreak(st, day(2026, 3, 11))

	// An event dated before the last activity resets rather than erroring.
	st = advanceStreak(st, day(2026, 3, 8))
	if st.CurrentStreak != 1 {
		t.Errorf("after backfill: current=%d, want 1", st.CurrentStreak)
	}
	if st.LongestStreak != 2 {
		t.Errorf("after backfill: longest=%d, want 2", st.LongestStreak)
	}
}

func TestAdvanceStreakUsesUTCDay(t *testing.T) {
	st := models.StreakState{UserID: 1, StreakType: StreakDailyStudy}

	// 23:30 UTC-5 on March 2 is 04:30 UTC on March 3.
	est := time.FixedZone("EST", -5*3600)
	st = advanceStreak(st, time.Date(2026, 3, 2, 23, 30, 0, 0, est))
	if got := *st.LastActivityDate; !got.Equal(day(2026, 3, 3)) {
		t.Errorf("last activity = %v, want %v", got, day(2026, 3, 3))
	}
}
