package gamification

import (
	"time"

	"github.com/nursehub/backend/internal/models"
)

// StreakDailyStudy is the streak type touched by every completion event.
const StreakDailyStudy = "daily_study"

// dayOf truncates a timestamp to UTC day granularity. All streak
// continuity math runs on these values.
func dayOf(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

// advanceStreak is the streak transition function. It is total: every
// (previous state, activity date) pair has a defined result, and
// LongestStreak never decreases.
//
//	no previous activity        -> current = 1
//	same day                    -> unchanged (idempotent re-touch)
//	exactly the next day        -> current + 1
//	gap of 2+ days, or backfill -> current = 1
func advanceStreak(prev models.StreakState, activityDate time.Time) models.StreakState {
	day := dayOf(activityDate)
	next := prev

	switch {
	case prev.LastActivityDate == nil:
		next.CurrentStreak = 1
	case day.Equal(*prev.LastActivityDate):
		return prev
	case day.Equal(prev.LastActivityDate.AddDate(0, 0, 1)):
		next.CurrentStreak = prev.CurrentStreak + 1
	default:
		// Gap, or an event dated before the last activity (clock skew,
		// backfill). Reset to 1, not 0 — this event is itself activity.
		next.CurrentStreak = 1
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.LastActivityDate = &day
	return next
}
