package gamification

import (
	"math"
	"time"

	"github.com/nursehub/backend/internal/models"
)

// Point values for activity-driven awards. Badge and achievement rewards
// come from their definitions.
const (
	PointsSectionCompleted = 10
	PointsSessionMastered  = 50
)

// Points types recorded on ledger entries.
const (
	PointsTypeSectionCompleted = "section_completed"
	PointsTypeSessionMastered  = "session_mastered"
	PointsTypeBadge            = "badge_reward"
	PointsTypeAchievement      = "achievement_reward"
)

// Source types recorded on ledger entries.
const (
	SourceTypeSection     = "section"
	SourceTypeSession     = "session"
	SourceTypeBadge       = "badge"
	SourceTypeAchievement = "achievement"
)

// LevelForPoints maps a point total to a level: floor(sqrt(points/100))+1.
// 0-99 points is level 1, 100-399 level 2, 400-899 level 3, and so on.
func LevelForPoints(totalPoints int64) int {
	if totalPoints < 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(totalPoints)/100))) + 1
}

// PointsToNextLevel is the remaining distance to the next level boundary.
// Always >= 0: the boundary for level n+1 sits at n^2 * 100 points.
func PointsToNextLevel(totalPoints int64) int64 {
	level := int64(LevelForPoints(totalPoints))
	return level*level*100 - totalPoints
}

// applyAmount folds one award amount into a totals row, recomputing the
// level fields. Pure; the store applies the result atomically with the
// ledger append.
func applyAmount(t models.UserPointsTotal, amount int64, at time.Time) models.UserPointsTotal {
	t.TotalPoints += amount
	t.Level = LevelForPoints(t.TotalPoints)
	t.PointsToNextLevel = PointsToNextLevel(t.TotalPoints)
	t.UpdatedAt = at
	return t
}
