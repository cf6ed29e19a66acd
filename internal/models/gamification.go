package models

import "time"

// ── Points ────────────────────────────────────────────────

// PointAward is one row of the append-only points ledger. Awards are
// immutable once written; corrections are separate entries, never edits.
type PointAward struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	Amount     int64     `json:"amount"`
	PointsType string    `json:"points_type"`
	SourceID   string    `json:"source_id,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserPointsTotal is the derived per-user total. The ledger is the source
// of truth; this row is a cache kept consistent with it transactionally.
// Version is the optimistic-concurrency token for the totals upsert.
type UserPointsTotal struct {
	UserID            int64     `json:"user_id"`
	TotalPoints       int64     `json:"total_points"`
	Level             int       `json:"level"`
	PointsToNextLevel int64     `json:"points_to_next_level"`
	Version           int64     `json:"-"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ── Streaks ───────────────────────────────────────────────

// StreakState is per-user, per-streak-type continuity state.
// LastActivityDate is day-granular (truncated to UTC midnight).
type StreakState struct {
	UserID           int64      `json:"user_id"`
	StreakType       string     `json:"streak_type"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

// ── Badges & Achievements ─────────────────────────────────

type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "common"
	RarityRare      BadgeRarity = "rare"
	RarityEpic      BadgeRarity = "epic"
	RarityLegendary BadgeRarity = "legendary"
)

type AchievementDifficulty string

const (
	DifficultyEasy    AchievementDifficulty = "easy"
	DifficultyMedium  AchievementDifficulty = "medium"
	DifficultyHard    AchievementDifficulty = "hard"
	DifficultyExtreme AchievementDifficulty = "extreme"
)

// UserBadge records a badge unlock. At most one row per (user, badge);
// awarding is create-if-absent, never an update.
type UserBadge struct {
	UserID    int64     `json:"user_id"`
	BadgeSlug string    `json:"badge_slug"`
	EarnedAt  time.Time `json:"earned_at"`
}

// UserAchievement records a completed achievement, same at-most-once rule.
type UserAchievement struct {
	UserID          int64     `json:"user_id"`
	AchievementSlug string    `json:"achievement_slug"`
	CompletedAt     time.Time `json:"completed_at"`
}

// ── Leaderboards ──────────────────────────────────────────

type LeaderboardPeriod string

const (
	PeriodDaily   LeaderboardPeriod = "daily"
	PeriodWeekly  LeaderboardPeriod = "weekly"
	PeriodMonthly LeaderboardPeriod = "monthly"
	PeriodAllTime LeaderboardPeriod = "all_time"
)

// LeaderboardEntry is one ranked row. Position is a 1-based dense rank:
// tied scores share a position and the next distinct score takes the
// previous position + 1.
type LeaderboardEntry struct {
	Position    int    `json:"position"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Score       int64  `json:"score"`
}

// ── Responses ─────────────────────────────────────────────

// CompletionResult summarizes everything a single completion event changed.
type CompletionResult struct {
	Progress             SessionProgress  `json:"progress"`
	NewlyCompleted       bool             `json:"newly_completed"`
	BecameMastered       bool             `json:"became_mastered"`
	PointsAwarded        int64            `json:"points_awarded"`
	Totals               *UserPointsTotal `json:"totals,omitempty"`
	Streak               *StreakState     `json:"streak,omitempty"`
	BadgesUnlocked       []string         `json:"badges_unlocked"`
	AchievementsUnlocked []string         `json:"achievements_unlocked"`
}

// UserSummary is the aggregate read model for the dashboard.
type UserSummary struct {
	UserID            int64             `json:"user_id"`
	TotalPoints       int64             `json:"total_points"`
	Level             int               `json:"level"`
	PointsToNextLevel int64             `json:"points_to_next_level"`
	Streaks           []StreakState     `json:"streaks"`
	Badges            []UserBadge       `json:"badges"`
	Achievements      []UserAchievement `json:"achievements"`
}

// LeaderboardResponse is a page of a ranked view.
type LeaderboardResponse struct {
	Slug        string             `json:"slug"`
	Period      LeaderboardPeriod  `json:"period"`
	PeriodStart *time.Time         `json:"period_start,omitempty"`
	PeriodEnd   *time.Time         `json:"period_end,omitempty"`
	Entries     []LeaderboardEntry `json:"entries"`
	Page        int                `json:"page"`
	PageSize    int                `json:"page_size"`
}
