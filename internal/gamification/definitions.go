package gamification

import "github.com/nursehub/backend/internal/models"

// BadgeDef defines a single badge. Definitions are immutable and keyed by
// slug; the slice order is the stable evaluation order.
type BadgeDef struct {
	Slug         string
	Name         string
	Description  string
	Rarity       models.BadgeRarity
	PointsReward int64
	Criterion    Criterion
}

// AchievementDef defines a single achievement. Hidden achievements are
// evaluated like any other but not listed until earned.
type AchievementDef struct {
	Slug         string
	Name         string
	Description  string
	Difficulty   models.AchievementDifficulty
	Hidden       bool
	PointsReward int64
	Criterion    Criterion
}

// Badges in stable evaluation order.
var Badges = []BadgeDef{
	{
		Slug:         "first-steps",
		Name:         "First Steps",
		Description:  "Complete your first section",
		Rarity:       models.RarityCommon,
		PointsReward: 10,
		Criterion:    Criterion{Kind: SectionsCompletedAtLeast, Count: 1},
	},
	{
		Slug:         "dedicated-learner",
		Name:         "Dedicated Learner",
		Description:  "Complete 25 sections",
		Rarity:       models.RarityCommon,
		PointsReward: 25,
		Criterion:    Criterion{Kind: SectionsCompletedAtLeast, Count: 25},
	},
	{
		Slug:         "perfect-score",
		Name:         "Perfect Score",
		Description:  "Master your first quiz session",
		Rarity:       models.RarityRare,
		PointsReward: 50,
		Criterion:    Criterion{Kind: QuizSessionsMasteredAtLeast, Count: 1},
	},
	{
		Slug:         "streak-master",
		Name:         "Streak Master",
		Description:  "Study 7 days in a row",
		Rarity:       models.RarityRare,
		PointsReward: 50,
		Criterion:    Criterion{Kind: StreakAtLeast, StreakType: StreakDailyStudy, Count: 7},
	},
	{
		Slug:         "monthly-master",
		Name:         "Monthly Master",
		Description:  "Study 30 days in a row",
		Rarity:       models.RarityEpic,
		PointsReward: 150,
		Criterion:    Criterion{Kind: StreakAtLeast, StreakType: StreakDailyStudy, Count: 30},
	},
	{
		Slug:         "rising-star",
		Name:         "Rising Star",
		Description:  "Earn 1,000 points",
		Rarity:       models.RarityRare,
		PointsReward: 50,
		Criterion:    Criterion{Kind: TotalPointsAtLeast, Count: 1000},
	},
	{
		Slug:         "osce-champion",
		Name:         "OSCE Champion",
		Description:  "Master every quiz in the curriculum",
		Rarity:       models.RarityLegendary,
		PointsReward: 500,
		Criterion:    Criterion{Kind: AllQuizSectionsMastered},
	},
}

// Achievements in stable evaluation order.
var Achievements = []AchievementDef{
	{
		Slug:         "first-topic-complete",
		Name:         "First Topic Complete",
		Description:  "Fully master your first learning topic",
		Difficulty:   models.DifficultyEasy,
		PointsReward: 100,
		Criterion:    Criterion{Kind: TopicsMasteredAtLeast, Count: 1},
	},
	{
		Slug:         "five-topics-complete",
		Name:         "Knowledge Explorer",
		Description:  "Fully master 5 learning topics",
		Difficulty:   models.DifficultyMedium,
		PointsReward: 250,
		Criterion:    Criterion{Kind: TopicsMasteredAtLeast, Count: 5},
	},
	{
		Slug:         "all-topics-complete",
		Name:         "Learning Master",
		Description:  "Fully master every learning topic",
		Difficulty:   models.DifficultyExtreme,
		PointsReward: 1000,
		Criterion:    Criterion{Kind: AllTopicsMastered},
	},
	{
		Slug:         "first-quiz-mastered",
		Name:         "Quiz Starter",
		Description:  "Earn mastered status on your first quiz",
		Difficulty:   models.DifficultyEasy,
		PointsReward: 50,
		Criterion:    Criterion{Kind: QuizSessionsMasteredAtLeast, Count: 1},
	},
	{
		Slug:         "all-quizzes-mastered",
		Name:         "Quiz Master",
		Description:  "Earn mastered status on every quiz",
		Difficulty:   models.DifficultyHard,
		PointsReward: 500,
		Criterion:    Criterion{Kind: AllQuizSectionsMastered},
	},
	{
		Slug:         "first-case-study-complete",
		Name:         "First Case Study",
		Description:  "Complete your first case study",
		Difficulty:   models.DifficultyEasy,
		PointsReward: 50,
		Criterion:    Criterion{Kind: SectionsOfTypeCompletedAtLeast, SectionType: models.SectionCaseStudy, Count: 1},
	},
	{
		Slug:         "all-case-studies-complete",
		Name:         "Experienced Analyst",
		Description:  "Complete every case study",
		Difficulty:   models.DifficultyHard,
		PointsReward: 300,
		Criterion:    Criterion{Kind: AllSectionsOfTypeCompleted, SectionType: models.SectionCaseStudy},
	},
	{
		Slug:         "century",
		Name:         "Century",
		Description:  "Reach a 100-day study streak",
		Difficulty:   models.DifficultyExtreme,
		Hidden:       true,
		PointsReward: 1000,
		Criterion:    Criterion{Kind: StreakAtLeast, StreakType: StreakDailyStudy, Count: 100},
	},
}

// BadgeBySlug looks up a badge definition.
func BadgeBySlug(slug string) (BadgeDef, bool) {
	for _, b := range Badges {
		if b.Slug == slug {
			return b, true
		}
	}
	return BadgeDef{}, false
}

// AchievementBySlug looks up an achievement definition.
func AchievementBySlug(slug string) (AchievementDef, bool) {
	for _, a := range Achievements {
		if a.Slug == slug {
			return a, true
		}
	}
	return AchievementDef{}, false
}
