package gamification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nursehub/backend/internal/catalog"
	"github.com/nursehub/backend/internal/models"
	"github.com/nursehub/backend/internal/progress"
)

// awardRetries bounds the optimistic-concurrency retry loop on the
// totals row before giving up with ErrConcurrentUpdate.
const awardRetries = 3

type Service struct {
	catalogs catalog.Provider
	store    Store
	progress *progress.Service
	boards   leaderboardCache
}

func NewService(catalogs catalog.Provider, store Store, progressSvc *progress.Service) *Service {
	return &Service{
		catalogs: catalogs,
		store:    store,
		progress: progressSvc,
	}
}

// ── Points ──────────────────────────────────────────────

// AwardPoints appends one ledger entry and folds it into the user's
// totals. The write is atomic; a concurrent award to the same user is
// retried against the fresh totals, so the total is never lost or
// double-counted.
func (s *Service) AwardPoints(ctx context.Context, userID, amount int64, pointsType, sourceID, sourceType string, at time.Time) (*models.UserPointsTotal, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidAward, amount)
	}

	award := models.PointAward{
		ID:         uuid.NewString(),
		UserID:     userID,
		Amount:     amount,
		PointsType: pointsType,
		SourceID:   sourceID,
		SourceType: sourceType,
		CreatedAt:  at,
	}

	for attempt := 0; attempt < awardRetries; attempt++ {
		totals, err := s.store.GetTotals(ctx, userID)
		if err != nil {
			return nil, err
		}
		updated := applyAmount(totals, amount, at)

		err = s.store.ApplyAward(ctx, award, updated, totals.Version)
		if errors.Is(err, models.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		updated.Version = totals.Version + 1
		return &updated, nil
	}
	return nil, fmt.Errorf("award points for user %d: %w", userID, models.ErrConcurrentUpdate)
}

// awardPointsOnce is AwardPoints deduped on (user, points type, source).
// It is the pipeline's award primitive: a replayed event re-attempts the
// award, and either it never landed (pays now) or it did (no-op). awarded
// reports whether points moved on this call; totals is nil when they
// did not.
func (s *Service) awardPointsOnce(ctx context.Context, userID, amount int64, pointsType, sourceID, sourceType string, at time.Time) (*models.UserPointsTotal, bool, error) {
	if amount <= 0 {
		return nil, false, fmt.Errorf("%w: %d", models.ErrInvalidAward, amount)
	}

	award := models.PointAward{
		ID:         uuid.NewString(),
		UserID:     userID,
		Amount:     amount,
		PointsType: pointsType,
		SourceID:   sourceID,
		SourceType: sourceType,
		CreatedAt:  at,
	}

	for attempt := 0; attempt < awardRetries; attempt++ {
		totals, err := s.store.GetTotals(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		updated := applyAmount(totals, amount, at)

		applied, err := s.store.ApplyAwardOnce(ctx, award, updated, totals.Version)
		if errors.Is(err, models.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if !applied {
			return nil, false, nil
		}
		updated.Version = totals.Version + 1
		return &updated, true, nil
	}
	return nil, false, fmt.Errorf("award points for user %d: %w", userID, models.ErrConcurrentUpdate)
}

// GetPointsHistory returns a page of the user's ledger, newest first.
func (s *Service) GetPointsHistory(ctx context.Context, userID int64, limit, offset int) ([]models.PointAward, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	awards, err := s.store.ListAwards(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if awards == nil {
		awards = []models.PointAward{}
	}
	return awards, nil
}

// RebuildTotals refolds the user's totals from the ledger. Recovery
// path: the ledger is the source of truth, the totals row is a cache.
func (s *Service) RebuildTotals(ctx context.Context, userID int64) (*models.UserPointsTotal, error) {
	sum, err := s.store.SumAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := models.UserPointsTotal{
		UserID:            userID,
		TotalPoints:       sum,
		Level:             LevelForPoints(sum),
		PointsToNextLevel: PointsToNextLevel(sum),
		UpdatedAt:         time.Now(),
	}
	if err := s.store.ReplaceTotals(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ── Streaks ─────────────────────────────────────────────

// Touch records activity of streakType on the event's day and returns
// the advanced state. Same-day re-touches are no-ops.
func (s *Service) Touch(ctx context.Context, userID int64, streakType string, at time.Time) (*models.StreakState, error) {
	prev, err := s.store.GetStreak(ctx, userID, streakType)
	if err != nil {
		return nil, err
	}
	next := advanceStreak(prev, at)
	if err := s.store.UpsertStreak(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// ── Badge & achievement evaluation ──────────────────────

// gatherSnapshot assembles the read-only state one evaluation pass runs
// against, all loaded against a single catalog index.
func (s *Service) gatherSnapshot(ctx context.Context, userID int64, idx *catalog.Index) (*Snapshot, error) {
	progressList, err := s.progress.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot progress: %w", err)
	}
	bySession := make(map[string]models.SessionProgress, len(progressList))
	for _, p := range progressList {
		bySession[p.SessionID] = p
	}

	totals, err := s.store.GetTotals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot totals: %w", err)
	}

	streaks, err := s.store.ListStreaks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot streaks: %w", err)
	}
	byType := make(map[string]models.StreakState, len(streaks))
	for _, st := range streaks {
		byType[st.StreakType] = st
	}

	return &Snapshot{
		Catalog:  idx,
		Progress: bySession,
		Totals:   totals,
		Streaks:  byType,
	}, nil
}

// Evaluate runs every badge and achievement criterion against one
// consistent snapshot and unlocks what is newly met. Unlocks are
// create-if-absent, so re-evaluating the same state awards nothing
// twice. If the catalog is swapped mid-pass the pass is retried once
// against the new index.
func (s *Service) Evaluate(ctx context.Context, userID int64, at time.Time) (badges, achievements []string, err error) {
	for attempt := 0; ; attempt++ {
		idx := s.catalogs.Snapshot()
		snap, err := s.gatherSnapshot(ctx, userID, idx)
		if err != nil {
			return nil, nil, err
		}

		var metBadges []BadgeDef
		for _, def := range Badges {
			if def.Criterion.Met(snap) {
				metBadges = append(metBadges, def)
			}
		}
		var metAchievements []AchievementDef
		for _, def := range Achievements {
			if def.Criterion.Met(snap) {
				metAchievements = append(metAchievements, def)
			}
		}

		// The snapshot is only trustworthy if the catalog did not change
		// underneath the reads above.
		if s.catalogs.Snapshot().Version() != idx.Version() {
			if attempt == 0 {
				continue
			}
			return nil, nil, models.ErrEvaluationInconsistency
		}

		return s.commitUnlocks(ctx, userID, metBadges, metAchievements, at)
	}
}

func (s *Service) commitUnlocks(ctx context.Context, userID int64, metBadges []BadgeDef, metAchievements []AchievementDef, at time.Time) ([]string, []string, error) {
	newBadges := []string{}
	for _, def := range metBadges {
		inserted, err := s.store.InsertBadge(ctx, models.UserBadge{UserID: userID, BadgeSlug: def.Slug, EarnedAt: at})
		if err != nil {
			return nil, nil, fmt.Errorf("unlock badge %s: %w", def.Slug, err)
		}
		if !inserted {
			continue
		}
		newBadges = append(newBadges, def.Slug)
		if def.PointsReward > 0 {
			if _, _, err := s.awardPointsOnce(ctx, userID, def.PointsReward, PointsTypeBadge, def.Slug, SourceTypeBadge, at); err != nil {
				log.Printf("[gamification] badge reward %s for user %d: %v", def.Slug, userID, err)
			}
		}
	}

	newAchievements := []string{}
	for _, def := range metAchievements {
		inserted, err := s.store.InsertAchievement(ctx, models.UserAchievement{UserID: userID, AchievementSlug: def.Slug, CompletedAt: at})
		if err != nil {
			return nil, nil, fmt.Errorf("unlock achievement %s: %w", def.Slug, err)
		}
		if !inserted {
			continue
		}
		newAchievements = append(newAchievements, def.Slug)
		if def.PointsReward > 0 {
			if _, _, err := s.awardPointsOnce(ctx, userID, def.PointsReward, PointsTypeAchievement, def.Slug, SourceTypeAchievement, at); err != nil {
				log.Printf("[gamification] achievement reward %s for user %d: %v", def.Slug, userID, err)
			}
		}
	}

	return newBadges, newAchievements, nil
}

// ── Completion pipeline ─────────────────────────────────

// ProcessCompletion is the write path for one completion event: record
// progress, award activity points, advance the streak, then evaluate
// unlocks. Activity awards are keyed on their source and applied
// create-if-absent, so a replayed event — including a client retry after
// an award failed mid-pipeline — settles the missing award instead of
// double-paying or dropping it. Evaluation failures are logged, not
// returned — the progress write already happened and a later event or
// re-evaluation will pick the unlocks up.
func (s *Service) ProcessCompletion(ctx context.Context, event models.CompletionEvent) (*models.CompletionResult, error) {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	prog, newlyCompleted, becameMastered, err := s.progress.RecordCompletion(ctx, event.UserID, event.SectionID, event.Score, at)
	if err != nil {
		return nil, err
	}

	result := &models.CompletionResult{
		Progress:             *prog,
		NewlyCompleted:       newlyCompleted,
		BecameMastered:       becameMastered,
		BadgesUnlocked:       []string{},
		AchievementsUnlocked: []string{},
	}

	// The section is in the completed set once RecordCompletion returns,
	// so the award is attempted on every event for it and the dedupe key
	// decides whether points actually move.
	totals, awarded, err := s.awardPointsOnce(ctx, event.UserID, PointsSectionCompleted, PointsTypeSectionCompleted, event.SectionID, SourceTypeSection, at)
	if err != nil {
		return nil, fmt.Errorf("section points: %w", err)
	}
	if awarded {
		result.PointsAwarded += PointsSectionCompleted
		result.Totals = totals
	}
	if prog.Status == models.StatusMastered {
		totals, awarded, err := s.awardPointsOnce(ctx, event.UserID, PointsSessionMastered, PointsTypeSessionMastered, prog.SessionID, SourceTypeSession, at)
		if err != nil {
			return nil, fmt.Errorf("mastery points: %w", err)
		}
		if awarded {
			result.PointsAwarded += PointsSessionMastered
			result.Totals = totals
		}
	}

	streak, err := s.Touch(ctx, event.UserID, StreakDailyStudy, at)
	if err != nil {
		return nil, fmt.Errorf("advance streak: %w", err)
	}
	result.Streak = streak

	badges, achievements, err := s.Evaluate(ctx, event.UserID, at)
	if err != nil {
		log.Printf("[gamification] evaluate user %d: %v", event.UserID, err)
	} else {
		result.BadgesUnlocked = badges
		result.AchievementsUnlocked = achievements
	}

	if result.Totals == nil {
		totals, err := s.store.GetTotals(ctx, event.UserID)
		if err == nil {
			result.Totals = &totals
		}
	} else if len(result.BadgesUnlocked)+len(result.AchievementsUnlocked) > 0 {
		// Unlock rewards moved the totals since the activity award.
		totals, err := s.store.GetTotals(ctx, event.UserID)
		if err == nil {
			result.Totals = &totals
		}
	}

	return result, nil
}

// ── Read models ─────────────────────────────────────────

// GetUserSummary aggregates the dashboard view: totals, streaks, and
// every unlock.
func (s *Service) GetUserSummary(ctx context.Context, userID int64) (*models.UserSummary, error) {
	totals, err := s.store.GetTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	streaks, err := s.store.ListStreaks(ctx, userID)
	if err != nil {
		return nil, err
	}
	badges, err := s.store.ListBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	achievements, err := s.store.ListAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	if streaks == nil {
		streaks = []models.StreakState{}
	}
	if badges == nil {
		badges = []models.UserBadge{}
	}
	if achievements == nil {
		achievements = []models.UserAchievement{}
	}

	return &models.UserSummary{
		UserID:            userID,
		TotalPoints:       totals.TotalPoints,
		Level:             totals.Level,
		PointsToNextLevel: totals.PointsToNextLevel,
		Streaks:           streaks,
		Badges:            badges,
		Achievements:      achievements,
	}, nil
}
