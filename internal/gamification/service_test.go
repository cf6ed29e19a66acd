package gamification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/nursehub/backend/internal/catalog"
	"github.com/nursehub/backend/internal/models"
	"github.com/nursehub/backend/internal/progress"
)

func newTestService() (*Service, *MemoryStore) {
	holder := catalog.NewHolder(testIndex())
	store := NewMemoryStore()
	progressSvc := progress.NewService(holder, progress.NewMemoryStore(), 80)
	return NewService(holder, store, progressSvc), store
}

func TestAwardPointsRejectsNonPositive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, amount := range []int64{0, -25} {
		_, err := svc.AwardPoints(ctx, 1, amount, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, time.Now())
		if !errors.Is(err, models.ErrInvalidAward) {
			t.Errorf("amount %d: err = %v, want ErrInvalidAward", amount, err)
		}
	}
}

func TestAwardPointsAccumulates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := time.Now()

	totals, err := svc.AwardPoints(ctx, 1, 60, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, now)
	if err != nil {
		t.Fatal(err)
	}
	if totals.TotalPoints != 60 || totals.Level != 1 {
		t.Errorf("totals = %d pts level %d, want 60 pts level 1", totals.TotalPoints, totals.Level)
	}

	totals, err = svc.AwardPoints(ctx, 1, 60, PointsTypeSessionMastered, "s1", SourceTypeSession, now)
	if err != nil {
		t.Fatal(err)
	}
	if totals.TotalPoints != 120 {
		t.Errorf("total = %d, want 120", totals.TotalPoints)
	}
	if totals.Level != 2 {
		t.Errorf("level = %d, want 2 after crossing 100", totals.Level)
	}

	history, err := svc.GetPointsHistory(ctx, 1, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("ledger has %d entries, want 2", len(history))
	}
}

// flakyStore rejects the first n award writes with a wrapped concurrency
// sentinel, the way the Postgres store reports it, to exercise the retry
// loop.
type flakyStore struct {
	Store
	rejections int
}

func (f *flakyStore) ApplyAward(ctx context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) error {
	if f.rejections > 0 {
		f.rejections--
		return fmt.Errorf("upsert totals: %w", models.ErrConcurrentUpdate)
	}
	return f.Store.ApplyAward(ctx, award, updated, expectedVersion)
}

func (f *flakyStore) ApplyAwardOnce(ctx context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) (bool, error) {
	if f.rejections > 0 {
		f.rejections--
		return false, fmt.Errorf("upsert totals: %w", models.ErrConcurrentUpdate)
	}
	return f.Store.ApplyAwardOnce(ctx, award, updated, expectedVersion)
}

func TestAwardPointsRetriesOnConcurrentUpdate(t *testing.T) {
	holder := catalog.NewHolder(testIndex())
	progressSvc := progress.NewService(holder, progress.NewMemoryStore(), 80)

	store := &flakyStore{Store: NewMemoryStore(), rejections: 2}
	svc := NewService(holder, store, progressSvc)

	totals, err := svc.AwardPoints(context.Background(), 1, 10, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, time.Now())
	if err != nil {
		t.Fatalf("two rejections should succeed within the retry limit: %v", err)
	}
	if totals.TotalPoints != 10 {
		t.Errorf("total = %d, want 10", totals.TotalPoints)
	}

	store.rejections = awardRetries
	_, err = svc.AwardPoints(context.Background(), 1, 10, PointsTypeSectionCompleted, "s1-b", SourceTypeSection, time.Now())
	if !errors.Is(err, models.ErrConcurrentUpdate) {
		t.Errorf("exhausted retries: err = %v, want ErrConcurrentUpdate", err)
	}
}

func TestAwardPointsConcurrentCallersSum(t *testing.T) {
	svc, store := newTestService()
	now := time.Now()

	// Concurrent awards to the same user, each caller retrying the
	// conflict sentinel, must sum exactly.
	const workers = 4
	done := make(chan error, workers)
	for w := 0; w < workers; w++ {
		go func() {
			for {
				_, err := svc.AwardPoints(context.Background(), 1, 10, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, now)
				if errors.Is(err, models.ErrConcurrentUpdate) {
					continue
				}
				done <- err
				return
			}
		}()
	}
	for w := 0; w < workers; w++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	totals, err := store.GetTotals(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if totals.TotalPoints != workers*10 {
		t.Errorf("total = %d, want %d", totals.TotalPoints, workers*10)
	}
	sum, _ := store.SumAwards(context.Background(), 1)
	if sum != totals.TotalPoints {
		t.Errorf("ledger sum %d disagrees with totals %d", sum, totals.TotalPoints)
	}
}

func TestProcessCompletionAwardsAndUnlocks(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := day(2026, 3, 2)

	result, err := svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-a", OccurredAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if !result.NewlyCompleted || result.BecameMastered {
		t.Errorf("first completion: newly=%v mastered=%v, want true/false", result.NewlyCompleted, result.BecameMastered)
	}
	if result.PointsAwarded != PointsSectionCompleted {
		t.Errorf("points awarded = %d, want %d", result.PointsAwarded, PointsSectionCompleted)
	}
	if result.Streak == nil || result.Streak.CurrentStreak != 1 {
		t.Errorf("streak = %+v, want current 1", result.Streak)
	}
	if len(result.BadgesUnlocked) != 1 || result.BadgesUnlocked[0] != "first-steps" {
		t.Errorf("badges = %v, want [first-steps]", result.BadgesUnlocked)
	}
	// Section points plus the first-steps reward.
	if result.Totals.TotalPoints != PointsSectionCompleted+10 {
		t.Errorf("total = %d, want %d", result.Totals.TotalPoints, PointsSectionCompleted+10)
	}
}

func TestProcessCompletionRetrySafe(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := day(2026, 3, 2)

	first, err := svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-a", OccurredAt: now})
	if err != nil {
		t.Fatal(err)
	}

	// Same event delivered again: no points, no new unlocks, same streak.
	second, err := svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-a", OccurredAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if second.NewlyCompleted {
		t.Error("replayed event should not be newly completed")
	}
	if second.PointsAwarded != 0 {
		t.Errorf("replayed event awarded %d points, want 0", second.PointsAwarded)
	}
	if len(second.BadgesUnlocked) != 0 {
		t.Errorf("replayed event unlocked %v, want nothing", second.BadgesUnlocked)
	}
	if second.Totals.TotalPoints != first.Totals.TotalPoints {
		t.Errorf("total moved on replay: %d -> %d", first.Totals.TotalPoints, second.Totals.TotalPoints)
	}
	if second.Streak.CurrentStreak != 1 {
		t.Errorf("streak = %d, want 1 after same-day replay", second.Streak.CurrentStreak)
	}
}

func TestProcessCompletionMasteryFlow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	now := day(2026, 3, 2)
	score := func(v float64) *float64 { return &v }

	svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-a", OccurredAt: now})
	svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-b", OccurredAt: now})

	// Quiz below threshold: section points, no mastery bonus.
	result, err := svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-quiz", Score: score(70), OccurredAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if result.BecameMastered {
		t.Error("70% should not master against the 80% threshold")
	}
	if result.PointsAwarded != PointsSectionCompleted {
		t.Errorf("points = %d, want section points only", result.PointsAwarded)
	}

	// Passing re-attempt: mastery bonus only, section already counted.
	result, err = svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-quiz", Score: score(90), OccurredAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if !result.BecameMastered {
		t.Error("90% should master against the 80% threshold")
	}
	if result.PointsAwarded != PointsSessionMastered {
		t.Errorf("points = %d, want mastery bonus only", result.PointsAwarded)
	}

	// Mastering the rest of topic-1 unlocks first-topic-complete.
	result, err = svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s2-video", OccurredAt: now})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, slug := range result.AchievementsUnlocked {
		if slug == "first-topic-complete" {
			found = true
		}
	}
	if !found {
		t.Errorf("achievements = %v, want first-topic-complete included", result.AchievementsUnlocked)
	}
}

// An award that fails after the progress write committed must not be
// lost: the replayed event re-attempts it, and the source dedupe makes
// sure it settles exactly once.
func TestProcessCompletionRecoversDroppedAward(t *testing.T) {
	holder := catalog.NewHolder(testIndex())
	progressSvc := progress.NewService(holder, progress.NewMemoryStore(), 80)
	store := &flakyStore{Store: NewMemoryStore(), rejections: awardRetries}
	svc := NewService(holder, store, progressSvc)

	ctx := context.Background()
	now := day(2026, 3, 2)
	event := models.CompletionEvent{UserID: 1, SectionID: "s2-video", OccurredAt: now}

	// Progress commits, then every award attempt is rejected.
	if _, err := svc.ProcessCompletion(ctx, event); !errors.Is(err, models.ErrConcurrentUpdate) {
		t.Fatalf("err = %v, want ErrConcurrentUpdate after exhausted award retries", err)
	}
	if sum, _ := store.SumAwards(ctx, 1); sum != 0 {
		t.Fatalf("ledger sum = %d after failed awards, want 0", sum)
	}

	// The client retries the same event: progress is unchanged, and the
	// section and mastery awards land now.
	result, err := svc.ProcessCompletion(ctx, event)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewlyCompleted || result.BecameMastered {
		t.Errorf("replay transitions: newly=%v mastered=%v, want false/false", result.NewlyCompleted, result.BecameMastered)
	}
	if want := PointsSectionCompleted + PointsSessionMastered; result.PointsAwarded != int64(want) {
		t.Errorf("recovered points = %d, want %d", result.PointsAwarded, want)
	}

	// A third delivery pays nothing more.
	again, err := svc.ProcessCompletion(ctx, event)
	if err != nil {
		t.Fatal(err)
	}
	if again.PointsAwarded != 0 {
		t.Errorf("settled event awarded %d more points, want 0", again.PointsAwarded)
	}
}

// Concurrent events for one user must neither lose nor duplicate awards:
// every section pays once, mastery pays once, and the totals row agrees
// with the ledger.
func TestProcessCompletionConcurrentEvents(t *testing.T) {
	svc, store := newTestService()
	now := day(2026, 3, 2)

	sections := []string{"s1-a", "s1-b", "s2-video"}
	done := make(chan error, len(sections))
	for _, id := range sections {
		go func(sectionID string) {
			for {
				_, err := svc.ProcessCompletion(context.Background(), models.CompletionEvent{UserID: 1, SectionID: sectionID, OccurredAt: now})
				if errors.Is(err, models.ErrConcurrentUpdate) {
					continue
				}
				done <- err
				return
			}
		}(id)
	}
	for range sections {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	awards, err := store.ListAwards(ctx, 1, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	byType := make(map[string]int)
	for _, a := range awards {
		byType[a.PointsType]++
	}
	if byType[PointsTypeSectionCompleted] != len(sections) {
		t.Errorf("section awards = %d, want %d", byType[PointsTypeSectionCompleted], len(sections))
	}
	if byType[PointsTypeSessionMastered] != 1 {
		t.Errorf("mastery awards = %d, want 1 (only s2 masters)", byType[PointsTypeSessionMastered])
	}

	totals, err := store.GetTotals(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	sum, _ := store.SumAwards(ctx, 1)
	if totals.TotalPoints != sum {
		t.Errorf("totals %d disagree with ledger sum %d", totals.TotalPoints, sum)
	}
}

func TestUserViolationMapsForeignKey(t *testing.T) {
	if err := userViolation(&pq.Error{Code: "23503"}); !errors.Is(err, models.ErrUnknownUser) {
		t.Errorf("err = %v, want ErrUnknownUser", err)
	}
	plain := errors.New("connection reset")
	if got := userViolation(plain); got != plain {
		t.Errorf("unrelated error rewritten: %v", got)
	}
}

func TestEvaluateUnlocksAtMostOnce(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	now := day(2026, 3, 2)

	svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-a", OccurredAt: now})

	// A direct re-evaluation of the same state unlocks nothing new and
	// pays no second reward.
	before, _ := store.SumAwards(ctx, 1)
	badges, achievements, err := svc.Evaluate(ctx, 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(badges) != 0 || len(achievements) != 0 {
		t.Errorf("re-evaluation unlocked badges=%v achievements=%v, want none", badges, achievements)
	}
	after, _ := store.SumAwards(ctx, 1)
	if before != after {
		t.Errorf("re-evaluation moved the ledger: %d -> %d", before, after)
	}
}

func TestRebuildTotalsMatchesLedger(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	now := time.Now()

	svc.AwardPoints(ctx, 1, 30, PointsTypeSectionCompleted, "s1-a", SourceTypeSection, now)
	svc.AwardPoints(ctx, 1, 50, PointsTypeSessionMastered, "s1", SourceTypeSession, now)

	// Drift the cached row, then refold from the ledger.
	store.ReplaceTotals(ctx, models.UserPointsTotal{UserID: 1, TotalPoints: 9999, Level: 10})

	rebuilt, err := svc.RebuildTotals(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt.TotalPoints != 80 {
		t.Errorf("rebuilt total = %d, want 80", rebuilt.TotalPoints)
	}
	if rebuilt.Level != LevelForPoints(80) {
		t.Errorf("rebuilt level = %d, want %d", rebuilt.Level, LevelForPoints(80))
	}
}

func TestGetUserSummary(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	svc.ProcessCompletion(ctx, models.CompletionEvent{UserID: 1, SectionID: "s1-a", OccurredAt: day(2026, 3, 2)})

	summary, err := svc.GetUserSummary(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalPoints == 0 {
		t.Error("summary should reflect awarded points")
	}
	if len(summary.Streaks) != 1 || summary.Streaks[0].CurrentStreak != 1 {
		t.Errorf("streaks = %+v, want one daily streak of 1", summary.Streaks)
	}
	if len(summary.Badges) != 1 {
		t.Errorf("badges = %+v, want first-steps only", summary.Badges)
	}

	// A user with no activity gets a well-formed empty summary.
	empty, err := svc.GetUserSummary(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Level != 1 || empty.PointsToNextLevel != 100 {
		t.Errorf("empty summary = level %d, to-next %d; want 1/100", empty.Level, empty.PointsToNextLevel)
	}
	if empty.Badges == nil || empty.Streaks == nil || empty.Achievements == nil {
		t.Error("empty summary slices should be non-nil")
	}
}
