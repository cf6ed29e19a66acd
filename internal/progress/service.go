package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nursehub/backend/internal/catalog"
	"github.com/nursehub/backend/internal/models"
)

// DefaultMasteryThreshold is the platform-wide quiz mastery threshold
// (percent) used when neither configuration nor the session override one.
const DefaultMasteryThreshold = 80.0

// Service applies completion events to the progress store.
type Service struct {
	catalogs         catalog.Provider
	store            Store
	masteryThreshold float64
}

func NewService(catalogs catalog.Provider, store Store, masteryThreshold float64) *Service {
	if masteryThreshold <= 0 {
		masteryThreshold = DefaultMasteryThreshold
	}
	return &Service{catalogs: catalogs, store: store, masteryThreshold: masteryThreshold}
}

// completionRetries bounds the re-read-and-merge attempts when concurrent
// completions race on the same session row.
const completionRetries = 3

// RecordCompletion marks a section completed for a user and recomputes the
// session status. It is idempotent on repeated section ids: newlyCompleted
// is false and nothing changes when the section was already completed and
// no score is supplied.
//
// The write is a compare-and-swap on the row version. On a conflict the
// whole read-merge-compute cycle reruns against the winner's row, so two
// users' tabs completing different sections of one session both land.
//
// becameMastered is true only on the transition into mastered, so callers
// can trigger downstream evaluation exactly once per mastery.
func (s *Service) RecordCompletion(ctx context.Context, userID int64, sectionID string, score *float64, at time.Time) (*models.SessionProgress, bool, bool, error) {
	idx := s.catalogs.Snapshot()
	section, session, topic, ok := idx.FindSection(sectionID)
	if !ok {
		return nil, false, false, fmt.Errorf("record completion for section %s: %w", sectionID, models.ErrUnknownSection)
	}

	for attempt := 0; attempt < completionRetries; attempt++ {
		p, err := s.store.Get(ctx, userID, session.ID)
		if err != nil {
			return nil, false, false, err
		}
		if p == nil {
			p = &models.SessionProgress{
				UserID:    userID,
				TopicID:   topic.ID,
				SessionID: session.ID,
				Status:    models.StatusNotStarted,
			}
		}

		wasMastered := p.Status == models.StatusMastered
		expected := p.Version

		newlyCompleted := false
		if !p.HasSection(sectionID) {
			p.CompletedSectionIDs = append(p.CompletedSectionIDs, sectionID)
			newlyCompleted = true
		}
		if section.Type == models.SectionQuiz && score != nil {
			p.LastQuizScore = score
		}

		p.Status = s.computeStatus(idx, p, session)
		p.UpdatedAt = at

		err = s.store.Upsert(ctx, p, expected)
		if errors.Is(err, models.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, false, false, err
		}
		p.Version = expected + 1

		becameMastered := !wasMastered && p.Status == models.StatusMastered
		return p, newlyCompleted, becameMastered, nil
	}
	return nil, false, false, fmt.Errorf("record completion for session %s: %w", session.ID, models.ErrConcurrentUpdate)
}

// computeStatus derives the session status from the completed set. All
// sections complete makes a non-quiz session mastered outright; a quiz
// session additionally needs the most recent score to meet the threshold,
// otherwise it stays in-progress even with every section attempted.
func (s *Service) computeStatus(idx *catalog.Index, p *models.SessionProgress, session models.CatalogSession) models.SessionStatus {
	if len(p.CompletedSectionIDs) == 0 {
		return models.StatusNotStarted
	}
	if len(p.CompletedSectionIDs) < len(session.Sections) {
		return models.StatusInProgress
	}
	if idx.IsQuizSession(session.ID) {
		threshold := idx.MasteryThreshold(session.ID, s.masteryThreshold)
		if p.LastQuizScore == nil || *p.LastQuizScore < threshold {
			return models.StatusInProgress
		}
	}
	return models.StatusMastered
}

// GetSessionProgress returns the stored progress, or a zeroed not-started
// record for sessions the user has not touched.
func (s *Service) GetSessionProgress(ctx context.Context, userID int64, sessionID string) (*models.SessionProgress, error) {
	idx := s.catalogs.Snapshot()
	if !idx.HasSession(sessionID) {
		return nil, fmt.Errorf("get progress for session %s: %w", sessionID, models.ErrUnknownSection)
	}
	p, err := s.store.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		topicID, _ := idx.TopicOf(sessionID)
		return &models.SessionProgress{
			UserID:              userID,
			TopicID:             topicID,
			SessionID:           sessionID,
			CompletedSectionIDs: []string{},
			Status:              models.StatusNotStarted,
		}, nil
	}
	return p, nil
}

// ListForUser returns all stored progress rows for a user.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]models.SessionProgress, error) {
	return s.store.ListForUser(ctx, userID)
}
