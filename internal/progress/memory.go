package progress

import (
	"context"
	"sync"

	"github.com/nursehub/backend/internal/models"
)

// MemoryStore is an in-process Store used by tests and embedded setups.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[int64]map[string]models.SessionProgress
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[int64]map[string]models.SessionProgress)}
}

func (s *MemoryStore) Get(_ context.Context, userID int64, sessionID string) (*models.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[userID][sessionID]
	if !ok {
		return nil, nil
	}
	cp := cloneProgress(p)
	return &cp, nil
}

func (s *MemoryStore) ListForUser(_ context.Context, userID int64) ([]models.SessionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SessionProgress
	for _, p := range s.rows[userID] {
		out = append(out, cloneProgress(p))
	}
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p *models.SessionProgress, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.rows[p.UserID][p.SessionID]
	if !exists && expectedVersion != 0 {
		return models.ErrConcurrentUpdate
	}
	if exists && current.Version != expectedVersion {
		return models.ErrConcurrentUpdate
	}
	if s.rows[p.UserID] == nil {
		s.rows[p.UserID] = make(map[string]models.SessionProgress)
	}
	cp := cloneProgress(*p)
	cp.Version = expectedVersion + 1
	s.rows[p.UserID][p.SessionID] = cp
	return nil
}

func cloneProgress(p models.SessionProgress) models.SessionProgress {
	cp := p
	cp.CompletedSectionIDs = append([]string(nil), p.CompletedSectionIDs...)
	if p.LastQuizScore != nil {
		v := *p.LastQuizScore
		cp.LastQuizScore = &v
	}
	return cp
}
