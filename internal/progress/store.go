package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/nursehub/backend/internal/models"
)

// Store persists per-user session progress. Progress is the unit of
// per-user atomicity: rows are upserted whole, and the completed set only
// ever grows.
//
// Upsert is a compare-and-swap: expectedVersion is the version the caller
// read (0 for a row it believes absent). A mismatch means another writer
// got there first; the store returns models.ErrConcurrentUpdate and the
// caller re-reads and merges.
type Store interface {
	Get(ctx context.Context, userID int64, sessionID string) (*models.SessionProgress, error)
	ListForUser(ctx context.Context, userID int64) ([]models.SessionProgress, error)
	Upsert(ctx context.Context, p *models.SessionProgress, expectedVersion int64) error
}

// PostgresStore is the production Store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID int64, sessionID string) (*models.SessionProgress, error) {
	var p models.SessionProgress
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, topic_id, session_id, completed_section_ids, status, last_quiz_score, version, updated_at
		 FROM user_session_progress
		 WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	).Scan(&p.UserID, &p.TopicID, &p.SessionID, pq.Array(&p.CompletedSectionIDs),
		&p.Status, &p.LastQuizScore, &p.Version, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session progress: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID int64) ([]models.SessionProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, topic_id, session_id, completed_section_ids, status, last_quiz_score, version, updated_at
		 FROM user_session_progress
		 WHERE user_id = $1
		 ORDER BY session_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session progress: %w", err)
	}
	defer rows.Close()

	var out []models.SessionProgress
	for rows.Next() {
		var p models.SessionProgress
		if err := rows.Scan(&p.UserID, &p.TopicID, &p.SessionID, pq.Array(&p.CompletedSectionIDs),
			&p.Status, &p.LastQuizScore, &p.Version, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session progress: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, p *models.SessionProgress, expectedVersion int64) error {
	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO user_session_progress
			    (user_id, topic_id, session_id, completed_section_ids, status, last_quiz_score, version, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
			 ON CONFLICT (user_id, session_id) DO NOTHING`,
			p.UserID, p.TopicID, p.SessionID, pq.Array(p.CompletedSectionIDs),
			p.Status, p.LastQuizScore, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert session progress: %w", userViolation(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert session progress: %w", err)
		}
		if n == 0 {
			// Row appeared since the caller's read.
			return fmt.Errorf("insert session progress: %w", models.ErrConcurrentUpdate)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE user_session_progress SET
		    completed_section_ids = $1,
		    status = $2,
		    last_quiz_score = $3,
		    version = version + 1,
		    updated_at = $4
		 WHERE user_id = $5 AND session_id = $6 AND version = $7`,
		pq.Array(p.CompletedSectionIDs), p.Status, p.LastQuizScore, p.UpdatedAt,
		p.UserID, p.SessionID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update session progress: %w", models.ErrConcurrentUpdate)
	}
	return nil
}

// userViolation maps a users foreign-key violation onto the domain
// sentinel so callers can tell "no such user" apart from storage faults.
func userViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return models.ErrUnknownUser
	}
	return err
}
