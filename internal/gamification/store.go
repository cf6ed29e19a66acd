package gamification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nursehub/backend/internal/models"
)

// Store persists the points ledger, derived totals, streaks, and unlock
// rows. ApplyAward is the engine's one compound write: the ledger append
// and the totals upsert either both happen or neither does, and the
// version check makes concurrent awards to the same user retry instead
// of losing updates.
type Store interface {
	// Ledger & totals. ApplyAwardOnce dedupes on (user, points type,
	// source): a replayed event that already paid out is a no-op and the
	// bool reports whether the award landed this time.
	GetTotals(ctx context.Context, userID int64) (models.UserPointsTotal, error)
	ApplyAward(ctx context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) error
	ApplyAwardOnce(ctx context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) (bool, error)
	ListAwards(ctx context.Context, userID int64, limit, offset int) ([]models.PointAward, error)
	SumAwards(ctx context.Context, userID int64) (int64, error)
	PointsByUserBetween(ctx context.Context, start, end time.Time) (map[int64]int64, error)
	AllTotals(ctx context.Context) ([]models.UserPointsTotal, error)
	ReplaceTotals(ctx context.Context, t models.UserPointsTotal) error

	// Streaks.
	GetStreak(ctx context.Context, userID int64, streakType string) (models.StreakState, error)
	ListStreaks(ctx context.Context, userID int64) ([]models.StreakState, error)
	UpsertStreak(ctx context.Context, s models.StreakState) error
	StreaksByUser(ctx context.Context, streakType string) (map[int64]int64, error)

	// Unlocks. Insert* are create-if-absent: the bool reports whether a
	// new row was created, which is the sole at-most-once award guard.
	ListBadges(ctx context.Context, userID int64) ([]models.UserBadge, error)
	InsertBadge(ctx context.Context, b models.UserBadge) (bool, error)
	ListAchievements(ctx context.Context, userID int64) ([]models.UserAchievement, error)
	InsertAchievement(ctx context.Context, a models.UserAchievement) (bool, error)

	// Leaderboard display names.
	DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

// PostgresStore is the production Store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ── Ledger & totals ─────────────────────────────────────

func (s *PostgresStore) GetTotals(ctx context.Context, userID int64) (models.UserPointsTotal, error) {
	var t models.UserPointsTotal
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, total_points, level, points_to_next_level, version, updated_at
		 FROM user_total_points WHERE user_id = $1`,
		userID,
	).Scan(&t.UserID, &t.TotalPoints, &t.Level, &t.PointsToNextLevel, &t.Version, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return freshTotals(userID), nil
	}
	if err != nil {
		return models.UserPointsTotal{}, fmt.Errorf("get totals: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ApplyAward(ctx context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin award tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO point_awards (id, user_id, amount, points_type, source_id, source_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		award.ID, award.UserID, award.Amount, award.PointsType, award.SourceID, award.SourceType, award.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert point award: %w", userViolation(err))
	}

	if err := s.updateTotals(ctx, tx, updated, expectedVersion); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyAwardOnce is ApplyAward with a dedupe key on (user, points type,
// source). A duplicate insert is a no-op: the transaction is discarded,
// totals stay put, and the caller learns the award already paid out.
func (s *PostgresStore) ApplyAwardOnce(ctx context.Context, award models.PointAward, updated models.UserPointsTotal, expectedVersion int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin award tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO point_awards (id, user_id, amount, points_type, source_id, source_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, points_type, source_id) WHERE source_id <> '' DO NOTHING`,
		award.ID, award.UserID, award.Amount, award.PointsType, award.SourceID, award.SourceType, award.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert point award: %w", userViolation(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if err := s.updateTotals(ctx, tx, updated, expectedVersion); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// updateTotals runs the versioned totals upsert inside an award
// transaction. Zero rows means another writer advanced the row; the
// caller's deferred rollback then discards the award insert too.
func (s *PostgresStore) updateTotals(ctx context.Context, tx *sql.Tx, updated models.UserPointsTotal, expectedVersion int64) error {
	var res sql.Result
	var err error
	if expectedVersion == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO user_total_points (user_id, total_points, level, points_to_next_level, version, updated_at)
			 VALUES ($1, $2, $3, $4, 1, $5)
			 ON CONFLICT (user_id) DO NOTHING`,
			updated.UserID, updated.TotalPoints, updated.Level, updated.PointsToNextLevel, updated.UpdatedAt,
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE user_total_points SET
			    total_points = $2, level = $3, points_to_next_level = $4,
			    version = version + 1, updated_at = $5
			 WHERE user_id = $1 AND version = $6`,
			updated.UserID, updated.TotalPoints, updated.Level, updated.PointsToNextLevel,
			updated.UpdatedAt, expectedVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("upsert totals: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrConcurrentUpdate
	}
	return nil
}

func (s *PostgresStore) ListAwards(ctx context.Context, userID int64, limit, offset int) ([]models.PointAward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, points_type, COALESCE(source_id, ''), COALESCE(source_type, ''), created_at
		 FROM point_awards
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	defer rows.Close()

	var out []models.PointAward
	for rows.Next() {
		var a models.PointAward
		if err := rows.Scan(&a.ID, &a.UserID, &a.Amount, &a.PointsType, &a.SourceID, &a.SourceType, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan award: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SumAwards(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM point_awards WHERE user_id = $1`,
		userID,
	).Scan(&sum)
	return sum, err
}

func (s *PostgresStore) PointsByUserBetween(ctx context.Context, start, end time.Time) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, SUM(amount) FROM point_awards
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY user_id`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("points by user: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var userID, sum int64
		if err := rows.Scan(&userID, &sum); err != nil {
			return nil, err
		}
		out[userID] = sum
	}
	return out, rows.Err()
}

func (s *PostgresStore) AllTotals(ctx context.Context) ([]models.UserPointsTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, total_points, level, points_to_next_level, version, updated_at
		 FROM user_total_points`,
	)
	if err != nil {
		return nil, fmt.Errorf("all totals: %w", err)
	}
	defer rows.Close()

	var out []models.UserPointsTotal
	for rows.Next() {
		var t models.UserPointsTotal
		if err := rows.Scan(&t.UserID, &t.TotalPoints, &t.Level, &t.PointsToNextLevel, &t.Version, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceTotals(ctx context.Context, t models.UserPointsTotal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_total_points (user_id, total_points, level, points_to_next_level, version, updated_at)
		 VALUES ($1, $2, $3, $4, 1, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		    total_points = EXCLUDED.total_points,
		    level = EXCLUDED.level,
		    points_to_next_level = EXCLUDED.points_to_next_level,
		    version = user_total_points.version + 1,
		    updated_at = EXCLUDED.updated_at`,
		t.UserID, t.TotalPoints, t.Level, t.PointsToNextLevel, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("replace totals: %w", err)
	}
	return nil
}

// ── Streaks ─────────────────────────────────────────────

func (s *PostgresStore) GetStreak(ctx context.Context, userID int64, streakType string) (models.StreakState, error) {
	var st models.StreakState
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, streak_type, current_streak, longest_streak, last_activity_date
		 FROM user_streaks WHERE user_id = $1 AND streak_type = $2`,
		userID, streakType,
	).Scan(&st.UserID, &st.StreakType, &st.CurrentStreak, &st.LongestStreak, &st.LastActivityDate)
	if err == sql.ErrNoRows {
		return models.StreakState{UserID: userID, StreakType: streakType}, nil
	}
	if err != nil {
		return models.StreakState{}, fmt.Errorf("get streak: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListStreaks(ctx context.Context, userID int64) ([]models.StreakState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, streak_type, current_streak, longest_streak, last_activity_date
		 FROM user_streaks WHERE user_id = $1 ORDER BY streak_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}
	defer rows.Close()

	var out []models.StreakState
	for rows.Next() {
		var st models.StreakState
		if err := rows.Scan(&st.UserID, &st.StreakType, &st.CurrentStreak, &st.LongestStreak, &st.LastActivityDate); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertStreak(ctx context.Context, st models.StreakState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_streaks (user_id, streak_type, current_streak, longest_streak, last_activity_date)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, streak_type) DO UPDATE SET
		    current_streak = EXCLUDED.current_streak,
		    longest_streak = EXCLUDED.longest_streak,
		    last_activity_date = EXCLUDED.last_activity_date`,
		st.UserID, st.StreakType, st.CurrentStreak, st.LongestStreak, st.LastActivityDate,
	)
	if err != nil {
		return fmt.Errorf("upsert streak: %w", userViolation(err))
	}
	return nil
}

func (s *PostgresStore) StreaksByUser(ctx context.Context, streakType string) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, current_streak FROM user_streaks WHERE streak_type = $1`,
		streakType,
	)
	if err != nil {
		return nil, fmt.Errorf("streaks by user: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var userID, current int64
		if err := rows.Scan(&userID, &current); err != nil {
			return nil, err
		}
		out[userID] = current
	}
	return out, rows.Err()
}

// ── Unlocks ─────────────────────────────────────────────

func (s *PostgresStore) ListBadges(ctx context.Context, userID int64) ([]models.UserBadge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, badge_slug, earned_at FROM user_badges
		 WHERE user_id = $1 ORDER BY earned_at, badge_slug`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var out []models.UserBadge
	for rows.Next() {
		var b models.UserBadge
		if err := rows.Scan(&b.UserID, &b.BadgeSlug, &b.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertBadge(ctx context.Context, b models.UserBadge) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_badges (user_id, badge_slug, earned_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, badge_slug) DO NOTHING`,
		b.UserID, b.BadgeSlug, b.EarnedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert badge: %w", userViolation(err))
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PostgresStore) ListAchievements(ctx context.Context, userID int64) ([]models.UserAchievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, achievement_slug, completed_at FROM user_achievements
		 WHERE user_id = $1 ORDER BY completed_at, achievement_slug`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	var out []models.UserAchievement
	for rows.Next() {
		var a models.UserAchievement
		if err := rows.Scan(&a.UserID, &a.AchievementSlug, &a.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertAchievement(ctx context.Context, a models.UserAchievement) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_slug, completed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, achievement_slug) DO NOTHING`,
		a.UserID, a.AchievementSlug, a.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert achievement: %w", userViolation(err))
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ── Display names ───────────────────────────────────────

func (s *PostgresStore) DisplayNames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	if len(userIDs) == 0 {
		return map[int64]string{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM users WHERE id = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("display names: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = models.User{Name: name}.DisplayName()
	}
	return out, rows.Err()
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

// freshTotals is the zero-award totals row: level 1, a full level's worth
// of points to go, version 0 meaning "not yet persisted".
func freshTotals(userID int64) models.UserPointsTotal {
	return models.UserPointsTotal{
		UserID:            userID,
		TotalPoints:       0,
		Level:             LevelForPoints(0),
		PointsToNextLevel: PointsToNextLevel(0),
		Version:           0,
	}
}
