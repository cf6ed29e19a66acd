package database

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

func Connect() (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "nursehub_user")
	password := getEnv("DB_PASSWORD", "nursehub_password")
	dbname := getEnv("DB_NAME", "nursehub")
	sslmode := getEnv("DB_SSLMODE", "disable")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func Migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		password VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS user_session_progress (
		user_id               BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		topic_id              VARCHAR(100) NOT NULL,
		session_id            VARCHAR(100) NOT NULL,
		completed_section_ids TEXT[] NOT NULL DEFAULT '{}',
		status                VARCHAR(20) NOT NULL DEFAULT 'not-started',
		last_quiz_score       DOUBLE PRECISION,
		version               BIGINT NOT NULL DEFAULT 1,
		updated_at            TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (user_id, session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_progress_user ON user_session_progress(user_id);
	CREATE INDEX IF NOT EXISTS idx_progress_topic ON user_session_progress(user_id, topic_id);

	CREATE TABLE IF NOT EXISTS point_awards (
		id          UUID PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount      BIGINT NOT NULL,
		points_type VARCHAR(50) NOT NULL,
		source_id   VARCHAR(100),
		source_type VARCHAR(50),
		created_at  TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_awards_user ON point_awards(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_awards_window ON point_awards(created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_awards_source
		ON point_awards(user_id, points_type, source_id) WHERE source_id <> '';

	CREATE TABLE IF NOT EXISTS user_total_points (
		user_id              BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		total_points         BIGINT NOT NULL DEFAULT 0,
		level                INT NOT NULL DEFAULT 1,
		points_to_next_level BIGINT NOT NULL DEFAULT 100,
		version              BIGINT NOT NULL DEFAULT 1,
		updated_at           TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_totals_points ON user_total_points(total_points DESC);

	CREATE TABLE IF NOT EXISTS user_streaks (
		user_id            BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		streak_type        VARCHAR(50) NOT NULL,
		current_streak     INT NOT NULL DEFAULT 0,
		longest_streak     INT NOT NULL DEFAULT 0,
		last_activity_date TIMESTAMP WITH TIME ZONE,
		PRIMARY KEY (user_id, streak_type)
	);

	CREATE INDEX IF NOT EXISTS idx_streaks_type ON user_streaks(streak_type, current_streak DESC);

	CREATE TABLE IF NOT EXISTS user_badges (
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		badge_slug VARCHAR(100) NOT NULL,
		earned_at  TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (user_id, badge_slug)
	);

	CREATE TABLE IF NOT EXISTS user_achievements (
		user_id          BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		achievement_slug VARCHAR(100) NOT NULL,
		completed_at     TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (user_id, achievement_slug)
	);
	`

	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
