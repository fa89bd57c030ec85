// Package migrations applies the database schema at startup. Statements are
// idempotent so repeated application is safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		total_sessions INTEGER NOT NULL DEFAULT 0,
		total_retention_time INTEGER NOT NULL DEFAULT 0,
		best_retention_time INTEGER NOT NULL DEFAULT 0,
		current_streak INTEGER NOT NULL DEFAULT 0,
		longest_streak INTEGER NOT NULL DEFAULT 0,
		last_session_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		deleted_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique
		ON users (lower(email)) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_unique
		ON users (lower(username)) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS breath_sessions (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id),
		breaths_count INTEGER NOT NULL CHECK (breaths_count > 0),
		retention_time INTEGER NOT NULL CHECK (retention_time >= 0),
		recovery_time INTEGER NOT NULL DEFAULT 0 CHECK (recovery_time >= 0),
		duration_seconds INTEGER NOT NULL CHECK (duration_seconds > 0),
		session_date TIMESTAMPTZ NOT NULL,
		technique_variant TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		mood_before INTEGER CHECK (mood_before BETWEEN 1 AND 10),
		mood_after INTEGER CHECK (mood_after BETWEEN 1 AND 10),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS achievements (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		rarity TEXT NOT NULL,
		icon TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		criteria_type TEXT NOT NULL,
		criteria_value INTEGER NOT NULL CHECK (criteria_value > 0),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_hidden BOOLEAN NOT NULL DEFAULT FALSE,
		display_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_achievements (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users (id),
		achievement_id UUID NOT NULL REFERENCES achievements (id),
		progress_value INTEGER NOT NULL DEFAULT 0,
		unlocked_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, achievement_id)
	)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
