package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// migrations are applied in order; every statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id            TEXT PRIMARY KEY,
		name               TEXT NOT NULL DEFAULT '',
		email              TEXT NOT NULL DEFAULT '',
		avatar_url         TEXT NOT NULL DEFAULT '',
		stripe_customer_id TEXT UNIQUE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Append-only: the application never issues UPDATE or DELETE against credit_logs.
	// NULL references are distinct, so only referenced entries are deduplicated.
	`CREATE TABLE IF NOT EXISTS credit_logs (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    TEXT NOT NULL,
		delta      INTEGER NOT NULL CHECK (delta <> 0),
		reason     TEXT NOT NULL,
		reference  TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		UNIQUE (user_id, reference)
	)`,
	`CREATE INDEX IF NOT EXISTS credit_logs_user_created_idx ON credit_logs (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS generated_images (
		id                 UUID PRIMARY KEY,
		user_id            TEXT NOT NULL,
		url                TEXT NOT NULL,
		storage_path       TEXT,
		prompt             TEXT NOT NULL,
		style              TEXT NOT NULL,
		size               TEXT NOT NULL,
		format             TEXT NOT NULL,
		generation_time_ms BIGINT,
		idempotency_key    TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS generated_images_user_created_idx ON generated_images (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id             TEXT NOT NULL,
		provider_payment_id TEXT NOT NULL UNIQUE,
		amount_cents        BIGINT NOT NULL DEFAULT 0,
		currency            TEXT NOT NULL DEFAULT 'usd',
		credits             INTEGER NOT NULL DEFAULT 0,
		status              TEXT NOT NULL,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS payments_user_created_idx ON payments (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS payments_pending_idx ON payments (status) WHERE status = 'pending'`,
}

// Apply runs all migrations against db in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Migrate opens a short-lived database/sql connection and applies all migrations.
func Migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()
	return Apply(ctx, db)
}
