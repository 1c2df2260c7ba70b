package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"livestream-chat/internal/logging"
)

// Connect opens the Postgres pool.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

// Migrations creates the chat schema. users and livestreams belong to other
// services; they are created here only so a fresh database is usable.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            full_name TEXT NOT NULL DEFAULT ''
        );`,
	`CREATE TABLE IF NOT EXISTS livestreams (
            id TEXT PRIMARY KEY,
            channel_id TEXT NOT NULL,
            chat_enabled BOOLEAN NOT NULL DEFAULT TRUE
        );`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id UUID PRIMARY KEY,
            seq BIGSERIAL NOT NULL,
            livestream_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            content TEXT NOT NULL,
            parent_id UUID REFERENCES chat_messages(id),
            status TEXT NOT NULL DEFAULT 'active',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`ALTER TABLE chat_messages ADD COLUMN IF NOT EXISTS seq BIGSERIAL NOT NULL;`,
	`DROP INDEX IF EXISTS idx_chat_messages_livestream_created;`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_livestream_created_seq
            ON chat_messages (livestream_id, created_at DESC, seq DESC);`,
	`CREATE TABLE IF NOT EXISTS livestream_bans (
            livestream_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            banned_by TEXT NOT NULL,
            reason TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (livestream_id, user_id)
        );`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range Migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	l := logging.L()
	l.Info().Int("statements", len(Migrations)).Msg("database migrations applied")
	return nil
}
