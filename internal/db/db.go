package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Connect opens the Postgres pool and applies the schema.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info().Msg("postgres connection established")
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            nickname VARCHAR(50) NOT NULL UNIQUE,
            profile_color VARCHAR(20) NOT NULL DEFAULT '#4f85c8',
            profile_image TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_active_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS chat_rooms (
            id BIGSERIAL PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            image_ref TEXT NOT NULL DEFAULT '',
            creator_id BIGINT NOT NULL REFERENCES users(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            active BOOLEAN NOT NULL DEFAULT TRUE,
            version BIGINT NOT NULL DEFAULT 0
        );`,
		`CREATE INDEX IF NOT EXISTS idx_chat_rooms_active_created ON chat_rooms (active, created_at DESC);`,
		`CREATE TABLE IF NOT EXISTS chat_room_members (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL REFERENCES chat_rooms(id),
            user_id BIGINT NOT NULL REFERENCES users(id),
            joined_at TIMESTAMPTZ NOT NULL,
            left_at TIMESTAMPTZ,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            online BOOLEAN NOT NULL DEFAULT TRUE,
            last_active_at TIMESTAMPTZ NOT NULL,
            last_read_message_id BIGINT,
            UNIQUE (room_id, user_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_members_user_active ON chat_room_members (user_id, active);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            room_id BIGINT NOT NULL REFERENCES chat_rooms(id),
            sender_id BIGINT REFERENCES users(id),
            message_type VARCHAR(16) NOT NULL,
            content TEXT NOT NULL,
            sent_at TIMESTAMPTZ NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT FALSE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages (room_id, id) WHERE deleted = FALSE;`,
		`CREATE TABLE IF NOT EXISTS attachments (
            id BIGSERIAL PRIMARY KEY,
            message_id BIGINT NOT NULL UNIQUE REFERENCES messages(id),
            media_kind VARCHAR(16) NOT NULL,
            file_name TEXT NOT NULL DEFAULT '',
            file_ref TEXT NOT NULL
        );`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
