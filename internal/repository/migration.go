package repository

import (
	"context"
	"fmt"
)

// InitSchema creates the relay's tables and indexes. Statements are
// idempotent so the command can run against an existing database.
func InitSchema(ctx context.Context, db DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			handle        TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			display_name  TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS devices (
			identity       TEXT NOT NULL REFERENCES identities(handle) ON DELETE CASCADE,
			device_id      TEXT NOT NULL,
			public_key_pem TEXT NOT NULL,
			label          TEXT NOT NULL DEFAULT '',
			registered_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (identity, device_id)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_records (
			seq             BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender          TEXT NOT NULL,
			recipient       TEXT NOT NULL,
			envelope        JSONB NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_records_conversation
			ON conversation_records (conversation_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_records_sender
			ON conversation_records (sender)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_records_recipient
			ON conversation_records (recipient)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}

// Tables lists the relay's tables, referenced-last so they can be
// dropped in order.
func Tables() []string {
	return []string{"conversation_records", "devices", "identities"}
}

// DropSchema removes all relay tables.
func DropSchema(ctx context.Context, db DB) error {
	for _, table := range Tables() {
		if _, err := db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, table)); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}
	return nil
}

// TruncateAll empties all relay tables but keeps the schema.
func TruncateAll(ctx context.Context, db DB) error {
	for _, table := range Tables() {
		if _, err := db.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s CASCADE`, table)); err != nil {
			return fmt.Errorf("truncate table %s: %w", table, err)
		}
	}
	return nil
}

// TableExists reports whether a table is present in the public schema.
func TableExists(ctx context.Context, db DB, name string) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = $1
	)`
	var exists bool
	if err := db.QueryRow(ctx, q, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// TableCount returns the number of rows in a table.
func TableCount(ctx context.Context, db DB, name string) (int64, error) {
	var count int64
	if err := db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, name)).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
