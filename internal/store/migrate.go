package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables every sattur database carries. Statements are
// idempotent so Open can run them on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence      INTEGER NOT NULL,
		timestamp_ms  INTEGER NOT NULL,
		provider      TEXT NOT NULL DEFAULT '',
		model         TEXT NOT NULL DEFAULT '',
		purpose       TEXT NOT NULL DEFAULT '',
		session_id    TEXT NOT NULL DEFAULT '',
		streamed      INTEGER NOT NULL DEFAULT 0,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    INTEGER NOT NULL DEFAULT 0,
		success       INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_request_events_sequence ON llm_request_events(sequence)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id                TEXT PRIMARY KEY,
		unlocked_lesson   INTEGER NOT NULL DEFAULT 1,
		previous_query    TEXT,
		previous_response TEXT,
		updated_at_ms     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS index_meta (
		domain       TEXT PRIMARY KEY,
		embedder     TEXT NOT NULL,
		dimensions   INTEGER NOT NULL,
		chunk_count  INTEGER NOT NULL,
		built_at_ms  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS index_chunks (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		domain    TEXT NOT NULL REFERENCES index_meta(domain) ON DELETE CASCADE,
		source    TEXT NOT NULL,
		position  INTEGER NOT NULL,
		content   TEXT NOT NULL,
		embedding TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_index_chunks_domain ON index_chunks(domain, id)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema: %w", err)
		}
	}
	return nil
}
