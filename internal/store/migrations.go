package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migrations run in order inside transactions; applied versions are recorded
// in schema_migrations so reruns are no-ops.
var migrations = []struct {
	version string
	sql     string
}{
	{
		version: "001_recordings",
		sql: `CREATE TABLE recordings (
			id TEXT PRIMARY KEY,
			filepath TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			sample_rate INTEGER NOT NULL,
			channels INTEGER NOT NULL,
			file_size_bytes INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	{
		version: "002_transcripts",
		sql: `CREATE TABLE transcripts (
			id TEXT PRIMARY KEY,
			recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			language TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			plugin_name TEXT NOT NULL,
			transcription_duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	{
		version: "003_chat_messages",
		sql: `CREATE TABLE chat_messages (
			id TEXT PRIMARY KEY,
			recording_id TEXT REFERENCES recordings(id) ON DELETE SET NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	{
		version: "004_transcript_recording_idx",
		sql:     `CREATE INDEX idx_transcripts_recording ON transcripts(recording_id)`,
	},
}

func runMigrations(db *sql.DB, log *slog.Logger) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.version, err)
		}
		log.Info("applied migration", "version", m.version)
	}
	return nil
}
