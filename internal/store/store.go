// Package store persists recordings, transcripts and journal chat in a
// local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/extrophi/voicejournal/internal/apperr"
)

// Recording is one captured audio file.
type Recording struct {
	ID            string
	Filepath      string
	DurationMS    uint64
	SampleRate    uint32
	Channels      uint16
	FileSizeBytes int64
	CreatedAt     time.Time
}

// Transcript is the text produced for a recording by one engine run.
type Transcript struct {
	ID                      string
	RecordingID             string
	Text                    string
	Language                string
	Confidence              float64
	PluginName              string
	TranscriptionDurationMS uint64
	CreatedAt               time.Time
}

// ChatMessage is one turn of reflective dialogue, optionally tied to a
// recording.
type ChatMessage struct {
	ID          string
	RecordingID string // empty when the message is not tied to a recording
	Role        string // "user" or "assistant"
	Content     string
	CreatedAt   time.Time
}

// Entry is a recording joined with its latest transcript, as listed in the
// journal.
type Entry struct {
	Recording  Recording
	Transcript *Transcript
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the journal database and applies pending
// migrations.
func Open(path string, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, err, "creating database directory")
		}
	}

	// The pragma rides on the DSN so every pooled connection enforces
	// foreign keys, not just the first.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "opening database %s", path)
	}

	if err := runMigrations(db, log); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindStorage, err, "migrating database %s", path)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateRecording inserts a recording row and returns it with a fresh ID.
func (s *Store) CreateRecording(rec Recording) (Recording, error) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO recordings (id, filepath, duration_ms, sample_rate, channels, file_size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filepath, rec.DurationMS, rec.SampleRate, rec.Channels, rec.FileSizeBytes, rec.CreatedAt,
	)
	if err != nil {
		return Recording{}, apperr.Wrap(apperr.KindStorage, err, "inserting recording")
	}
	return rec, nil
}

// CreateTranscript inserts a transcript row for a recording.
func (s *Store) CreateTranscript(tr Transcript) (Transcript, error) {
	tr.ID = uuid.NewString()
	tr.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO transcripts (id, recording_id, text, language, confidence, plugin_name, transcription_duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.RecordingID, tr.Text, nullable(tr.Language), tr.Confidence, tr.PluginName, tr.TranscriptionDurationMS, tr.CreatedAt,
	)
	if err != nil {
		return Transcript{}, apperr.Wrap(apperr.KindStorage, err, "inserting transcript")
	}
	return tr, nil
}

// AddChatMessage appends one dialogue turn.
func (s *Store) AddChatMessage(msg ChatMessage) (ChatMessage, error) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO chat_messages (id, recording_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, nullable(msg.RecordingID), msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return ChatMessage{}, apperr.Wrap(apperr.KindStorage, err, "inserting chat message")
	}
	return msg, nil
}

// GetEntry returns a recording with its most recent transcript.
func (s *Store) GetEntry(recordingID string) (Entry, error) {
	var rec Recording
	err := s.db.QueryRow(
		`SELECT id, filepath, duration_ms, sample_rate, channels, file_size_bytes, created_at
		 FROM recordings WHERE id = ?`, recordingID,
	).Scan(&rec.ID, &rec.Filepath, &rec.DurationMS, &rec.SampleRate, &rec.Channels, &rec.FileSizeBytes, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, apperr.E(apperr.KindNotFound, "recording %s not found", recordingID)
	}
	if err != nil {
		return Entry{}, apperr.Wrap(apperr.KindStorage, err, "loading recording %s", recordingID)
	}

	entry := Entry{Recording: rec}
	var tr Transcript
	var lang sql.NullString
	err = s.db.QueryRow(
		`SELECT id, recording_id, text, language, confidence, plugin_name, transcription_duration_ms, created_at
		 FROM transcripts WHERE recording_id = ? ORDER BY created_at DESC LIMIT 1`, recordingID,
	).Scan(&tr.ID, &tr.RecordingID, &tr.Text, &lang, &tr.Confidence, &tr.PluginName, &tr.TranscriptionDurationMS, &tr.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Recording without a transcript is a valid entry.
	case err != nil:
		return Entry{}, apperr.Wrap(apperr.KindStorage, err, "loading transcript for %s", recordingID)
	default:
		tr.Language = lang.String
		entry.Transcript = &tr
	}
	return entry, nil
}

// ListEntries returns the newest-first journal, up to limit entries
// (limit <= 0 means no limit).
func (s *Store) ListEntries(limit int) ([]Entry, error) {
	q := `SELECT id, filepath, duration_ms, sample_rate, channels, file_size_bytes, created_at
	      FROM recordings ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "listing recordings")
	}
	defer rows.Close()

	var ids []string
	var entries []Entry
	for rows.Next() {
		var rec Recording
		if err := rows.Scan(&rec.ID, &rec.Filepath, &rec.DurationMS, &rec.SampleRate, &rec.Channels, &rec.FileSizeBytes, &rec.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, err, "scanning recording")
		}
		entries = append(entries, Entry{Recording: rec})
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "listing recordings")
	}

	for i, id := range ids {
		e, err := s.GetEntry(id)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

// ChatHistory returns the dialogue for a recording, oldest first.
func (s *Store) ChatHistory(recordingID string) ([]ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, recording_id, role, content, created_at FROM chat_messages
		 WHERE recording_id = ? ORDER BY created_at ASC`, recordingID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, err, "loading chat history")
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var recID sql.NullString
		if err := rows.Scan(&m.ID, &recID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, err, "scanning chat message")
		}
		m.RecordingID = recID.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Backup writes a consistent snapshot of the database to destPath using
// VACUUM INTO.
func (s *Store) Backup(destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		return apperr.E(apperr.KindIO, "backup target %s already exists", destPath)
	}
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return apperr.Wrap(apperr.KindStorage, err, "backing up database to %s", destPath)
	}
	s.log.Info("database backed up", "dest", destPath)
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
