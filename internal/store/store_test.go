package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/extrophi/voicejournal/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func sampleRecording() Recording {
	return Recording{
		Filepath:      "/tmp/rec.wav",
		DurationMS:    2500,
		SampleRate:    44100,
		Channels:      1,
		FileSizeBytes: 220500,
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestMigrationsIdempotentAcrossReopen(t *testing.T) {
	s, path := openTestStore(t)
	rec, err := s.CreateRecording(sampleRecording())
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	s.Close()

	// Reopening reruns the migration pass; applied versions are skipped and
	// existing rows survive.
	s2, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	entry, err := s2.GetEntry(rec.ID)
	if err != nil {
		t.Fatalf("GetEntry after reopen: %v", err)
	}
	if entry.Recording.Filepath != rec.Filepath {
		t.Errorf("Filepath = %q, want %q", entry.Recording.Filepath, rec.Filepath)
	}
}

func TestCreateRecordingAssignsID(t *testing.T) {
	s, _ := openTestStore(t)
	rec, err := s.CreateRecording(sampleRecording())
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	if rec.ID == "" {
		t.Error("CreateRecording left ID empty")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreateRecording left CreatedAt zero")
	}
}

func TestGetEntryWithTranscript(t *testing.T) {
	s, _ := openTestStore(t)
	rec, err := s.CreateRecording(sampleRecording())
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	_, err = s.CreateTranscript(Transcript{
		RecordingID:             rec.ID,
		Text:                    "first pass",
		Language:                "en",
		Confidence:              0.8,
		PluginName:              "vosk",
		TranscriptionDurationMS: 120,
	})
	if err != nil {
		t.Fatalf("CreateTranscript: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	_, err = s.CreateTranscript(Transcript{
		RecordingID: rec.ID,
		Text:        "second pass",
		Confidence:  0.9,
		PluginName:  "ctc",
	})
	if err != nil {
		t.Fatalf("CreateTranscript: %v", err)
	}

	entry, err := s.GetEntry(rec.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Transcript == nil {
		t.Fatal("entry has no transcript")
	}
	if entry.Transcript.Text != "second pass" {
		t.Errorf("Text = %q, want the latest transcript", entry.Transcript.Text)
	}
	if entry.Transcript.Language != "" {
		t.Errorf("Language = %q, want empty for the second transcript", entry.Transcript.Language)
	}
}

func TestGetEntryWithoutTranscript(t *testing.T) {
	s, _ := openTestStore(t)
	rec, err := s.CreateRecording(sampleRecording())
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}
	entry, err := s.GetEntry(rec.ID)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if entry.Transcript != nil {
		t.Error("entry without transcript should have nil Transcript")
	}
}

func TestGetEntryNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.GetEntry("no-such-id")
	if err == nil {
		t.Fatal("GetEntry on missing id should fail")
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindNotFound)
	}
}

func TestCreateTranscriptEnforcesForeignKey(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.CreateTranscript(Transcript{RecordingID: "orphan", Text: "x", PluginName: "vosk"})
	if err == nil {
		t.Fatal("transcript for a missing recording should fail")
	}
	if apperr.KindOf(err) != apperr.KindStorage {
		t.Errorf("error kind = %v, want %v", apperr.KindOf(err), apperr.KindStorage)
	}
}

func TestListEntriesNewestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.CreateRecording(sampleRecording())
		if err != nil {
			t.Fatalf("CreateRecording: %v", err)
		}
		ids = append(ids, rec.ID)
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := s.ListEntries(0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Recording.ID != ids[2] {
		t.Error("entries not newest-first")
	}

	limited, err := s.ListEntries(2)
	if err != nil {
		t.Fatalf("ListEntries(2): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d entries with limit 2", len(limited))
	}
}

func TestChatHistoryOrdered(t *testing.T) {
	s, _ := openTestStore(t)
	rec, err := s.CreateRecording(sampleRecording())
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	turns := []ChatMessage{
		{RecordingID: rec.ID, Role: "user", Content: "what did I talk about?"},
		{RecordingID: rec.ID, Role: "assistant", Content: "your morning run."},
		{RecordingID: rec.ID, Role: "user", Content: "anything else?"},
	}
	for _, m := range turns {
		if _, err := s.AddChatMessage(m); err != nil {
			t.Fatalf("AddChatMessage: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	history, err := s.ChatHistory(rec.ID)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d messages, want 3", len(history))
	}
	for i, m := range history {
		if m.Content != turns[i].Content {
			t.Errorf("message %d = %q, want %q", i, m.Content, turns[i].Content)
		}
	}
}

func TestBackup(t *testing.T) {
	s, _ := openTestStore(t)
	rec, err := s.CreateRecording(sampleRecording())
	if err != nil {
		t.Fatalf("CreateRecording: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := s.Backup(dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	// The snapshot is a standalone database with the same rows.
	b, err := Open(dest, testLogger())
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer b.Close()
	if _, err := b.GetEntry(rec.ID); err != nil {
		t.Errorf("backup missing recording: %v", err)
	}

	// Refusing to clobber an existing target.
	if err := s.Backup(dest); err == nil {
		t.Error("Backup onto an existing file should fail")
	}
}

func TestBackupQuotedPath(t *testing.T) {
	s, _ := openTestStore(t)

	// The destination is a bound parameter, so quote characters in the path
	// pass through without becoming part of the SQL.
	dest := filepath.Join(t.TempDir(), `journal "friday".db`)
	if err := s.Backup(dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("backup file not created: %v", err)
	}
}
