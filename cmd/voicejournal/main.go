// Command voicejournal is a voice-journaling CLI: record microphone audio,
// transcribe it with the configured engine, keep the journal in SQLite and
// optionally reflect on entries via an LLM.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/extrophi/voicejournal/internal/audio"
	"github.com/extrophi/voicejournal/internal/config"
	"github.com/extrophi/voicejournal/internal/export"
	"github.com/extrophi/voicejournal/internal/hotkey"
	"github.com/extrophi/voicejournal/internal/llm"
	"github.com/extrophi/voicejournal/internal/models"
	"github.com/extrophi/voicejournal/internal/secrets"
	"github.com/extrophi/voicejournal/internal/store"
	"github.com/extrophi/voicejournal/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/voicejournal/config.yaml)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var cmdErr error
	switch args[0] {
	case "record":
		cmdErr = runRecord(cfg, log)
	case "transcribe":
		if len(args) < 2 {
			cmdErr = fmt.Errorf("usage: voicejournal transcribe <file.wav>")
			break
		}
		cmdErr = runTranscribeFile(cfg, log, args[1])
	case "list":
		cmdErr = runList(cfg, log)
	case "export":
		if len(args) < 2 {
			cmdErr = fmt.Errorf("usage: voicejournal export <recording-id>")
			break
		}
		cmdErr = runExport(cfg, log, args[1])
	case "reflect":
		if len(args) < 3 {
			cmdErr = fmt.Errorf("usage: voicejournal reflect <recording-id> <message>")
			break
		}
		cmdErr = runReflect(cfg, log, args[1], strings.Join(args[2:], " "))
	case "key":
		cmdErr = runKey(args[1:])
	case "models":
		cmdErr = runModels(args[1:])
	case "devices":
		cmdErr = runDevices()
	case "backup":
		if len(args) < 2 {
			cmdErr = fmt.Errorf("usage: voicejournal backup <dest.db>")
			break
		}
		cmdErr = runBackup(cfg, log, args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `voicejournal - voice journaling with local transcription

Usage: voicejournal [flags] <command>

Commands:
  record                    capture a journal entry (Enter or hotkey to stop)
  transcribe <file.wav>     transcribe an existing WAV file
  list                      list journal entries
  export <recording-id>     render an entry as markdown
  reflect <id> <message>    discuss an entry with the configured LLM
  key set|delete <provider> manage API keys in the OS keyring
  models download           fetch the default Vosk model
  devices                   list capture devices
  backup <dest.db>          snapshot the journal database

Flags:
`)
	flag.PrintDefaults()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return config.Load(defaultPath)
	}
	return config.Default(), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildManager registers every engine whose model is present and activates
// the configured backend.
func buildManager(cfg *config.Config, log *slog.Logger) (*transcribe.Manager, error) {
	mgr := transcribe.NewManager(log)

	if vp, err := transcribe.NewVoskPlugin(cfg.Engine.VoskModelPath, cfg.Engine.Language, log); err != nil {
		log.Warn("vosk engine unavailable", "error", err)
	} else if err := mgr.Register(vp); err != nil {
		return nil, err
	}

	if cp, err := transcribe.NewCTCPlugin(cfg.Engine.CTCModelPath, log); err != nil {
		log.Warn("ctc engine unavailable", "error", err)
	} else if err := mgr.Register(cp); err != nil {
		return nil, err
	}

	if len(mgr.ListPlugins()) == 0 {
		return nil, fmt.Errorf("no transcription engine available; run 'voicejournal models' first")
	}

	if mgr.ActiveName() != cfg.Engine.Backend {
		if err := mgr.SwitchPlugin(cfg.Engine.Backend); err != nil {
			log.Warn("configured backend unavailable, keeping default", "backend", cfg.Engine.Backend, "active", mgr.ActiveName())
		}
	}

	active, err := mgr.GetActive()
	if err != nil {
		return nil, err
	}
	if err := active.Initialize(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func runRecord(cfg *config.Config, log *slog.Logger) error {
	mgr, err := buildManager(cfg, log)
	if err != nil {
		return err
	}
	defer mgr.ShutdownAll()

	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := audio.NewRecorder(audio.RecorderConfig{
		SampleRate:   cfg.Audio.SampleRate,
		BufferFrames: cfg.Audio.BufferFrames,
	}, log)
	if err != nil {
		return err
	}
	loop := audio.StartLoop(rec, log)
	defer loop.Shutdown()

	if cfg.Hotkey.Enabled {
		return recordWithHotkey(cfg, log, loop, mgr, st)
	}
	return recordInteractive(cfg, log, loop, mgr, st)
}

func recordInteractive(cfg *config.Config, log *slog.Logger, loop *audio.Loop, mgr *transcribe.Manager, st *store.Store) error {
	if err := loop.Start(); err != nil {
		return err
	}
	fmt.Println("Recording... press Enter to stop.")

	done := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
meter:
	for {
		select {
		case <-ticker.C:
			fmt.Printf("\rlevel: %s", levelBar(loop.PeakLevel()))
		case <-done:
			break meter
		case <-sigCh:
			fmt.Println()
			break meter
		}
	}
	fmt.Println()

	samples, err := loop.Stop()
	if err != nil {
		return err
	}
	return saveEntry(cfg, log, st, mgr, samples, loop.SampleRate())
}

func recordWithHotkey(cfg *config.Config, log *slog.Logger, loop *audio.Loop, mgr *transcribe.Manager, st *store.Store) error {
	listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.Mode)
	go listener.Run()
	defer listener.Stop()

	fmt.Printf("Ready. Press %s to record (%s mode), Ctrl+C to quit.\n",
		strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev, ok := <-listener.Events():
			if !ok {
				return nil
			}
			switch ev {
			case hotkey.StartRecording:
				if err := loop.Start(); err != nil {
					log.Error("starting recording", "error", err)
					continue
				}
				fmt.Println("Recording...")
			case hotkey.StopRecording:
				samples, err := loop.Stop()
				if err != nil {
					log.Error("stopping recording", "error", err)
					continue
				}
				if err := saveEntry(cfg, log, st, mgr, samples, loop.SampleRate()); err != nil {
					log.Error("saving entry", "error", err)
				}
			}
		case <-sigCh:
			fmt.Println("\nShutting down.")
			return nil
		}
	}
}

// saveEntry persists the capture before attempting transcription, so a
// failed or crashed transcription never loses the audio.
func saveEntry(cfg *config.Config, log *slog.Logger, st *store.Store, mgr *transcribe.Manager, samples []float32, captureRate uint32) error {
	if len(samples) == 0 {
		fmt.Println("Nothing captured.")
		return nil
	}

	resampled := audio.Resample(samples, captureRate, transcribe.RequiredSampleRate)
	audioData := &transcribe.AudioData{
		Samples:    resampled,
		SampleRate: transcribe.RequiredSampleRate,
		Channels:   1,
	}

	if err := os.MkdirAll(cfg.Storage.RecordingsDir, 0o755); err != nil {
		return fmt.Errorf("creating recordings dir: %w", err)
	}
	wavPath := filepath.Join(cfg.Storage.RecordingsDir,
		time.Now().UTC().Format("20060102-150405")+".wav")
	if err := audio.WriteWAV(wavPath, resampled, transcribe.RequiredSampleRate); err != nil {
		return err
	}
	info, err := os.Stat(wavPath)
	if err != nil {
		return fmt.Errorf("stat recording: %w", err)
	}

	rec, err := st.CreateRecording(store.Recording{
		Filepath:      wavPath,
		DurationMS:    audioData.DurationMS(),
		SampleRate:    transcribe.RequiredSampleRate,
		Channels:      1,
		FileSizeBytes: info.Size(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s (%0.1fs) as entry %s\n", wavPath, float64(audioData.DurationMS())/1000, rec.ID)

	start := time.Now()
	result, err := mgr.Transcribe(audioData)
	if err != nil {
		// The recording is already durable; report and keep going.
		log.Error("transcription failed", "recording", rec.ID, "error", err)
		return nil
	}

	conf := averageConfidence(result.Segments)
	if _, err := st.CreateTranscript(store.Transcript{
		RecordingID:             rec.ID,
		Text:                    result.Text,
		Language:                result.Language,
		Confidence:              conf,
		PluginName:              mgr.ActiveName(),
		TranscriptionDurationMS: uint64(time.Since(start).Milliseconds()),
	}); err != nil {
		return err
	}

	fmt.Printf("Transcript (%s): %s\n", mgr.ActiveName(), result.Text)
	return nil
}

func runTranscribeFile(cfg *config.Config, log *slog.Logger, path string) error {
	samples, rate, err := audio.ReadWAV(path)
	if err != nil {
		return err
	}
	mgr, err := buildManager(cfg, log)
	if err != nil {
		return err
	}
	defer mgr.ShutdownAll()

	result, err := mgr.Transcribe(&transcribe.AudioData{
		Samples:    audio.Resample(samples, rate, transcribe.RequiredSampleRate),
		SampleRate: transcribe.RequiredSampleRate,
		Channels:   1,
	})
	if err != nil {
		return err
	}
	fmt.Println(result.Text)
	return nil
}

func runList(cfg *config.Config, log *slog.Logger) error {
	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ListEntries(50)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No entries yet. Run 'voicejournal record'.")
		return nil
	}
	for _, e := range entries {
		summary := "(no transcript)"
		if e.Transcript != nil {
			summary = e.Transcript.Text
			if len(summary) > 60 {
				summary = summary[:57] + "..."
			}
		}
		fmt.Printf("%s  %s  %s\n", e.Recording.ID, e.Recording.CreatedAt.Format("2006-01-02 15:04"), summary)
	}
	return nil
}

func runExport(cfg *config.Config, log *slog.Logger, id string) error {
	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	entry, err := st.GetEntry(id)
	if err != nil {
		return err
	}
	chat, err := st.ChatHistory(id)
	if err != nil {
		return err
	}
	fmt.Print(export.RenderMarkdown(entry, chat))
	return nil
}

func runReflect(cfg *config.Config, log *slog.Logger, id, message string) error {
	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	entry, err := st.GetEntry(id)
	if err != nil {
		return err
	}
	if entry.Transcript == nil {
		return fmt.Errorf("entry %s has no transcript to reflect on", id)
	}

	apiKey, err := secrets.GetAPIKey(cfg.LLM.Provider)
	if err != nil {
		return err
	}
	provider, err := llm.New(cfg.LLM.Provider, apiKey)
	if err != nil {
		return err
	}

	history, err := st.ChatHistory(id)
	if err != nil {
		return err
	}

	msgs := []llm.Message{{
		Role: "system",
		Content: "You are a thoughtful journaling companion. The user recorded this entry:\n\n" +
			entry.Transcript.Text,
	}}
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: message})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	resp, err := provider.Chat(ctx, llm.ChatRequest{Model: cfg.LLM.Model, Messages: msgs})
	if err != nil {
		return err
	}

	if _, err := st.AddChatMessage(store.ChatMessage{RecordingID: id, Role: "user", Content: message}); err != nil {
		return err
	}
	if _, err := st.AddChatMessage(store.ChatMessage{RecordingID: id, Role: "assistant", Content: resp.Content}); err != nil {
		return err
	}

	fmt.Println(resp.Content)
	return nil
}

func runKey(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: voicejournal key set|delete <provider>")
	}
	action, provider := args[0], args[1]
	switch action {
	case "set":
		fmt.Printf("Enter API key for %s: ", provider)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading key: %w", err)
		}
		if err := secrets.SetAPIKey(provider, strings.TrimSpace(line)); err != nil {
			return err
		}
		fmt.Println("Stored.")
		return nil
	case "delete":
		if err := secrets.DeleteAPIKey(provider); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	default:
		return fmt.Errorf("unknown key action %q", action)
	}
}

func runModels(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: voicejournal models download")
	}
	switch args[0] {
	case "download":
		return models.DownloadVosk()
	default:
		return fmt.Errorf("unknown models action %q", args[0])
	}
}

func runDevices() error {
	devices, err := audio.ListCaptureDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No capture devices found.")
		return nil
	}
	for i, d := range devices {
		marker := ""
		if d.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Printf("%d. %s%s\n", i+1, d.Name, marker)
	}
	return nil
}

func runBackup(cfg *config.Config, log *slog.Logger, dest string) error {
	st, err := store.Open(cfg.Storage.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Backup(dest); err != nil {
		return err
	}
	fmt.Printf("Backup written to %s\n", dest)
	return nil
}

// averageConfidence reduces segment confidences to one row-level value.
func averageConfidence(segments []transcribe.TranscriptSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segments {
		sum += float64(s.Confidence)
	}
	return sum / float64(len(segments))
}

// levelBar renders the live peak meter.
func levelBar(peak float32) string {
	const width = 30
	n := int(peak * width)
	if n > width {
		n = width
	}
	return "[" + strings.Repeat("#", n) + strings.Repeat("-", width-n) + "]"
}
