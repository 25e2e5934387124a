// Package config loads and validates the YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig  `yaml:"engine"`
	Audio    AudioConfig   `yaml:"audio"`
	Hotkey   HotkeyConfig  `yaml:"hotkey"`
	Storage  StorageConfig `yaml:"storage"`
	LLM      LLMConfig     `yaml:"llm"`
	LogLevel string        `yaml:"log_level"`
}

// EngineConfig selects and locates the transcription engines.
type EngineConfig struct {
	Backend       string `yaml:"backend"` // "vosk" or "ctc"
	VoskModelPath string `yaml:"vosk_model_path"`
	CTCModelPath  string `yaml:"ctc_model_path"`
	Language      string `yaml:"language"`
}

// AudioConfig holds capture settings. The capture rate is independent of the
// 16 kHz the engines require; resampling happens on the save path.
type AudioConfig struct {
	SampleRate   uint32 `yaml:"sample_rate"`
	BufferFrames uint32 `yaml:"buffer_frames"`
}

// HotkeyConfig holds push-to-talk settings.
type HotkeyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Keys    []string `yaml:"keys"`
	Mode    string   `yaml:"mode"` // "hold" or "toggle"
}

// StorageConfig locates the journal database and recording files.
type StorageConfig struct {
	DatabasePath  string `yaml:"database_path"`
	RecordingsDir string `yaml:"recordings_dir"`
}

// LLMConfig selects the reflection provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "anthropic" or "openai"
	Model    string `yaml:"model"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicejournal")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory holding models, recordings and the
// journal database.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "voicejournal")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	data := DefaultDataDir()
	return &Config{
		Engine: EngineConfig{
			Backend:       "vosk",
			VoskModelPath: filepath.Join(data, "models", "vosk-model-small-en-us-0.15"),
			CTCModelPath:  filepath.Join(data, "models", "ctc-acoustic.json"),
			Language:      "en",
		},
		Audio: AudioConfig{
			SampleRate:   44100,
			BufferFrames: 512,
		},
		Hotkey: HotkeyConfig{
			Enabled: false,
			Keys:    []string{"ctrl", "shift", "j"},
			Mode:    "toggle",
		},
		Storage: StorageConfig{
			DatabasePath:  filepath.Join(data, "journal.db"),
			RecordingsDir: filepath.Join(data, "recordings"),
		},
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-3-haiku-20240307",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Engine.VoskModelPath = expandTilde(cfg.Engine.VoskModelPath)
	cfg.Engine.CTCModelPath = expandTilde(cfg.Engine.CTCModelPath)
	cfg.Storage.DatabasePath = expandTilde(cfg.Storage.DatabasePath)
	cfg.Storage.RecordingsDir = expandTilde(cfg.Storage.RecordingsDir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "vosk", "ctc":
	default:
		return fmt.Errorf("engine.backend must be \"vosk\" or \"ctc\", got %q", c.Engine.Backend)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Hotkey.Enabled {
		if len(c.Hotkey.Keys) == 0 {
			return fmt.Errorf("hotkey.keys must not be empty when hotkey is enabled")
		}
		switch c.Hotkey.Mode {
		case "hold", "toggle":
		default:
			return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
		}
	}

	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path must not be empty")
	}
	if c.Storage.RecordingsDir == "" {
		return fmt.Errorf("storage.recordings_dir must not be empty")
	}

	switch c.LLM.Provider {
	case "anthropic", "openai", "":
	default:
		return fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", c.LLM.Provider)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
