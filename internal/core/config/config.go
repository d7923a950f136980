package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the tool configuration.
type Config struct {
	// TranscriptsDir is the root of the transcript store.
	TranscriptsDir string
	// CachePath is the SQLite cache database file.
	CachePath string
	// LogDir receives rotated log files; empty disables file logging.
	LogDir string
	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string
	// LogFormat is "json" (default) or "text".
	LogFormat string
}

type tomlConfig struct {
	TranscriptsDir string `toml:"transcripts_dir"`
	CachePath      string `toml:"cache_path"`
	LogDir         string `toml:"log_dir"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
}

// Load reads config from ~/.config/cchistory/config.toml, falling
// back to defaults when the file or individual keys are absent.
func Load() (*Config, error) {
	cfg := defaults()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil // use defaults
	}

	tomlPath := filepath.Join(home, ".config", "cchistory", "config.toml")
	if _, err := os.Stat(tomlPath); err != nil {
		return cfg, nil
	}

	var tc tomlConfig
	if _, err := toml.DecodeFile(tomlPath, &tc); err != nil {
		return cfg, nil // malformed config falls back to defaults
	}

	if tc.TranscriptsDir != "" {
		cfg.TranscriptsDir = tc.TranscriptsDir
	}
	if tc.CachePath != "" {
		cfg.CachePath = tc.CachePath
	}
	if tc.LogDir != "" {
		cfg.LogDir = tc.LogDir
	}
	if tc.LogLevel != "" {
		cfg.LogLevel = tc.LogLevel
	}
	if tc.LogFormat != "" {
		cfg.LogFormat = tc.LogFormat
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{LogLevel: "info", LogFormat: "json"}

	home, err := os.UserHomeDir()
	if err != nil {
		cfg.TranscriptsDir = filepath.Join("~", ".claude", "projects")
		cfg.CachePath = filepath.Join("~", ".config", "cchistory", "cache.db")
		return cfg
	}
	cfg.TranscriptsDir = filepath.Join(home, ".claude", "projects")
	cfg.CachePath = filepath.Join(home, ".config", "cchistory", "cache.db")
	return cfg
}
