package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genesiscz/cchistory/internal/core/config"
	"github.com/genesiscz/cchistory/internal/core/logging"
)

var (
	cfg            *config.Config
	transcriptsDir string
	dbPath         string
	appVersion     = "dev"
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	appVersion = version
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cchistory",
	Short: "Search and statistics over Claude Code transcripts",
	Long: `cchistory - incremental search and usage statistics across your
Claude Code conversation transcripts.

Full-text, exact, regex, commit and summary-only search plus daily
usage aggregates, served from an mtime-invalidated SQLite cache so
repeat queries never re-read unchanged files.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		if transcriptsDir != "" {
			cfg.TranscriptsDir = transcriptsDir
		}
		if dbPath != "" {
			cfg.CachePath = dbPath
		}
		logging.Init(logging.Config{
			LogDir: cfg.LogDir,
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Shutdown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&transcriptsDir, "dir", "", "Transcript root directory (default ~/.claude/projects)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Cache database path (default ~/.config/cchistory/cache.db)")
}
