package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/discovery"
)

var syncQuiet bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the cache up to date with the transcript store",
	Long: `Walk the transcript store and re-index every file whose modification
time changed since the last pass. Session metadata is refreshed in the
same run so summary-only search and listings stay current.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVarP(&syncQuiet, "quiet", "q", false, "Suppress the progress bar")
}

func runSync(cmd *cobra.Command, args []string) error {
	engine, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = engine.Close() }()

	files, err := discovery.Find(cfg.TranscriptsDir, discovery.Options{})
	if err != nil {
		return fmt.Errorf("discover transcripts: %w", err)
	}

	var progress cache.ProgressFunc
	var reporter *progressReporter
	if !syncQuiet {
		reporter = newProgressReporter(os.Stderr)
		progress = reporter.Update
	}

	if _, err := engine.RecomputeStats(files, "", "", progress); err != nil {
		return fmt.Errorf("recompute statistics: %w", err)
	}
	if reporter != nil {
		reporter.Finish(len(files))
	}

	if err := engine.RefreshSessionMetadata(files); err != nil {
		return fmt.Errorf("refresh session metadata: %w", err)
	}

	totals, err := engine.Totals()
	if err != nil {
		return fmt.Errorf("read totals: %w", err)
	}
	fmt.Printf("Cache up to date: %s conversations, %s messages across %d projects.\n",
		humanize.Comma(int64(totals.TotalConversations)),
		humanize.Comma(int64(totals.TotalMessages)),
		totals.ProjectCount)
	return nil
}
