package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/discovery"
	"github.com/genesiscz/cchistory/internal/core/models"
)

var (
	statsFrom    string
	statsTo      string
	statsJSON    bool
	statsNoBar   bool
	statsProject string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	Long: `Display usage statistics aggregated from the transcript store.

Only files whose modification time changed since the last pass are
re-read; everything else is served from the cache. Use --from/--to
to scope to a date range (served purely from cache when possible).`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "Start date (YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "End date (YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&statsProject, "project", "", "Limit discovery to a project (substring)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Emit statistics as JSON")
	statsCmd.Flags().BoolVar(&statsNoBar, "no-progress", false, "Suppress the progress bar")
}

func runStats(cmd *cobra.Command, args []string) error {
	engine, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = engine.Close() }()

	files, err := discovery.Find(cfg.TranscriptsDir, discovery.Options{Project: statsProject})
	if err != nil {
		return fmt.Errorf("discover transcripts: %w", err)
	}

	var progress cache.ProgressFunc
	var reporter *progressReporter
	if !statsJSON && !statsNoBar {
		reporter = newProgressReporter(os.Stderr)
		progress = reporter.Update
	}

	var stats *models.AggregatedStats
	if statsFrom != "" && statsTo != "" {
		stats, err = engine.StatsForDateRange(files, statsFrom, statsTo, progress)
	} else {
		stats, err = engine.RecomputeStats(files, statsFrom, statsTo, progress)
	}
	if err != nil {
		return fmt.Errorf("compute statistics: %w", err)
	}
	if reporter != nil {
		reporter.Finish(len(files))
	}

	if statsJSON {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	fmt.Println("Usage Statistics")
	fmt.Println("================")
	fmt.Println()
	fmt.Printf("Conversations:     %s\n", humanize.Comma(int64(stats.TotalConversations)))
	fmt.Printf("Messages:          %s\n", humanize.Comma(int64(stats.TotalMessages)))
	fmt.Printf("Subagent sessions: %s\n", humanize.Comma(int64(stats.SubagentSessions)))
	fmt.Printf("Projects:          %d\n", stats.ProjectCount)
	fmt.Println()

	printTopCounts("Tools", stats.ToolCounts, 10)
	printTopCounts("Models", stats.ModelCounts, 4)
	printTopCounts("Branches", stats.BranchCounts, 5)

	if len(stats.TokenUsage) > 0 {
		fmt.Println("Tokens:")
		for _, key := range []string{"input", "output", "cacheCreation", "cacheRead"} {
			if v, ok := stats.TokenUsage[key]; ok {
				fmt.Printf("  %-14s %s\n", key, humanize.Comma(int64(v)))
			}
		}
		fmt.Println()
	}

	if len(stats.LengthHistogram) > 0 {
		fmt.Println("Conversation length (messages):")
		for _, bucket := range []string{"1-10", "11-50", "51-100", "101-200", "201-500", "500+"} {
			if v, ok := stats.LengthHistogram[bucket]; ok {
				fmt.Printf("  %-8s %d\n", bucket, v)
			}
		}
		fmt.Println()
	}

	if len(stats.Daily) > 0 {
		first := stats.Daily[0].Date
		last := stats.Daily[len(stats.Daily)-1].Date
		fmt.Printf("Active days: %d (%s to %s)\n", len(stats.Daily), first, last)
	}
	return nil
}

func printTopCounts(label string, counts map[string]int, limit int) {
	if len(counts) == 0 {
		return
	}
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	fmt.Printf("%s:\n", label)
	for _, e := range entries {
		fmt.Printf("  %-20s %s\n", e.name, humanize.Comma(int64(e.count)))
	}
	fmt.Println()
}
