package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/discovery"
)

var (
	listProject string
	listOffset  int
	listLimit   int
	listJSON    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Long: `List indexed sessions ordered by file modification time.

Session titles and first prompts come from the metadata cache, which
is refreshed before listing: only files whose mtime changed since the
last refresh are re-read.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listProject, "project", "p", "", "Filter by project path (substring)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip the first N sessions")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum sessions to show")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Emit sessions as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	engine, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = engine.Close() }()

	files, err := discovery.Find(cfg.TranscriptsDir, discovery.Options{Project: listProject})
	if err != nil {
		return fmt.Errorf("discover transcripts: %w", err)
	}
	if err := engine.RefreshSessionMetadata(files); err != nil {
		return fmt.Errorf("refresh session metadata: %w", err)
	}

	sessions, total, subagents, err := engine.ListSessions(listProject, listOffset, listLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if listJSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"sessions":  sessions,
			"total":     total,
			"subagents": subagents,
			"offset":    listOffset,
		})
	}

	if total == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	for _, s := range sessions {
		age := ""
		if s.Mtime > 0 {
			age = humanize.Time(time.UnixMilli(s.Mtime))
		}
		title := s.TitleText()
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s\n", s.SessionID, title)
		fmt.Printf("    %s", s.Project)
		if s.GitBranch != "" {
			fmt.Printf("  [%s]", s.GitBranch)
		}
		if age != "" {
			fmt.Printf("  %s", age)
		}
		fmt.Println()
	}

	shown := listOffset + len(sessions)
	fmt.Printf("\nShowing %d-%d of %d sessions", listOffset+1, shown, total)
	if subagents > 0 {
		fmt.Printf(" (%d subagent)", subagents)
	}
	fmt.Println()
	if shown < total {
		fmt.Printf("Use --offset %d to see more.\n", shown)
	}
	return nil
}
