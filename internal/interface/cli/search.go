package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/models"
	"github.com/genesiscz/cchistory/internal/core/search"
)

var (
	searchExact           bool
	searchRegex           bool
	searchSummaryOnly     bool
	searchAgentsOnly      bool
	searchExcludeAgents   bool
	searchExcludeThinking bool
	searchRelevance       bool
	searchProject         string
	searchSince           string
	searchUntil           string
	searchTool            string
	searchFile            string
	searchCommit          string
	searchCommitMsg       string
	searchLimit           int
	searchContext         int
	searchJSON            bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search conversation transcripts",
	Long: `Search through all Claude Code transcripts.

The default mode is fuzzy: every query word must appear somewhere in
a message, in any order. Use --exact for substring match or --regex
for a (safety-gated) pattern. An empty query lists conversations
matching the other filters.

Examples:
  cchistory search "login bug"
  cchistory search --exact "connection refused" --project api
  cchistory search --commit a1b2c3d
  cchistory search --summary-only "auth refactor" --relevance
  cchistory search "deploy" --tool Bash --context 2 --since "last tuesday"`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().BoolVar(&searchExact, "exact", false, "Exact substring match")
	searchCmd.Flags().BoolVar(&searchRegex, "regex", false, "Treat query as a regex pattern")
	searchCmd.Flags().BoolVar(&searchSummaryOnly, "summary-only", false, "Match summaries/titles only (fast path)")
	searchCmd.Flags().BoolVar(&searchAgentsOnly, "agents-only", false, "Only subagent conversations")
	searchCmd.Flags().BoolVar(&searchExcludeAgents, "exclude-agents", false, "Skip subagent conversations")
	searchCmd.Flags().BoolVar(&searchExcludeThinking, "exclude-thinking", false, "Skip thinking blocks when matching")
	searchCmd.Flags().BoolVar(&searchRelevance, "relevance", false, "Sort by relevance score")
	searchCmd.Flags().StringVar(&searchProject, "project", "", "Limit to a project (substring)")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "Messages at or after this date")
	searchCmd.Flags().StringVar(&searchUntil, "until", "", "Messages at or before this date")
	searchCmd.Flags().StringVar(&searchTool, "tool", "", "Only messages using this tool")
	searchCmd.Flags().StringVar(&searchFile, "file", "", "Only messages touching files matching this glob")
	searchCmd.Flags().StringVar(&searchCommit, "commit", "", "Find conversations containing this commit hash prefix")
	searchCmd.Flags().StringVar(&searchCommitMsg, "commit-message", "", "Find conversations whose git commits mention this text")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum conversations to return")
	searchCmd.Flags().IntVar(&searchContext, "context", 0, "Context messages around each match")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Emit results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	since, err := parseWhen(searchSince)
	if err != nil {
		return err
	}
	until, err := parseWhen(searchUntil)
	if err != nil {
		return err
	}

	filters := models.SearchFilters{
		Query:           strings.Join(args, " "),
		Exact:           searchExact,
		Regex:           searchRegex,
		SummaryOnly:     searchSummaryOnly,
		AgentsOnly:      searchAgentsOnly,
		ExcludeAgents:   searchExcludeAgents,
		ExcludeThinking: searchExcludeThinking,
		SortByRelevance: searchRelevance,
		Project:         searchProject,
		Since:           since,
		Until:           until,
		Tool:            searchTool,
		File:            searchFile,
		CommitHash:      searchCommit,
		CommitMessage:   searchCommitMsg,
		Limit:           searchLimit,
		Context:         searchContext,
	}

	engine, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = engine.Close() }()

	searcher := search.New(cfg.TranscriptsDir, engine)
	results, err := searcher.Search(cmd.Context(), filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}

	fmt.Printf("Found %d conversation(s)\n\n", len(results))
	for i, r := range results {
		fmt.Printf("=== %d. %s ===\n", i+1, displayTitle(&r))
		fmt.Printf("Project:  %s\n", r.Project)
		if r.SessionID != "" {
			fmt.Printf("Session:  %s\n", r.SessionID)
		}
		if !r.Timestamp.IsZero() {
			fmt.Printf("Started:  %s (%s)\n", r.Timestamp.Format("Jan 2, 2006 3:04 PM"), humanize.Time(r.Timestamp))
		}
		if r.GitBranch != "" {
			fmt.Printf("Branch:   %s\n", r.GitBranch)
		}
		if r.IsSubagent {
			fmt.Printf("Subagent: yes\n")
		}
		if r.RelevanceScore > 0 {
			fmt.Printf("Score:    %d\n", r.RelevanceScore)
		}
		if len(r.CommitHashes) > 0 {
			fmt.Printf("Commits:  %s\n", strings.Join(r.CommitHashes, ", "))
		}
		if len(r.Messages) > 0 {
			fmt.Printf("Matches:  %d\n", len(r.Messages))
		}
		fmt.Println()
	}
	return nil
}

func displayTitle(r *models.SearchResult) string {
	if r.CustomTitle != "" {
		return r.CustomTitle
	}
	if r.Summary != "" {
		return r.Summary
	}
	return r.FilePath
}
