package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/discovery"
	"github.com/genesiscz/cchistory/internal/core/models"
	"github.com/genesiscz/cchistory/internal/core/search"
)

// SearchTranscriptsArgs defines arguments for the search_transcripts tool
type SearchTranscriptsArgs struct {
	Query            string `json:"query" jsonschema:"description=Search term to match against message content,required"`
	Exact            bool   `json:"exact,omitempty" jsonschema:"description=Require the query as an exact substring instead of fuzzy word matching"`
	Regex            bool   `json:"regex,omitempty" jsonschema:"description=Treat the query as a case-insensitive regular expression"`
	SummaryOnly      bool   `json:"summary_only,omitempty" jsonschema:"description=Match only against session titles and summaries (fast path)"`
	Project          string `json:"project,omitempty" jsonschema:"description=Filter by project path substring"`
	Since            string `json:"since,omitempty" jsonschema:"description=Only messages on or after this date (YYYY-MM-DD)"`
	Until            string `json:"until,omitempty" jsonschema:"description=Only messages on or before this date (YYYY-MM-DD)"`
	Tool             string `json:"tool,omitempty" jsonschema:"description=Only conversations that used this tool"`
	Commit           string `json:"commit,omitempty" jsonschema:"description=Find conversations mentioning this commit hash prefix"`
	Relevance        bool   `json:"relevance,omitempty" jsonschema:"description=Sort by relevance score instead of recency"`
	Limit            int    `json:"limit,omitempty" jsonschema:"description=Max conversations to return (default: 10)"`
	CurrentSessionID string `json:"current_session_id,omitempty" jsonschema:"description=Session ID to exclude from results"`
}

// ListSessionsArgs defines arguments for the list_sessions tool
type ListSessionsArgs struct {
	Limit   int    `json:"limit,omitempty" jsonschema:"description=Max sessions to return (default: 20)"`
	Offset  int    `json:"offset,omitempty" jsonschema:"description=Skip the first N sessions"`
	Project string `json:"project,omitempty" jsonschema:"description=Filter by project path substring"`
}

// GetStatsArgs defines arguments for the get_stats tool
type GetStatsArgs struct {
	From string `json:"from,omitempty" jsonschema:"description=Start date (YYYY-MM-DD)"`
	To   string `json:"to,omitempty" jsonschema:"description=End date (YYYY-MM-DD)"`
}

// ConversationMatch is a search result shaped for tool output
type ConversationMatch struct {
	SessionID      string   `json:"session_id"`
	Title          string   `json:"title,omitempty"`
	Project        string   `json:"project"`
	Timestamp      string   `json:"timestamp,omitempty"`
	GitBranch      string   `json:"git_branch,omitempty"`
	IsSubagent     bool     `json:"is_subagent,omitempty"`
	RelevanceScore int      `json:"relevance_score,omitempty"`
	CommitHashes   []string `json:"commit_hashes,omitempty"`
	Snippets       []string `json:"snippets,omitempty"`
}

// SessionEntry is one row of the list_sessions output
type SessionEntry struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title,omitempty"`
	Project   string `json:"project"`
	GitBranch string `json:"git_branch,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// StartServer runs the MCP server over stdio until the client disconnects.
func StartServer(transcriptsDir, cachePath, version string) error {
	engine, err := cache.Open(cachePath)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = engine.Close() }()

	s := server.NewMCPServer(
		"cchistory",
		version,
	)

	searchTool := mcp.NewTool("search_transcripts",
		mcp.WithDescription("Search Claude Code conversation transcripts. Default mode matches all query words in any order; exact and regex modes are available. Supports project, date, tool and commit filters."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search term to match against message content")),
		mcp.WithBoolean("exact",
			mcp.Description("Require the query as an exact substring instead of fuzzy word matching")),
		mcp.WithBoolean("regex",
			mcp.Description("Treat the query as a case-insensitive regular expression")),
		mcp.WithBoolean("summary_only",
			mcp.Description("Match only against session titles and summaries (fast path)")),
		mcp.WithString("project",
			mcp.Description("Filter by project path substring")),
		mcp.WithString("since",
			mcp.Description("Only messages on or after this date (YYYY-MM-DD)")),
		mcp.WithString("until",
			mcp.Description("Only messages on or before this date (YYYY-MM-DD)")),
		mcp.WithString("tool",
			mcp.Description("Only conversations that used this tool, e.g. 'Bash'")),
		mcp.WithString("commit",
			mcp.Description("Find conversations mentioning this commit hash prefix")),
		mcp.WithBoolean("relevance",
			mcp.Description("Sort by relevance score instead of recency")),
		mcp.WithNumber("limit",
			mcp.Description("Max conversations to return (default: 10)")),
		mcp.WithString("current_session_id",
			mcp.Description("Session ID to exclude from results (usually the calling session)")),
	)
	s.AddTool(searchTool, makeSearchHandler(transcriptsDir, engine))

	listTool := mcp.NewTool("list_sessions",
		mcp.WithDescription("List recent Claude Code sessions, newest first, optionally filtered by project"),
		mcp.WithNumber("limit",
			mcp.Description("Max sessions to return (default: 20)")),
		mcp.WithNumber("offset",
			mcp.Description("Skip the first N sessions")),
		mcp.WithString("project",
			mcp.Description("Filter by project path substring")),
	)
	s.AddTool(listTool, makeListHandler(transcriptsDir, engine))

	statsTool := mcp.NewTool("get_stats",
		mcp.WithDescription("Get usage statistics: message and conversation counts, tool and model breakdowns, token usage. Incrementally cached, so repeat calls are cheap."),
		mcp.WithString("from",
			mcp.Description("Start date (YYYY-MM-DD)")),
		mcp.WithString("to",
			mcp.Description("End date (YYYY-MM-DD)")),
	)
	s.AddTool(statsTool, makeStatsHandler(transcriptsDir, engine))

	return server.ServeStdio(s)
}

func decodeArgs(request mcp.CallToolRequest, out any) error {
	raw, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func makeSearchHandler(root string, engine *cache.Engine) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SearchTranscriptsArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		limit := args.Limit
		if limit == 0 {
			limit = 10
		}

		filters := models.SearchFilters{
			Query:                 args.Query,
			Exact:                 args.Exact,
			Regex:                 args.Regex,
			SummaryOnly:           args.SummaryOnly,
			SortByRelevance:       args.Relevance,
			Project:               args.Project,
			Tool:                  args.Tool,
			CommitHash:            args.Commit,
			Limit:                 limit,
			ExcludeCurrentSession: args.CurrentSessionID,
		}
		if args.Since != "" {
			t, err := time.Parse("2006-01-02", args.Since)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid since date: %v", err)), nil
			}
			filters.Since = &t
		}
		if args.Until != "" {
			t, err := time.Parse("2006-01-02", args.Until)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid until date: %v", err)), nil
			}
			filters.Until = &t
		}

		results, err := search.New(root, engine).Search(ctx, filters)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		matches := make([]ConversationMatch, 0, len(results))
		for i := range results {
			matches = append(matches, toMatch(&results[i]))
		}
		resultJSON, err := json.Marshal(map[string]any{"conversations": matches})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

const snippetLimit = 3
const snippetChars = 300

func toMatch(r *models.SearchResult) ConversationMatch {
	m := ConversationMatch{
		SessionID:      r.SessionID,
		Project:        r.Project,
		GitBranch:      r.GitBranch,
		IsSubagent:     r.IsSubagent,
		RelevanceScore: r.RelevanceScore,
		CommitHashes:   r.CommitHashes,
	}
	if r.CustomTitle != "" {
		m.Title = r.CustomTitle
	} else {
		m.Title = r.Summary
	}
	if !r.Timestamp.IsZero() {
		m.Timestamp = r.Timestamp.Format(time.RFC3339)
	}
	for _, msg := range r.Messages {
		if len(m.Snippets) >= snippetLimit {
			break
		}
		text := msg.Text
		if len(text) > snippetChars {
			text = text[:snippetChars] + "..."
		}
		if text != "" {
			m.Snippets = append(m.Snippets, text)
		}
	}
	return m
}

func makeListHandler(root string, engine *cache.Engine) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListSessionsArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		limit := args.Limit
		if limit == 0 {
			limit = 20
		}

		files, err := discovery.Find(root, discovery.Options{Project: args.Project})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
		}
		if err := engine.RefreshSessionMetadata(files); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("metadata refresh failed: %v", err)), nil
		}

		records, total, subagents, err := engine.ListSessions(args.Project, args.Offset, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}

		entries := make([]SessionEntry, 0, len(records))
		for i := range records {
			rec := &records[i]
			entry := SessionEntry{
				SessionID: rec.SessionID,
				Title:     rec.TitleText(),
				Project:   rec.Project,
				GitBranch: rec.GitBranch,
			}
			if rec.Mtime > 0 {
				entry.UpdatedAt = time.UnixMilli(rec.Mtime).UTC().Format(time.RFC3339)
			}
			entries = append(entries, entry)
		}

		resultJSON, err := json.Marshal(map[string]any{
			"sessions":  entries,
			"total":     total,
			"subagents": subagents,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

func makeStatsHandler(root string, engine *cache.Engine) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetStatsArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		files, err := discovery.Find(root, discovery.Options{})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
		}

		var stats *models.AggregatedStats
		if args.From != "" && args.To != "" {
			stats, err = engine.StatsForDateRange(files, args.From, args.To, nil)
		} else {
			stats, err = engine.RecomputeStats(files, args.From, args.To, nil)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
		}

		resultJSON, err := json.Marshal(stats)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}
