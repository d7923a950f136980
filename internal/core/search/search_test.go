package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/models"
)

func writeSession(t *testing.T, root, project, name string, mtime time.Time, lines ...string) string {
	t.Helper()
	dir := filepath.Join(root, project)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func userLine(session, ts, text string) string {
	return fmt.Sprintf(`{"type":"user","sessionId":%q,"timestamp":%q,"message":{"role":"user","content":%q}}`, session, ts, text)
}

func assistantLine(session, ts, text string) string {
	return fmt.Sprintf(`{"type":"assistant","sessionId":%q,"timestamp":%q,"message":{"role":"assistant","content":[{"type":"text","text":%q}]}}`, session, ts, text)
}

func TestSearchFuzzyAcrossConversations(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	writeSession(t, root, "-home-dev-app", "auth.jsonl", now,
		`{"type":"summary","summary":"Debugging the auth flow"}`,
		userLine("s-auth", "2025-05-01T10:00:00Z", "the auth middleware throws an error on refresh"),
		assistantLine("s-auth", "2025-05-01T10:00:05Z", "that error comes from an expired token"),
	)
	writeSession(t, root, "-home-dev-app", "styling.jsonl", now.Add(-time.Hour),
		userLine("s-style", "2025-05-02T09:00:00Z", "make the button blue"),
		assistantLine("s-style", "2025-05-02T09:00:04Z", "done, updated the stylesheet"),
	)

	s := New(root, nil)
	results, err := s.Search(context.Background(), models.SearchFilters{Query: "error auth"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "s-auth", r.SessionID)
	assert.Equal(t, "Debugging the auth flow", r.Summary)
	// Only the message containing both words matches
	require.Len(t, r.Messages, 1)
	assert.Contains(t, r.Messages[0].Text, "middleware")
}

func TestSearchExactMode(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "s.jsonl", time.Now(),
		userLine("s-1", "2025-05-01T10:00:00Z", "auth error in middleware"),
	)

	s := New(root, nil)

	results, err := s.Search(context.Background(), models.SearchFilters{Query: "error auth", Exact: true})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.Search(context.Background(), models.SearchFilters{Query: "auth error", Exact: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchContextExpansion(t *testing.T) {
	root := t.TempDir()
	lines := make([]string, 10)
	for i := range lines {
		text := fmt.Sprintf("message number %d", i)
		if i == 5 {
			text = "the needle is here"
		}
		lines[i] = userLine("s-1", fmt.Sprintf("2025-05-01T10:00:%02dZ", i), text)
	}
	writeSession(t, root, "-home-dev-app", "s.jsonl", time.Now(), lines...)

	s := New(root, nil)
	results, err := s.Search(context.Background(), models.SearchFilters{Query: "needle", Context: 2})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.Len(t, r.Messages, 1)
	require.Len(t, r.ContextMessages, 5)
	assert.Equal(t, "message number 3", r.ContextMessages[0].Text)
	assert.Equal(t, "the needle is here", r.ContextMessages[2].Text)
	assert.Equal(t, "message number 7", r.ContextMessages[4].Text)
}

func TestSearchContextClampsAtEdges(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "s.jsonl", time.Now(),
		userLine("s-1", "2025-05-01T10:00:00Z", "needle first"),
		userLine("s-1", "2025-05-01T10:00:01Z", "filler"),
	)

	s := New(root, nil)
	results, err := s.Search(context.Background(), models.SearchFilters{Query: "needle", Context: 3})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].ContextMessages, 2)
}

func TestSearchRelevanceOrder(t *testing.T) {
	root := t.TempDir()
	now := time.Now()

	// Body-only hit, but newest
	writeSession(t, root, "-home-dev-app", "body.jsonl", now,
		userLine("s-body", "2025-05-01T10:00:00Z", "we touched the cache layer briefly"),
	)
	// Title hit, older file
	writeSession(t, root, "-home-dev-app", "title.jsonl", now.Add(-time.Hour),
		`{"type":"summary","summary":"Rewriting the cache layer"}`,
		userLine("s-title", "2025-04-01T10:00:00Z", "unrelated text with cache mentioned"),
	)

	s := New(root, nil)

	// Default order is discovery (mtime) order
	results, err := s.Search(context.Background(), models.SearchFilters{Query: "cache"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "s-body", results[0].SessionID)

	// Relevance order puts the title hit first
	results, err = s.Search(context.Background(), models.SearchFilters{Query: "cache", SortByRelevance: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "s-title", results[0].SessionID)
	assert.Greater(t, results[0].RelevanceScore, results[1].RelevanceScore)
}

func TestSearchLimit(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	for i := 0; i < 5; i++ {
		writeSession(t, root, "-home-dev-app", fmt.Sprintf("s%d.jsonl", i), now.Add(-time.Duration(i)*time.Minute),
			userLine(fmt.Sprintf("s-%d", i), "2025-05-01T10:00:00Z", "common phrase"),
		)
	}

	s := New(root, nil)
	results, err := s.Search(context.Background(), models.SearchFilters{Query: "common", Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Newest first
	assert.Equal(t, "s-0", results[0].SessionID)
	assert.Equal(t, "s-1", results[1].SessionID)
}

func TestSearchCommitHashMode(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "commit.jsonl", time.Now(),
		userLine("s-c", "2025-05-01T10:00:00Z", "please commit this"),
		`{"type":"user","sessionId":"s-c","timestamp":"2025-05-01T10:00:10Z","message":{"role":"user","content":[{"type":"tool_result","content":"[main a1b2c3d] fix auth\n1 file changed, committed"}]}}`,
	)
	writeSession(t, root, "-home-dev-app", "other.jsonl", time.Now().Add(-time.Minute),
		userLine("s-o", "2025-05-01T11:00:00Z", "no commits here"),
	)

	s := New(root, nil)
	results, err := s.Search(context.Background(), models.SearchFilters{CommitHash: "A1B2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s-c", results[0].SessionID)
	assert.Equal(t, []string{"a1b2c3d"}, results[0].CommitHashes)
	assert.NotEmpty(t, results[0].Messages)
}

func TestSearchCommitMessageMode(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "commit.jsonl", time.Now(),
		`{"type":"assistant","sessionId":"s-c","timestamp":"2025-05-01T10:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","name":"Bash","input":{"command":"git commit -m 'fix login race'"}}]}}`,
	)

	s := New(root, nil)

	results, err := s.Search(context.Background(), models.SearchFilters{CommitMessage: "login race"})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = s.Search(context.Background(), models.SearchFilters{CommitMessage: "unrelated"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchExcludeCurrentSession(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "a.jsonl", time.Now(),
		userLine("s-current", "2025-05-01T10:00:00Z", "shared phrase"),
	)
	writeSession(t, root, "-home-dev-app", "b.jsonl", time.Now().Add(-time.Minute),
		userLine("s-other", "2025-05-01T11:00:00Z", "shared phrase"),
	)

	s := New(root, nil)
	results, err := s.Search(context.Background(), models.SearchFilters{
		Query:                 "shared",
		ExcludeCurrentSession: "s-current",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s-other", results[0].SessionID)
}

func TestSearchConversationDateWindow(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "may.jsonl", time.Now(),
		userLine("s-may", "2025-05-10T10:00:00Z", "target text"),
	)
	writeSession(t, root, "-home-dev-app", "june.jsonl", time.Now().Add(-time.Minute),
		userLine("s-june", "2025-06-10T10:00:00Z", "target text"),
	)

	s := New(root, nil)
	results, err := s.Search(context.Background(), models.SearchFilters{
		Query:                 "target",
		ConversationDate:      "2025-06-01",
		ConversationDateUntil: "2025-06-30",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s-june", results[0].SessionID)
}

func TestSearchSummaryOnlyCachedFastPath(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "a.jsonl", time.Now(),
		`{"type":"summary","summary":"Refactoring the payment flow"}`,
		userLine("s-pay", "2025-05-01T10:00:00Z", "payment code is messy"),
	)
	writeSession(t, root, "-home-dev-app", "b.jsonl", time.Now().Add(-time.Minute),
		`{"type":"summary","summary":"Adding dark mode"}`,
		userLine("s-dark", "2025-05-01T11:00:00Z", "payment is mentioned in the body only"),
	)

	engine, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	s := New(root, engine)
	results, err := s.Search(context.Background(), models.SearchFilters{Query: "payment", SummaryOnly: true})
	require.NoError(t, err)

	// Body-only mentions do not match in summary mode
	require.Len(t, results, 1)
	assert.Equal(t, "s-pay", results[0].SessionID)
	assert.Empty(t, results[0].Messages)
	assert.Greater(t, results[0].RelevanceScore, 0)
}

func TestSearchSummaryOnlyWithCommitHash(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "committed.jsonl", time.Now(),
		`{"type":"summary","summary":"Fixing the auth flow"}`,
		userLine("s-c", "2025-05-01T10:00:00Z", "please commit this"),
		`{"type":"user","sessionId":"s-c","timestamp":"2025-05-01T10:00:10Z","message":{"role":"user","content":[{"type":"tool_result","content":"[main a1b2c3d] fix auth\n1 file changed, committed"}]}}`,
	)
	writeSession(t, root, "-home-dev-app", "uncommitted.jsonl", time.Now().Add(-time.Minute),
		`{"type":"summary","summary":"Also about the auth flow"}`,
		userLine("s-u", "2025-05-01T11:00:00Z", "just talking, nothing committed"),
	)

	s := New(root, nil)

	// Both titles match the query; only the session with the commit
	// survives the combined filter.
	results, err := s.Search(context.Background(), models.SearchFilters{
		Query: "auth", SummaryOnly: true, CommitHash: "a1b2",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "s-c", results[0].SessionID)
	assert.Equal(t, []string{"a1b2c3d"}, results[0].CommitHashes)
	assert.Empty(t, results[0].Messages)

	results, err = s.Search(context.Background(), models.SearchFilters{
		Query: "auth", SummaryOnly: true, CommitHash: "ffff",
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchToolFilter(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "s.jsonl", time.Now(),
		`{"type":"assistant","sessionId":"s-1","timestamp":"2025-05-01T10:00:00Z","message":{"role":"assistant","content":[{"type":"text","text":"editing the config"},{"type":"tool_use","name":"Edit","input":{"file_path":"/app/config.go"}}]}}`,
	)

	s := New(root, nil)

	results, err := s.Search(context.Background(), models.SearchFilters{Query: "config", Tool: "edit"})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = s.Search(context.Background(), models.SearchFilters{Query: "config", Tool: "Bash"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchToolFilterNarrowsToToolUseMessage(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "-home-dev-app", "s.jsonl", time.Now(),
		userLine("s-1", "2025-05-01T10:00:00Z", "fix bug in auth"),
		assistantLine("s-1", "2025-05-01T10:00:05Z", "fixed, see PR"),
		`{"type":"assistant","sessionId":"s-1","timestamp":"2025-05-01T10:00:10Z","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/auth.ts"}}]}}`,
	)

	s := New(root, nil)

	results, err := s.Search(context.Background(), models.SearchFilters{Query: "auth"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	// The tool filter drops the user message that mentioned auth in
	// prose; only the Edit on /auth.ts survives.
	results, err = s.Search(context.Background(), models.SearchFilters{Query: "auth", Tool: "Edit"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Messages, 1)
	assert.Equal(t, models.MessageTypeAssistant, results[0].Messages[0].Type)
}
