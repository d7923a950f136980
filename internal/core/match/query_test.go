package match

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesiscz/cchistory/internal/core/models"
)

func TestMatchesQueryFuzzy(t *testing.T) {
	text := "We fixed an error in the auth handler yesterday"

	// All words must appear, in any order
	assert.True(t, MatchesQuery(text, "auth error", false, false))
	assert.True(t, MatchesQuery(text, "error auth", false, false))
	assert.True(t, MatchesQuery(text, "AUTH Error", false, false))
	assert.False(t, MatchesQuery(text, "auth failure", false, false))

	// Empty query matches everything
	assert.True(t, MatchesQuery(text, "", false, false))
	assert.True(t, MatchesQuery("", "", true, false))
}

func TestMatchesQueryExact(t *testing.T) {
	text := "token refresh failed: http 401"

	assert.True(t, MatchesQuery(text, "refresh failed", true, false))
	assert.True(t, MatchesQuery(text, "Refresh FAILED", true, false))
	// Exact mode requires the words in order as one substring
	assert.False(t, MatchesQuery(text, "failed refresh", true, false))
}

func TestMatchesQueryRegex(t *testing.T) {
	text := "retry scheduled for session abc-123"

	assert.True(t, MatchesQuery(text, `session \w+-\d+`, false, true))
	assert.True(t, MatchesQuery(text, "RETRY", false, true))
	assert.False(t, MatchesQuery(text, `^nothing`, false, true))
}

func TestCompilePatternRejectsNestedQuantifiers(t *testing.T) {
	for _, pattern := range []string{`(a+)+`, `(a+)+$`, `(\d*)*`, `(ab){2}{3}`, `[a-z]+[)]*{2}`} {
		_, err := CompilePattern(pattern)
		require.Error(t, err, "pattern %q", pattern)
		assert.True(t, errors.Is(err, models.ErrInvalidPattern))
	}
}

func TestCompilePatternRejectsOverlongPattern(t *testing.T) {
	_, err := CompilePattern(strings.Repeat("a", 201))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidPattern))

	// Exactly at the limit passes the gate
	_, err = CompilePattern(strings.Repeat("a", 200))
	require.NoError(t, err)
}

func TestCompilePatternAllowsSequentialQuantifiers(t *testing.T) {
	// a+b+ is fine; only nesting is dangerous
	re, err := CompilePattern(`a+b+`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("aabb"))
}

func TestMatchesQueryRegexFailsClosed(t *testing.T) {
	// An unsafe or invalid pattern matches nothing rather than erroring
	assert.False(t, MatchesQuery("anything at all", `(a+)+`, false, true))
	assert.False(t, MatchesQuery("anything at all", `[unclosed`, false, true))
}

func TestGlobToPattern(t *testing.T) {
	re, err := CompilePattern(GlobToPattern("*.go"))
	require.NoError(t, err)
	assert.True(t, re.MatchString("internal/core/match/query.go"))
	assert.False(t, re.MatchString("README.md"))

	// Dots are literal, not wildcards
	re, err = CompilePattern(GlobToPattern("main.go"))
	require.NoError(t, err)
	assert.False(t, re.MatchString("main_go"))
}

func TestMatchesFileGlob(t *testing.T) {
	paths := []string{"/src/server.go", "/src/handler_test.go"}

	assert.True(t, MatchesFileGlob(paths, "*_test.go"))
	assert.True(t, MatchesFileGlob(paths, "*server*"))
	assert.False(t, MatchesFileGlob(paths, "*.py"))
	assert.True(t, MatchesFileGlob(nil, ""))
	assert.False(t, MatchesFileGlob(nil, "*.go"))
}

func TestMatchesFiltersTool(t *testing.T) {
	msg := models.Message{
		Type: models.MessageTypeAssistant,
		Blocks: []models.ContentBlock{
			{Type: "text", Text: "running the tests now"},
			{Type: "tool_use", Name: "Bash", Input: map[string]any{"command": "go test ./..."}},
		},
	}

	f := &models.SearchFilters{Query: "tests", Tool: "bash"}
	assert.True(t, MatchesFilters(&msg, f))

	f.Tool = "Edit"
	assert.False(t, MatchesFilters(&msg, f))
}

func TestMatchesFiltersQueryHitsToolInputPath(t *testing.T) {
	// No prose mentions the query; the Edit target path does.
	msg := models.Message{
		Type: models.MessageTypeAssistant,
		Blocks: []models.ContentBlock{
			{Type: "tool_use", Name: "Edit", Input: map[string]any{"file_path": "/src/auth.ts"}},
		},
	}

	assert.True(t, MatchesFilters(&msg, &models.SearchFilters{Query: "auth", Tool: "Edit"}))
	assert.False(t, MatchesFilters(&msg, &models.SearchFilters{Query: "billing", Tool: "Edit"}))
}
