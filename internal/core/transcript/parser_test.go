package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesiscz/cchistory/internal/core/models"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"summary","summary":"Fixing the login flow"}`,
		`{"type":"user","sessionId":"s-1","timestamp":"2025-05-01T10:00:00Z","gitBranch":"main","cwd":"/home/dev/app","message":{"role":"user","content":"why does login fail?"}}`,
		`{"type":"assistant","sessionId":"s-1","timestamp":"2025-05-01T10:00:05Z","message":{"role":"assistant","model":"claude-sonnet-4","usage":{"input_tokens":12,"output_tokens":30},"content":[{"type":"text","text":"Looking at the handler now."}]}}`,
	)

	msgs, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, models.MessageTypeSummary, msgs[0].Type)
	assert.Equal(t, "Fixing the login flow", msgs[0].Summary)

	user := msgs[1]
	assert.Equal(t, models.MessageTypeUser, user.Type)
	assert.Equal(t, "s-1", user.SessionID)
	assert.Equal(t, "main", user.GitBranch)
	assert.Equal(t, "/home/dev/app", user.CWD)
	assert.Equal(t, "why does login fail?", user.Text)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), user.Timestamp)

	asst := msgs[2]
	assert.Equal(t, models.MessageTypeAssistant, asst.Type)
	assert.Equal(t, "claude-sonnet-4", asst.Model)
	require.NotNil(t, asst.Usage)
	assert.Equal(t, 12, asst.Usage.InputTokens)
	assert.Equal(t, 30, asst.Usage.OutputTokens)
	require.Len(t, asst.Blocks, 1)
	assert.Equal(t, "Looking at the handler now.", asst.Blocks[0].Text)
}

func TestParseFileSkipsMalformedLines(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","message":{"role":"user","content":"first"}}`,
		`{not json at all`,
		``,
		`{"type":"user","message":{"role":"user","content":"second"}}`,
	)

	msgs, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrFileRead))
}

func TestParseFileUnknownTypePreserved(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"file-history-snapshot","sessionId":"s-2"}`,
		`{"type":"queue-operation","content":"queued request"}`,
		`{"type":"custom-title","customTitle":"Big refactor"}`,
	)

	msgs, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.MessageTypeFileHistorySnapshot, msgs[0].Type)
	assert.Equal(t, "queued request", msgs[1].QueueContent)
	assert.Equal(t, "Big refactor", msgs[2].Title)
}

func TestParseFileHeadLineLimit(t *testing.T) {
	lines := make([]string, 80)
	for i := range lines {
		lines[i] = fmt.Sprintf(`{"type":"user","message":{"role":"user","content":"msg %d"}}`, i)
	}
	path := writeTranscript(t, lines...)

	msgs, err := ParseFileHead(path)
	require.NoError(t, err)
	assert.Len(t, msgs, 50)
}

func TestParseFileHeadByteLimit(t *testing.T) {
	// One early line, then a line far past 64KB that gets cut mid-token.
	big := strings.Repeat("x", 128*1024)
	path := writeTranscript(t,
		`{"type":"user","message":{"role":"user","content":"early"}}`,
		fmt.Sprintf(`{"type":"user","message":{"role":"user","content":"%s"}}`, big),
	)

	msgs, err := ParseFileHead(path)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "early", msgs[0].Text)
}

func TestParseFileCRLF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	data := "{\"type\":\"user\",\"message\":{\"role\":\"user\",\"content\":\"windows line\"}}\r\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	msgs, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "windows line", msgs[0].Text)
}

func TestParseFileBadTimestampStillParses(t *testing.T) {
	path := writeTranscript(t,
		`{"type":"user","timestamp":"not-a-date","message":{"role":"user","content":"hi"}}`,
	)

	msgs, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].HasTimestamp())
	assert.Equal(t, "hi", msgs[0].Text)
}
