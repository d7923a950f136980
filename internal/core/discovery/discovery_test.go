package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"user"}`+"\n"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestFindSortsByMtimeDescending(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(root, "-home-dev-app", "a.jsonl"), base)
	writeFile(t, filepath.Join(root, "-home-dev-app", "b.jsonl"), base.Add(2*time.Hour))
	writeFile(t, filepath.Join(root, "-home-dev-lib", "c.jsonl"), base.Add(time.Hour))

	files, err := Find(root, Options{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "b.jsonl", filepath.Base(files[0].Path))
	assert.Equal(t, "c.jsonl", filepath.Base(files[1].Path))
	assert.Equal(t, "a.jsonl", filepath.Base(files[2].Path))
}

func TestFindMissingRoot(t *testing.T) {
	files, err := Find(filepath.Join(t.TempDir(), "does-not-exist"), Options{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFindIgnoresNonTranscriptFiles(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(root, "-home-dev-app", "s.jsonl"), now)
	writeFile(t, filepath.Join(root, "-home-dev-app", "notes.txt"), now)
	writeFile(t, filepath.Join(root, "-home-dev-app", "data.json"), now)

	files, err := Find(root, Options{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "s.jsonl", filepath.Base(files[0].Path))
}

func TestFindProjectDecoding(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "-home-dev-app", "s.jsonl"), time.Now())

	files, err := Find(root, Options{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/home/dev/app", files[0].Project)
}

func TestFindProjectFilter(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(root, "-home-dev-app", "a.jsonl"), now)
	writeFile(t, filepath.Join(root, "-home-dev-lib", "b.jsonl"), now)

	files, err := Find(root, Options{Project: "dev/app"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/home/dev/app", files[0].Project)

	// "all" disables scoping
	files, err = Find(root, Options{Project: "all"})
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestFindAgentFilters(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(root, "-home-dev-app", "main.jsonl"), now)
	writeFile(t, filepath.Join(root, "-home-dev-app", "subagents", "task.jsonl"), now)
	writeFile(t, filepath.Join(root, "-home-dev-app", "agent-xyz.jsonl"), now)

	all, err := Find(root, Options{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	agents, err := Find(root, Options{AgentsOnly: true})
	require.NoError(t, err)
	require.Len(t, agents, 2)
	for _, f := range agents {
		assert.True(t, f.IsSubagent, f.Path)
	}

	humans, err := Find(root, Options{ExcludeAgents: true})
	require.NoError(t, err)
	require.Len(t, humans, 1)
	assert.Equal(t, "main.jsonl", filepath.Base(humans[0].Path))
}

func TestIsSubagentPath(t *testing.T) {
	assert.True(t, IsSubagentPath("/p/-x/subagents/abc.jsonl"))
	assert.True(t, IsSubagentPath("/p/-x/agent-abc.jsonl"))
	assert.False(t, IsSubagentPath("/p/-x/abc.jsonl"))
	assert.False(t, IsSubagentPath("/p/-x/management-agent.jsonl"))
}

func TestDecodeProject(t *testing.T) {
	assert.Equal(t, "/home/dev/app", DecodeProject("-home-dev-app"))
	assert.Equal(t, "plain", DecodeProject("plain"))
	assert.Equal(t, "", DecodeProject(""))
}
