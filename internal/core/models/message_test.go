package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateKey(t *testing.T) {
	msg := Message{Timestamp: time.Date(2025, 5, 1, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))}
	// 23:30 EST is the next day in UTC
	assert.Equal(t, "2025-05-02", msg.DateKey())

	var empty Message
	assert.Equal(t, "", empty.DateKey())
	assert.False(t, empty.HasTimestamp())
}

func TestMergeCounts(t *testing.T) {
	dst := map[string]int{"a": 1, "b": 2}
	got := MergeCounts(dst, map[string]int{"b": 3, "c": 4})
	assert.Equal(t, map[string]int{"a": 1, "b": 5, "c": 4}, got)

	// nil dst allocates
	got = MergeCounts(nil, map[string]int{"x": 1})
	assert.Equal(t, map[string]int{"x": 1}, got)

	// nil src is a no-op
	got = MergeCounts(map[string]int{"y": 2}, nil)
	assert.Equal(t, map[string]int{"y": 2}, got)
}

func TestSessionMetadataTitleText(t *testing.T) {
	rec := SessionMetadataRecord{CustomTitle: "Custom", Summary: "Summary", FirstPrompt: "Prompt"}
	assert.Equal(t, "Custom", rec.TitleText())

	rec.CustomTitle = ""
	assert.Equal(t, "Summary", rec.TitleText())

	rec.Summary = ""
	assert.Equal(t, "Prompt", rec.TitleText())
}

func TestSearchFiltersHasCommitFilter(t *testing.T) {
	var f SearchFilters
	assert.False(t, f.HasCommitFilter())

	f.CommitHash = "a1b2c3d"
	assert.True(t, f.HasCommitFilter())

	f = SearchFilters{CommitMessage: "fix race"}
	assert.True(t, f.HasCommitFilter())
}
