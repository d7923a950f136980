package models

import "time"

// FileIndexRecord is the per-file cache row. A record is valid iff
// its Mtime equals the file's current mtime in integer milliseconds.
type FileIndexRecord struct {
	FilePath     string
	Mtime        int64 // unix milliseconds
	MessageCount int
	FirstDate    string // YYYY-MM-DD
	LastDate     string
	Project      string
	IsSubagent   bool
	LastIndexed  time.Time
}

// AllProjects is the pseudo-project key under which daily aggregates
// are bucketed.
const AllProjects = "__all__"

// DailyStats is one (date, project) aggregate row. Map-valued fields
// merge by pointwise addition.
type DailyStats struct {
	Date             string
	Project          string
	Conversations    int
	Messages         int
	SubagentSessions int
	ToolCounts       map[string]int
	HourlyActivity   map[string]int // "0".."23"
	TokenUsage       map[string]int // input/output/cacheCreation/cacheRead
	ModelCounts      map[string]int // opus/sonnet/haiku/other
	BranchCounts     map[string]int
	ComputedAt       time.Time
}

// SessionMetadataRecord is the lightweight per-file row backing
// summary-only search and session listings. Extracted from a bounded
// head read, so fields emitted late in a transcript may be missing.
type SessionMetadataRecord struct {
	FilePath       string
	SessionID      string
	CustomTitle    string
	Summary        string
	FirstPrompt    string // first 120 chars of the first user message
	GitBranch      string
	Project        string
	CWD            string
	Mtime          int64 // unix milliseconds
	FirstTimestamp time.Time
	IsSubagent     bool
}

// TitleText returns the best display title for the session.
func (r *SessionMetadataRecord) TitleText() string {
	if r.CustomTitle != "" {
		return r.CustomTitle
	}
	if r.Summary != "" {
		return r.Summary
	}
	return r.FirstPrompt
}

// CachedTotals is the singleton row backing instant dashboard loads.
type CachedTotals struct {
	TotalConversations int
	TotalMessages      int
	TotalSubagents     int
	ProjectCount       int
	LastUpdated        time.Time
}

// AggregatedStats is the reduction of all daily rows in scope plus
// the derived global figures.
type AggregatedStats struct {
	TotalConversations int
	TotalMessages      int
	SubagentSessions   int
	ProjectCount       int

	ToolCounts     map[string]int
	HourlyActivity map[string]int
	TokenUsage     map[string]int
	ModelCounts    map[string]int
	BranchCounts   map[string]int

	// LengthHistogram buckets per-file message counts for the
	// length-distribution chart: 1-10, 11-50, 51-100, 101-200,
	// 201-500, 500+.
	LengthHistogram map[string]int

	Daily []DailyStats // ascending by date
}

// MergeCounts adds src into dst pointwise, allocating dst if nil.
func MergeCounts(dst, src map[string]int) map[string]int {
	if dst == nil {
		dst = make(map[string]int, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}
