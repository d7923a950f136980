package models

import "time"

// SearchFilters describes one search request. A zero value means
// "list everything" up to the default limit.
type SearchFilters struct {
	Query string

	// Mode flags
	Exact           bool // case-insensitive substring match
	Regex           bool // guarded regex match
	SummaryOnly     bool // match titles/summaries only
	AgentsOnly      bool
	ExcludeAgents   bool
	ExcludeThinking bool
	SortByRelevance bool

	// Scoping
	Project               string     // "" or "all" = no scoping
	Since                 *time.Time // message timestamp range
	Until                 *time.Time
	ConversationDate      string // YYYY-MM-DD, first message date >= this
	ConversationDateUntil string // YYYY-MM-DD, first message date <= this

	// Auxiliary filters
	Tool          string // tool_use name
	File          string // simplified glob over tool-use file paths
	CommitHash    string // prefix match against extracted commit hashes
	CommitMessage string // substring of a git commit command

	// Pagination
	Limit   int // 0 = default
	Context int // symmetric context window size around matches

	// Exclusions
	ExcludeCurrentSession string // session ID to skip
}

// HasCommitFilter reports whether either commit mode is requested.
func (f *SearchFilters) HasCommitFilter() bool {
	return f.CommitHash != "" || f.CommitMessage != ""
}

// SearchResult is one matching conversation.
type SearchResult struct {
	FilePath  string
	Project   string
	SessionID string
	Timestamp time.Time

	Summary     string
	CustomTitle string
	GitBranch   string
	IsSubagent  bool

	Messages        []Message // matched subset
	ContextMessages []Message // symmetric window around matches, when requested
	RelevanceScore  int
	CommitHashes    []string
}
