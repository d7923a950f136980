// Package search composes discovery, parsing, matching and scoring
// into the supported search modes over the transcript store.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/discovery"
	"github.com/genesiscz/cchistory/internal/core/logging"
	"github.com/genesiscz/cchistory/internal/core/match"
	"github.com/genesiscz/cchistory/internal/core/models"
	"github.com/genesiscz/cchistory/internal/core/transcript"
)

const defaultLimit = 50

// searchMode is the per-request mode, chosen once from the filters
// in priority order: summary-only, commit-hash, commit-message,
// standard full-text.
type searchMode int

const (
	modeStandard searchMode = iota
	modeSummary
	modeCommitHash
	modeCommitMessage
)

func modeFor(f *models.SearchFilters) searchMode {
	switch {
	case f.SummaryOnly:
		return modeSummary
	case f.CommitHash != "":
		return modeCommitHash
	case f.CommitMessage != "":
		return modeCommitMessage
	default:
		return modeStandard
	}
}

// Searcher runs searches against a transcript root. The cache engine
// is optional; without it summary-only searches fall back to the
// slow path.
type Searcher struct {
	root   string
	engine *cache.Engine
	log    *slog.Logger
}

// New creates a Searcher over root.
func New(root string, engine *cache.Engine) *Searcher {
	return &Searcher{root: root, engine: engine, log: logging.ForComponent("search")}
}

// Search returns ranked, paginated results for one filter set.
// Per-file read errors drop the file from consideration; only
// root-level failures propagate.
func (s *Searcher) Search(ctx context.Context, filters models.SearchFilters) ([]models.SearchResult, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	mode := modeFor(&filters)

	// Summary-only without commit filters short-circuits to the
	// session metadata cache, skipping file parsing entirely.
	if mode == modeSummary && !filters.HasCommitFilter() && s.engine != nil {
		return s.searchSummariesCached(ctx, filters, limit)
	}

	files, err := discovery.Find(s.root, discovery.Options{
		Project:       filters.Project,
		AgentsOnly:    filters.AgentsOnly,
		ExcludeAgents: filters.ExcludeAgents,
	})
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	for _, f := range files {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}

		msgs, perr := transcript.ParseFile(f.Path)
		if perr != nil {
			s.log.Warn("skipping unreadable transcript", "path", f.Path, "err", perr)
			continue
		}

		meta := scanMeta(msgs, filters.ExcludeThinking)
		if skipConversation(&meta, &filters) {
			continue
		}

		result, ok := evaluate(mode, f, msgs, &meta, &filters)
		if !ok {
			continue
		}
		results = append(results, result)

		// Non-relevance order is already discovery order; stop as
		// soon as the page is full.
		if !filters.SortByRelevance && len(results) >= limit {
			break
		}
	}

	if filters.SortByRelevance {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].RelevanceScore > results[j].RelevanceScore
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// convMeta is the first-seen metadata gathered in one pass over a
// file's messages.
type convMeta struct {
	Summary          string
	CustomTitle      string
	GitBranch        string
	SessionID        string
	FirstTimestamp   time.Time
	FirstUserMessage string
	AllText          string
}

func (m *convMeta) titleText() string {
	if m.CustomTitle != "" {
		return m.CustomTitle
	}
	return m.Summary
}

func scanMeta(msgs []models.Message, excludeThinking bool) convMeta {
	var meta convMeta
	var allText strings.Builder
	for i := range msgs {
		msg := &msgs[i]

		if meta.SessionID == "" && msg.SessionID != "" {
			meta.SessionID = msg.SessionID
		}
		if meta.GitBranch == "" && msg.GitBranch != "" {
			meta.GitBranch = msg.GitBranch
		}
		if meta.FirstTimestamp.IsZero() && msg.HasTimestamp() {
			meta.FirstTimestamp = msg.Timestamp
		}
		if meta.Summary == "" && msg.Type == models.MessageTypeSummary {
			meta.Summary = msg.Summary
		}
		if meta.CustomTitle == "" && msg.Type == models.MessageTypeCustomTitle {
			meta.CustomTitle = msg.Title
		}

		text := match.ExtractText(msg, excludeThinking)
		if text != "" {
			if allText.Len() > 0 {
				allText.WriteByte('\n')
			}
			allText.WriteString(text)
		}
		if meta.FirstUserMessage == "" && msg.Type == models.MessageTypeUser && text != "" {
			meta.FirstUserMessage = text
		}
	}
	meta.AllText = allText.String()
	return meta
}

// skipConversation applies the session and conversation-date
// exclusions that run before any mode branches.
func skipConversation(meta *convMeta, f *models.SearchFilters) bool {
	if f.ExcludeCurrentSession != "" && meta.SessionID == f.ExcludeCurrentSession {
		return true
	}
	if f.ConversationDate != "" || f.ConversationDateUntil != "" {
		if meta.FirstTimestamp.IsZero() {
			return true
		}
		date := meta.FirstTimestamp.UTC().Format("2006-01-02")
		if f.ConversationDate != "" && date < f.ConversationDate {
			return true
		}
		if f.ConversationDateUntil != "" && date > f.ConversationDateUntil {
			return true
		}
	}
	return false
}

// evaluate runs one conversation through the selected mode.
func evaluate(mode searchMode, f discovery.File, msgs []models.Message, meta *convMeta, filters *models.SearchFilters) (models.SearchResult, bool) {
	result := models.SearchResult{
		FilePath:    f.Path,
		Project:     f.Project,
		SessionID:   meta.SessionID,
		Timestamp:   meta.FirstTimestamp,
		Summary:     meta.Summary,
		CustomTitle: meta.CustomTitle,
		GitBranch:   meta.GitBranch,
		IsSubagent:  f.IsSubagent,
	}

	switch mode {
	case modeSummary:
		// Commit filters still narrow a summary search; only the
		// query itself is restricted to title text.
		if filters.CommitHash != "" {
			hashes, found := matchingCommitHashes(msgs, filters.CommitHash)
			if !found {
				return result, false
			}
			result.CommitHashes = hashes
		}
		if filters.CommitMessage != "" && !hasCommitCommand(msgs, filters.CommitMessage) {
			return result, false
		}
		title := meta.titleText()
		if !match.MatchesQuery(title, filters.Query, filters.Exact, filters.Regex) {
			return result, false
		}
		result.RelevanceScore = match.Score(filters.Query, meta.Summary, meta.CustomTitle, "", "", meta.FirstTimestamp)
		return result, true

	case modeCommitHash:
		hashes, found := matchingCommitHashes(msgs, filters.CommitHash)
		if !found {
			return result, false
		}
		result.CommitHashes = hashes
		result.Messages = conversationMessages(msgs)
		return result, true

	case modeCommitMessage:
		if !hasCommitCommand(msgs, filters.CommitMessage) {
			return result, false
		}
		result.Messages = conversationMessages(msgs)
		return result, true

	default:
		var matched []int
		for i := range msgs {
			if match.MatchesFilters(&msgs[i], filters) {
				matched = append(matched, i)
			}
		}
		if len(matched) == 0 {
			return result, false
		}
		for _, idx := range matched {
			result.Messages = append(result.Messages, msgs[idx])
		}
		if filters.Context > 0 {
			result.ContextMessages = expandContext(msgs, matched, filters.Context)
		}
		if filters.SortByRelevance {
			result.RelevanceScore = match.Score(filters.Query, meta.Summary, meta.CustomTitle,
				meta.FirstUserMessage, meta.AllText, meta.FirstTimestamp)
		}
		return result, true
	}
}

// matchingCommitHashes returns the conversation's extracted commit
// hashes and whether any of them has the given prefix.
func matchingCommitHashes(msgs []models.Message, prefix string) ([]string, bool) {
	hashes := match.ExtractCommitHashes(msgs)
	p := strings.ToLower(prefix)
	for _, h := range hashes {
		if strings.HasPrefix(h, p) {
			return hashes, true
		}
	}
	return hashes, false
}

// conversationMessages returns the user and assistant messages of a
// conversation, used by the commit modes where no message-level
// filtering applies.
func conversationMessages(msgs []models.Message) []models.Message {
	var out []models.Message
	for i := range msgs {
		switch msgs[i].Type {
		case models.MessageTypeUser, models.MessageTypeAssistant:
			out = append(out, msgs[i])
		}
	}
	return out
}

// hasCommitCommand reports whether any assistant Bash tool use runs
// a git commit whose text contains the filter substring.
func hasCommitCommand(msgs []models.Message, substr string) bool {
	needle := strings.ToLower(substr)
	for i := range msgs {
		for _, use := range match.ExtractToolUses(&msgs[i]) {
			if !strings.EqualFold(use.Name, "Bash") {
				continue
			}
			cmd, _ := use.Input["command"].(string)
			lower := strings.ToLower(cmd)
			if strings.Contains(lower, "git commit") && strings.Contains(lower, needle) {
				return true
			}
		}
	}
	return false
}

// expandContext grows each matched index into a symmetric ±n window
// and materializes the union as an ascending, deduplicated message
// list.
func expandContext(msgs []models.Message, matched []int, n int) []models.Message {
	include := make(map[int]bool)
	for _, idx := range matched {
		lo := idx - n
		if lo < 0 {
			lo = 0
		}
		hi := idx + n
		if hi > len(msgs)-1 {
			hi = len(msgs) - 1
		}
		for i := lo; i <= hi; i++ {
			include[i] = true
		}
	}

	indices := make([]int, 0, len(include))
	for i := range include {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]models.Message, 0, len(indices))
	for _, i := range indices {
		out = append(out, msgs[i])
	}
	return out
}

// searchSummariesCached is the summary-only fast path: refresh the
// session metadata cache for the scope, then match titles without
// touching transcript bodies.
func (s *Searcher) searchSummariesCached(ctx context.Context, filters models.SearchFilters, limit int) ([]models.SearchResult, error) {
	files, err := discovery.Find(s.root, discovery.Options{
		Project:       filters.Project,
		AgentsOnly:    filters.AgentsOnly,
		ExcludeAgents: filters.ExcludeAgents,
	})
	if err != nil {
		return nil, err
	}
	if err := s.engine.RefreshSessionMetadata(files); err != nil {
		return nil, err
	}

	records, err := s.engine.AllSessionMetadata(filters.Project)
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	for _, rec := range records {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if filters.AgentsOnly && !rec.IsSubagent {
			continue
		}
		if filters.ExcludeAgents && rec.IsSubagent {
			continue
		}
		if filters.ExcludeCurrentSession != "" && rec.SessionID == filters.ExcludeCurrentSession {
			continue
		}
		if filters.ConversationDate != "" || filters.ConversationDateUntil != "" {
			if rec.FirstTimestamp.IsZero() {
				continue
			}
			date := rec.FirstTimestamp.UTC().Format("2006-01-02")
			if filters.ConversationDate != "" && date < filters.ConversationDate {
				continue
			}
			if filters.ConversationDateUntil != "" && date > filters.ConversationDateUntil {
				continue
			}
		}

		title := rec.CustomTitle
		if title == "" {
			title = rec.Summary
		}
		if !match.MatchesQuery(title, filters.Query, filters.Exact, filters.Regex) {
			continue
		}

		results = append(results, models.SearchResult{
			FilePath:       rec.FilePath,
			Project:        rec.Project,
			SessionID:      rec.SessionID,
			Timestamp:      rec.FirstTimestamp,
			Summary:        rec.Summary,
			CustomTitle:    rec.CustomTitle,
			GitBranch:      rec.GitBranch,
			IsSubagent:     rec.IsSubagent,
			RelevanceScore: match.Score(filters.Query, rec.Summary, rec.CustomTitle, "", "", rec.FirstTimestamp),
		})
		if !filters.SortByRelevance && len(results) >= limit {
			break
		}
	}

	if filters.SortByRelevance {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].RelevanceScore > results[j].RelevanceScore
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
