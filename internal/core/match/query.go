package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/genesiscz/cchistory/internal/core/models"
)

// maxPatternLength bounds user-supplied regex patterns.
const maxPatternLength = 200

// nestedQuantifierRe detects a quantifier immediately following
// another quantifier (possibly through closing brackets), the shape
// behind catastrophic backtracking like (a+)+.
var nestedQuantifierRe = regexp.MustCompile(`[+*}][)\]]*[+*{]`)

// CompilePattern validates a user-supplied pattern through the
// safety gate and compiles it case-insensitively. Rejected or
// invalid patterns return models.ErrInvalidPattern; callers treat
// that as "never matches".
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > maxPatternLength {
		return nil, fmt.Errorf("%w: pattern exceeds %d characters", models.ErrInvalidPattern, maxPatternLength)
	}
	if nestedQuantifierRe.MatchString(pattern) {
		return nil, fmt.Errorf("%w: nested quantifiers", models.ErrInvalidPattern)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPattern, err)
	}
	return re, nil
}

// MatchesQuery evaluates the query against extracted text. The empty
// query matches everything. Default mode is fuzzy: every
// whitespace-separated word must appear as a case-insensitive
// substring, in any order.
func MatchesQuery(text, query string, exact, regex bool) bool {
	if query == "" {
		return true
	}

	if regex {
		re, err := CompilePattern(query)
		if err != nil {
			// Fails closed: an unsafe pattern matches nothing
			return false
		}
		return re.MatchString(text)
	}

	lowerText := strings.ToLower(text)
	if exact {
		return strings.Contains(lowerText, strings.ToLower(query))
	}

	for _, word := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(lowerText, word) {
			return false
		}
	}
	return true
}

// GlobToPattern converts a simplified glob (only * is special) into
// a regex pattern with all other metacharacters escaped.
func GlobToPattern(glob string) string {
	escaped := regexp.QuoteMeta(glob)
	return strings.ReplaceAll(escaped, `\*`, ".*")
}

// MatchesFileGlob reports whether any extracted file path matches
// the simplified glob. The converted pattern passes through the same
// safety gate as user regexes.
func MatchesFileGlob(paths []string, glob string) bool {
	if glob == "" {
		return true
	}
	re, err := CompilePattern(GlobToPattern(glob))
	if err != nil {
		return false
	}
	for _, p := range paths {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func anyPathMatches(paths []string, f *models.SearchFilters) bool {
	for _, p := range paths {
		if MatchesQuery(p, f.Query, f.Exact, f.Regex) {
			return true
		}
	}
	return false
}

// MatchesFilters evaluates the full per-message predicate: query
// text match plus tool, file-glob and timestamp-range filters.
func MatchesFilters(msg *models.Message, f *models.SearchFilters) bool {
	text := ExtractText(msg, f.ExcludeThinking)
	if !MatchesQuery(text, f.Query, f.Exact, f.Regex) {
		// Tool input paths are searchable too: a query can hit a
		// file the assistant touched even when no prose names it.
		if !anyPathMatches(ExtractFilePaths(msg), f) {
			return false
		}
	}

	if f.Tool != "" {
		found := false
		for _, use := range ExtractToolUses(msg) {
			if strings.EqualFold(use.Name, f.Tool) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.File != "" && !MatchesFileGlob(ExtractFilePaths(msg), f.File) {
		return false
	}

	if f.Since != nil || f.Until != nil {
		if !msg.HasTimestamp() {
			return false
		}
		if f.Since != nil && msg.Timestamp.Before(*f.Since) {
			return false
		}
		if f.Until != nil && msg.Timestamp.After(*f.Until) {
			return false
		}
	}

	return true
}
