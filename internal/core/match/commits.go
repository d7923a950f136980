package match

import (
	"regexp"
	"strings"

	"github.com/genesiscz/cchistory/internal/core/models"
)

// hexRunRe matches candidate commit hashes: 7 to 40 hex characters
// on word boundaries.
var hexRunRe = regexp.MustCompile(`\b[0-9a-fA-F]{7,40}\b`)

// commitCues are the phrases a hex run must co-occur with to count
// as a commit hash. Best-effort heuristic, not a git-log parser.
var commitCues = []string{
	"git commit",
	"commit:",
	"committed",
	"root-commit",
	"commit hash",
}

// ExtractCommitHashes scans user tool-result output for commit
// hashes. Duplicates and degenerate all-same-character runs are
// dropped. Order of first occurrence is preserved.
func ExtractCommitHashes(messages []models.Message) []string {
	seen := make(map[string]bool)
	var hashes []string

	for i := range messages {
		msg := &messages[i]
		if msg.Type != models.MessageTypeUser {
			continue
		}
		for _, block := range msg.Blocks {
			if block.Type != "tool_result" {
				continue
			}
			text := toolResultText(block.Content)
			if !hasCommitCue(text) {
				continue
			}
			for _, candidate := range hexRunRe.FindAllString(text, -1) {
				hash := strings.ToLower(candidate)
				if seen[hash] || isDegenerate(hash) {
					continue
				}
				seen[hash] = true
				hashes = append(hashes, hash)
			}
		}
	}
	return hashes
}

func hasCommitCue(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range commitCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// isDegenerate rejects runs of a single repeated character, which
// show up in dividers and padded output.
func isDegenerate(hash string) bool {
	for i := 1; i < len(hash); i++ {
		if hash[i] != hash[0] {
			return false
		}
	}
	return true
}
