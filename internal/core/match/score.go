package match

import (
	"math"
	"strings"
	"time"
)

// Scoring weights. Title hits dominate, then the first user message,
// then capped per-word body occurrences, then recency.
const (
	titlePhraseBonus = 100
	titleWordBonus   = 15
	firstPhraseBonus = 50
	firstWordBonus   = 10
	maxWordHits      = 10
	recencyMaxBonus  = 20
	recencyDays      = 7
)

// Score computes the relevance of one conversation for a query.
// Non-negative and additive; ties are broken by discovery order via
// the caller's stable sort.
func Score(query, summary, customTitle, firstUserMessage, allText string, timestamp time.Time) int {
	return scoreAt(query, summary, customTitle, firstUserMessage, allText, timestamp, time.Now())
}

func scoreAt(query, summary, customTitle, firstUserMessage, allText string, timestamp, now time.Time) int {
	phrase := strings.ToLower(strings.TrimSpace(query))
	if phrase == "" {
		return recencyBonus(timestamp, now)
	}
	words := strings.Fields(phrase)

	title := strings.ToLower(customTitle + " " + summary)
	first := strings.ToLower(firstUserMessage)
	body := strings.ToLower(allText)

	score := 0

	// The phrase bonus stacks with the per-word bonuses, so a verbatim
	// title hit outranks any accumulation of scattered word hits.
	if strings.Contains(title, phrase) {
		score += titlePhraseBonus
	}
	for _, w := range words {
		if strings.Contains(title, w) {
			score += titleWordBonus
		}
	}

	if strings.Contains(first, phrase) {
		score += firstPhraseBonus
	} else {
		for _, w := range words {
			if strings.Contains(first, w) {
				score += firstWordBonus
			}
		}
	}

	for _, w := range words {
		hits := strings.Count(body, w)
		if hits > maxWordHits {
			hits = maxWordHits
		}
		score += hits
	}

	return score + recencyBonus(timestamp, now)
}

// recencyBonus decays linearly from recencyMaxBonus to 0 over the
// last recencyDays days. Future or missing timestamps earn nothing.
func recencyBonus(timestamp, now time.Time) int {
	if timestamp.IsZero() || timestamp.After(now) {
		return 0
	}
	days := now.Sub(timestamp).Hours() / 24
	if days > recencyDays {
		return 0
	}
	return int(math.Round(recencyMaxBonus * (1 - days/recencyDays)))
}
