package cli

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// parseWhen resolves a natural-language or ISO date string to a
// time. Accepts "2025-01-15", RFC3339 and phrases like "last
// tuesday" or "3 days ago".
func parseWhen(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(s, time.Now())
	if err != nil || result == nil {
		return nil, fmt.Errorf("unrecognized date: %q", s)
	}
	return &result.Time, nil
}
