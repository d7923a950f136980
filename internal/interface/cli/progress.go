package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// progressReporter draws a terminal progress bar during long cache
// recompute passes.
type progressReporter struct {
	writer    io.Writer
	startTime time.Time
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{writer: w, startTime: time.Now()}
}

// Update redraws the bar. Shaped to match cache.ProgressFunc.
func (p *progressReporter) Update(processed, total int, current string) {
	if total <= 0 {
		return
	}
	pct := float64(processed) / float64(total) * 100

	barWidth := 40
	filled := barWidth * processed / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	elapsed := time.Since(p.startTime)
	var eta time.Duration
	if processed > 0 {
		rate := float64(processed) / elapsed.Seconds()
		eta = time.Duration(float64(total-processed)/rate) * time.Second
	}

	name := filepath.Base(current)
	if len(name) > 40 {
		name = name[:37] + "..."
	}

	_, _ = fmt.Fprintf(p.writer, "\r[%s] %3.0f%% (%d/%d) ETA: %s | %-40s",
		bar, pct, processed, total, eta.Round(time.Second), name)
}

// Finish terminates the bar line.
func (p *progressReporter) Finish(total int) {
	elapsed := time.Since(p.startTime)
	_, _ = fmt.Fprintf(p.writer, "\nProcessed %d files in %s\n", total, elapsed.Round(time.Millisecond))
}
