package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/genesiscz/cchistory/internal/core/discovery"
	"github.com/genesiscz/cchistory/internal/core/models"
	"github.com/genesiscz/cchistory/internal/core/transcript"
)

// ProgressFunc is invoked after each file during a recompute pass.
// Advisory only: it must never block and is not required for
// correctness.
type ProgressFunc func(processed, total int, current string)

const metaLastFullUpdate = "last_full_update"

// RecomputeStats runs the incremental aggregation pass over the
// discovered files and returns the reduced statistics, optionally
// restricted to [from, to] (inclusive YYYY-MM-DD, empty = open).
//
// Today's bucket is always invalidated first: the current day's data
// is assumed to still be growing. Any day bucket that gets dropped
// is fully re-derived, including the contributions of files that
// were otherwise unchanged, so that summed counters stay equal to a
// direct re-scan after the pass.
func (e *Engine) RecomputeStats(files []discovery.File, from, to string, progress ProgressFunc) (*models.AggregatedStats, error) {
	today := time.Now().UTC().Format("2006-01-02")

	dirty := map[string]bool{today: true}

	var changed []*fileStats
	var unchanged []struct {
		file discovery.File
		rec  *models.FileIndexRecord
	}

	total := len(files)
	for i, f := range files {
		if progress != nil {
			progress(i+1, total, f.Path)
		}

		info, err := os.Stat(f.Path)
		if err != nil {
			// Vanished or unreadable: drop it from this pass
			e.log.Warn("skipping unreadable transcript", "path", f.Path, "err", err)
			continue
		}
		mtimeMs := info.ModTime().UnixMilli()

		rec, err := e.getFileIndex(f.Path)
		if err != nil {
			return nil, err
		}

		if rec != nil && rec.Mtime == mtimeMs {
			unchanged = append(unchanged, struct {
				file discovery.File
				rec  *models.FileIndexRecord
			}{f, rec})
			continue
		}

		msgs, err := transcript.ParseFile(f.Path)
		if err != nil {
			e.log.Warn("skipping unparseable transcript", "path", f.Path, "err", err)
			continue
		}
		fs := computeFileStats(f, mtimeMs, msgs)
		changed = append(changed, fs)

		if rec != nil && rec.FirstDate != "" {
			markDates(dirty, rec.FirstDate, rec.LastDate)
		}
		if fs.FirstDate != "" {
			markDates(dirty, fs.FirstDate, fs.LastDate)
		}
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin stats recompute: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for date := range dirty {
		if err := deleteDailyRange(tx, date, date); err != nil {
			return nil, err
		}
	}

	for _, fs := range changed {
		if err := upsertFileIndex(tx, fs); err != nil {
			return nil, err
		}
		if err := e.mergeFileStats(tx, fs, nil); err != nil {
			return nil, err
		}
	}

	// Unchanged files whose date range overlaps an invalidated day
	// re-contribute to those days only.
	for _, u := range unchanged {
		if u.rec.FirstDate == "" || !rangeTouches(dirty, u.rec.FirstDate, u.rec.LastDate) {
			continue
		}
		msgs, err := transcript.ParseFile(u.file.Path)
		if err != nil {
			e.log.Warn("skipping unparseable transcript", "path", u.file.Path, "err", err)
			continue
		}
		fs := computeFileStats(u.file, u.rec.Mtime, msgs)
		if err := e.mergeFileStats(tx, fs, dirty); err != nil {
			return nil, err
		}
	}

	if err := e.setMeta(tx, metaLastFullUpdate, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("update %s: %w", metaLastFullUpdate, err)
	}

	totals, err := refreshTotals(tx)
	if err != nil {
		return nil, err
	}

	histogram, err := lengthHistogram(tx)
	if err != nil {
		return nil, err
	}

	stats, err := e.aggregateDaily(tx, from, to)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stats recompute: %w", err)
	}

	stats.TotalConversations = totals.TotalConversations
	stats.TotalMessages = totals.TotalMessages
	stats.ProjectCount = totals.ProjectCount
	stats.LengthHistogram = histogram
	return stats, nil
}

// StatsForDateRange serves a range query from cached daily rows when
// any exist for the range, re-scanning files only when the cache has
// nothing for it.
func (e *Engine) StatsForDateRange(files []discovery.File, from, to string, progress ProgressFunc) (*models.AggregatedStats, error) {
	var cached int
	err := e.db.QueryRow(`
		SELECT COUNT(*) FROM daily_stats WHERE date >= ? AND date <= ? AND project = ?
	`, from, to, models.AllProjects).Scan(&cached)
	if err != nil {
		return nil, fmt.Errorf("probe daily_stats range: %w", err)
	}
	if cached == 0 {
		return e.RecomputeStats(files, from, to, progress)
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin range read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stats, err := e.aggregateDaily(tx, from, to)
	if err != nil {
		return nil, err
	}
	histogram, err := lengthHistogram(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit range read: %w", err)
	}

	if totals, terr := e.Totals(); terr == nil && totals != nil {
		stats.TotalConversations = totals.TotalConversations
		stats.TotalMessages = totals.TotalMessages
		stats.ProjectCount = totals.ProjectCount
	}
	stats.LengthHistogram = histogram
	return stats, nil
}

// InvalidateDate drops one day bucket and the index records of every
// file touching it, forcing re-derivation on the next pass.
func (e *Engine) InvalidateDate(date string) error {
	return e.InvalidateDateRange(date, date)
}

// InvalidateDateRange drops the day buckets in [from, to] plus the
// file_index rows whose date range overlaps it.
func (e *Engine) InvalidateDateRange(from, to string) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin invalidate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteDailyRange(tx, from, to); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM file_index WHERE first_date <= ? AND last_date >= ?
	`, to, from); err != nil {
		return fmt.Errorf("invalidate file_index %s..%s: %w", from, to, err)
	}
	return tx.Commit()
}

// Totals reads the cached totals row; nil when never computed.
func (e *Engine) Totals() (*models.CachedTotals, error) {
	var t models.CachedTotals
	var lastUpdated sql.NullString
	err := e.db.QueryRow(`
		SELECT total_conversations, total_messages, total_subagents, project_count, last_updated
		FROM totals_cache WHERE id = 1
	`).Scan(&t.TotalConversations, &t.TotalMessages, &t.TotalSubagents, &t.ProjectCount, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read totals_cache: %w", err)
	}
	if lastUpdated.Valid {
		if parsed, perr := time.Parse(time.RFC3339, lastUpdated.String); perr == nil {
			t.LastUpdated = parsed
		}
	}
	return &t, nil
}

// refreshTotals recomputes the totals row from file_index. Project
// counts come from file_index, not daily_stats, because project is
// not date-bucketed.
func refreshTotals(tx *sql.Tx) (*models.CachedTotals, error) {
	var t models.CachedTotals
	err := tx.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(message_count), 0),
		       COALESCE(SUM(is_subagent), 0),
		       COUNT(DISTINCT project)
		FROM file_index
	`).Scan(&t.TotalConversations, &t.TotalMessages, &t.TotalSubagents, &t.ProjectCount)
	if err != nil {
		return nil, fmt.Errorf("compute totals: %w", err)
	}

	t.LastUpdated = time.Now().UTC()
	_, err = tx.Exec(`
		INSERT INTO totals_cache (id, total_conversations, total_messages, total_subagents, project_count, last_updated)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_conversations = excluded.total_conversations,
			total_messages = excluded.total_messages,
			total_subagents = excluded.total_subagents,
			project_count = excluded.project_count,
			last_updated = excluded.last_updated
	`, t.TotalConversations, t.TotalMessages, t.TotalSubagents, t.ProjectCount,
		t.LastUpdated.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("upsert totals_cache: %w", err)
	}
	return &t, nil
}

// lengthHistogram buckets per-file message counts for the length
// distribution chart.
func lengthHistogram(tx *sql.Tx) (map[string]int, error) {
	rows, err := tx.Query(`SELECT message_count FROM file_index`)
	if err != nil {
		return nil, fmt.Errorf("read message counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	histogram := map[string]int{}
	for rows.Next() {
		var count int
		if err := rows.Scan(&count); err != nil {
			return nil, fmt.Errorf("scan message count: %w", err)
		}
		histogram[lengthBucket(count)]++
	}
	return histogram, rows.Err()
}

func lengthBucket(count int) string {
	switch {
	case count <= 10:
		return "1-10"
	case count <= 50:
		return "11-50"
	case count <= 100:
		return "51-100"
	case count <= 200:
		return "101-200"
	case count <= 500:
		return "201-500"
	default:
		return "500+"
	}
}

// aggregateDaily reduces the cached daily rows in scope to one
// AggregatedStats via pointwise addition.
func (e *Engine) aggregateDaily(tx *sql.Tx, from, to string) (*models.AggregatedStats, error) {
	query := `
		SELECT date, project, conversations, messages, subagent_sessions,
		       tool_counts, hourly_activity, token_usage, model_counts, branch_counts
		FROM daily_stats WHERE project = ?`
	args := []any{models.AllProjects}
	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY date ASC"

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read daily_stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &models.AggregatedStats{
		ToolCounts:     map[string]int{},
		HourlyActivity: map[string]int{},
		TokenUsage:     map[string]int{},
		ModelCounts:    map[string]int{},
		BranchCounts:   map[string]int{},
	}

	for rows.Next() {
		var day models.DailyStats
		var tools, hourly, tokens, modelCol, branches string
		if err := rows.Scan(&day.Date, &day.Project, &day.Conversations, &day.Messages,
			&day.SubagentSessions, &tools, &hourly, &tokens, &modelCol, &branches); err != nil {
			return nil, fmt.Errorf("scan daily_stats: %w", err)
		}
		day.ToolCounts = e.decodeCountMap("tool_counts", tools)
		day.HourlyActivity = e.decodeCountMap("hourly_activity", hourly)
		day.TokenUsage = e.decodeCountMap("token_usage", tokens)
		day.ModelCounts = e.decodeCountMap("model_counts", modelCol)
		day.BranchCounts = e.decodeCountMap("branch_counts", branches)

		stats.SubagentSessions += day.SubagentSessions
		stats.ToolCounts = models.MergeCounts(stats.ToolCounts, day.ToolCounts)
		stats.HourlyActivity = models.MergeCounts(stats.HourlyActivity, day.HourlyActivity)
		stats.TokenUsage = models.MergeCounts(stats.TokenUsage, day.TokenUsage)
		stats.ModelCounts = models.MergeCounts(stats.ModelCounts, day.ModelCounts)
		stats.BranchCounts = models.MergeCounts(stats.BranchCounts, day.BranchCounts)
		stats.Daily = append(stats.Daily, day)
	}
	return stats, rows.Err()
}

// markDates adds every date in [from, to] to the set.
func markDates(set map[string]bool, from, to string) {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil || end.Before(start) {
		set[from] = true
		return
	}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		set[d.Format("2006-01-02")] = true
	}
}

func rangeTouches(set map[string]bool, from, to string) bool {
	for date := range set {
		if date >= from && date <= to {
			return true
		}
	}
	return false
}
