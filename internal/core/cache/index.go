package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/genesiscz/cchistory/internal/core/discovery"
	"github.com/genesiscz/cchistory/internal/core/match"
	"github.com/genesiscz/cchistory/internal/core/models"
	"github.com/genesiscz/cchistory/internal/core/transcript"
)

// IndexOutcome reports what ProcessFile did.
type IndexOutcome int

const (
	OutcomeUnchanged IndexOutcome = iota
	OutcomeIndexed
)

// fileStats is the full derived contribution of one transcript file.
type fileStats struct {
	Path         string
	Project      string
	IsSubagent   bool
	MtimeMs      int64
	MessageCount int
	FirstDate    string
	LastDate     string

	DailyMessages map[string]int            // date -> message count
	DailyHourly   map[string]map[string]int // date -> hour -> count

	// Categorical breakdowns, attributed to FirstDate when merging.
	ToolCounts   map[string]int
	BranchCounts map[string]int
	ModelCounts  map[string]int
	TokenUsage   map[string]int
}

// computeFileStats derives a file's full statistics contribution
// from its parsed messages.
func computeFileStats(f discovery.File, mtimeMs int64, msgs []models.Message) *fileStats {
	fs := &fileStats{
		Path:          f.Path,
		Project:       f.Project,
		IsSubagent:    f.IsSubagent,
		MtimeMs:       mtimeMs,
		MessageCount:  len(msgs),
		DailyMessages: map[string]int{},
		DailyHourly:   map[string]map[string]int{},
		ToolCounts:    map[string]int{},
		BranchCounts:  map[string]int{},
		ModelCounts:   map[string]int{},
		TokenUsage:    map[string]int{},
	}

	for i := range msgs {
		msg := &msgs[i]

		if date := msg.DateKey(); date != "" {
			fs.DailyMessages[date]++
			hour := strconv.Itoa(msg.Timestamp.UTC().Hour())
			if fs.DailyHourly[date] == nil {
				fs.DailyHourly[date] = map[string]int{}
			}
			fs.DailyHourly[date][hour]++

			if fs.FirstDate == "" || date < fs.FirstDate {
				fs.FirstDate = date
			}
			if date > fs.LastDate {
				fs.LastDate = date
			}
		}

		if msg.GitBranch != "" {
			fs.BranchCounts[msg.GitBranch]++
		}

		for _, use := range match.ExtractToolUses(msg) {
			if use.Name != "" {
				fs.ToolCounts[use.Name]++
			}
		}

		if msg.Type == models.MessageTypeAssistant {
			if msg.Model != "" {
				fs.ModelCounts[bucketModel(msg.Model)]++
			}
			if msg.Usage != nil {
				fs.TokenUsage["input"] += msg.Usage.InputTokens
				fs.TokenUsage["output"] += msg.Usage.OutputTokens
				fs.TokenUsage["cacheCreation"] += msg.Usage.CacheCreationTokens
				fs.TokenUsage["cacheRead"] += msg.Usage.CacheReadTokens
			}
		}
	}

	return fs
}

// bucketModel reduces a model name to a coarse family by substring.
func bucketModel(model string) string {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "opus"):
		return "opus"
	case strings.Contains(lower, "sonnet"):
		return "sonnet"
	case strings.Contains(lower, "haiku"):
		return "haiku"
	default:
		return "other"
	}
}

// ProcessFile reindexes one transcript file if its mtime changed.
// Unchanged files are a no-op, which makes concurrent re-runs on the
// same file safe. The invalidate-then-reinsert sequence runs inside
// one transaction so a half-removed day bucket is never visible.
func (e *Engine) ProcessFile(f discovery.File) (IndexOutcome, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("%w: stat %s: %v", models.ErrFileRead, f.Path, err)
	}
	mtimeMs := info.ModTime().UnixMilli()

	existing, err := e.getFileIndex(f.Path)
	if err != nil {
		return OutcomeUnchanged, err
	}
	if existing != nil && existing.Mtime == mtimeMs {
		return OutcomeUnchanged, nil
	}

	msgs, err := transcript.ParseFile(f.Path)
	if err != nil {
		return OutcomeUnchanged, err
	}
	fs := computeFileStats(f, mtimeMs, msgs)

	tx, err := e.db.Begin()
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("begin reindex: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A stale record's old contribution cannot be delta-patched out;
	// the whole date range it touched is dropped and re-derived. The
	// dropped days also held other files' contributions, so those
	// files re-contribute to exactly the dropped days afterwards.
	var dirty map[string]bool
	if existing != nil && existing.FirstDate != "" {
		dirty = map[string]bool{}
		markDates(dirty, existing.FirstDate, existing.LastDate)
		if err := deleteDailyRange(tx, existing.FirstDate, existing.LastDate); err != nil {
			return OutcomeUnchanged, err
		}
	}

	if err := upsertFileIndex(tx, fs); err != nil {
		return OutcomeUnchanged, err
	}
	if err := e.mergeFileStats(tx, fs, nil); err != nil {
		return OutcomeUnchanged, err
	}

	if dirty != nil {
		others, err := overlappingIndexed(tx, fs.Path, existing.FirstDate, existing.LastDate)
		if err != nil {
			return OutcomeUnchanged, err
		}
		for _, o := range others {
			msgs, err := transcript.ParseFile(o.file.Path)
			if err != nil {
				e.log.Warn("skipping unparseable transcript", "path", o.file.Path, "err", err)
				continue
			}
			ofs := computeFileStats(o.file, o.mtime, msgs)
			if err := e.mergeFileStats(tx, ofs, dirty); err != nil {
				return OutcomeUnchanged, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return OutcomeUnchanged, fmt.Errorf("commit reindex: %w", err)
	}
	return OutcomeIndexed, nil
}

func (e *Engine) getFileIndex(path string) (*models.FileIndexRecord, error) {
	var rec models.FileIndexRecord
	var firstDate, lastDate, project, lastIndexed sql.NullString
	var isSubagent int
	err := e.db.QueryRow(`
		SELECT file_path, mtime, message_count, first_date, last_date, project, is_subagent, last_indexed
		FROM file_index WHERE file_path = ?
	`, path).Scan(&rec.FilePath, &rec.Mtime, &rec.MessageCount, &firstDate, &lastDate, &project, &isSubagent, &lastIndexed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read file_index %s: %w", path, err)
	}
	rec.FirstDate = firstDate.String
	rec.LastDate = lastDate.String
	rec.Project = project.String
	rec.IsSubagent = isSubagent != 0
	if lastIndexed.Valid {
		if t, perr := time.Parse(time.RFC3339, lastIndexed.String); perr == nil {
			rec.LastIndexed = t
		}
	}
	return &rec, nil
}

func upsertFileIndex(tx *sql.Tx, fs *fileStats) error {
	isSubagent := 0
	if fs.IsSubagent {
		isSubagent = 1
	}
	_, err := tx.Exec(`
		INSERT INTO file_index (file_path, mtime, message_count, first_date, last_date, project, is_subagent, last_indexed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			mtime = excluded.mtime,
			message_count = excluded.message_count,
			first_date = excluded.first_date,
			last_date = excluded.last_date,
			project = excluded.project,
			is_subagent = excluded.is_subagent,
			last_indexed = excluded.last_indexed
	`, fs.Path, fs.MtimeMs, fs.MessageCount, fs.FirstDate, fs.LastDate,
		fs.Project, isSubagent, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert file_index %s: %w", fs.Path, err)
	}
	return nil
}

type indexedFile struct {
	file  discovery.File
	mtime int64
}

// overlappingIndexed lists the other indexed files whose date range
// touches [from, to]. Rows are drained before returning because the
// engine holds a single connection.
func overlappingIndexed(tx *sql.Tx, exclude, from, to string) ([]indexedFile, error) {
	rows, err := tx.Query(`
		SELECT file_path, mtime, project, is_subagent
		FROM file_index
		WHERE file_path != ? AND first_date <= ? AND last_date >= ?
	`, exclude, to, from)
	if err != nil {
		return nil, fmt.Errorf("read overlapping file_index %s..%s: %w", from, to, err)
	}
	defer func() { _ = rows.Close() }()

	var out []indexedFile
	for rows.Next() {
		var f indexedFile
		var isSubagent int
		if err := rows.Scan(&f.file.Path, &f.mtime, &f.file.Project, &isSubagent); err != nil {
			return nil, fmt.Errorf("scan overlapping file_index: %w", err)
		}
		f.file.IsSubagent = isSubagent != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

func deleteDailyRange(tx *sql.Tx, from, to string) error {
	if _, err := tx.Exec(`DELETE FROM daily_stats WHERE date >= ? AND date <= ?`, from, to); err != nil {
		return fmt.Errorf("invalidate daily range %s..%s: %w", from, to, err)
	}
	return nil
}

// mergeFileStats folds one file's contribution into its day buckets.
// When onlyDates is non-nil, contributions outside that set are
// skipped (used when re-deriving invalidated days for otherwise
// unchanged files). Raw message and hourly counts spread across each
// day; conversation counters and the categorical breakdowns all land
// on the file's first date bucket.
func (e *Engine) mergeFileStats(tx *sql.Tx, fs *fileStats, onlyDates map[string]bool) error {
	if fs.FirstDate == "" {
		return nil // no dated messages, nothing to bucket
	}

	include := func(date string) bool {
		return onlyDates == nil || onlyDates[date]
	}

	for date, count := range fs.DailyMessages {
		if !include(date) {
			continue
		}
		day, err := e.readDailyRow(tx, date, models.AllProjects)
		if err != nil {
			return err
		}

		day.Messages += count
		day.HourlyActivity = models.MergeCounts(day.HourlyActivity, fs.DailyHourly[date])

		if date == fs.FirstDate {
			day.Conversations++
			if fs.IsSubagent {
				day.SubagentSessions++
			}
			day.ToolCounts = models.MergeCounts(day.ToolCounts, fs.ToolCounts)
			day.TokenUsage = models.MergeCounts(day.TokenUsage, fs.TokenUsage)
			day.ModelCounts = models.MergeCounts(day.ModelCounts, fs.ModelCounts)
			day.BranchCounts = models.MergeCounts(day.BranchCounts, fs.BranchCounts)
		}

		if err := upsertDailyRow(tx, day); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) readDailyRow(tx *sql.Tx, date, project string) (*models.DailyStats, error) {
	day := &models.DailyStats{Date: date, Project: project}
	var tools, hourly, tokens, modelsCol, branches string
	var computedAt sql.NullString
	err := tx.QueryRow(`
		SELECT conversations, messages, subagent_sessions,
		       tool_counts, hourly_activity, token_usage, model_counts, branch_counts, computed_at
		FROM daily_stats WHERE date = ? AND project = ?
	`, date, project).Scan(&day.Conversations, &day.Messages, &day.SubagentSessions,
		&tools, &hourly, &tokens, &modelsCol, &branches, &computedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return day, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read daily_stats %s/%s: %w", date, project, err)
	}

	day.ToolCounts = e.decodeCountMap("tool_counts", tools)
	day.HourlyActivity = e.decodeCountMap("hourly_activity", hourly)
	day.TokenUsage = e.decodeCountMap("token_usage", tokens)
	day.ModelCounts = e.decodeCountMap("model_counts", modelsCol)
	day.BranchCounts = e.decodeCountMap("branch_counts", branches)
	return day, nil
}

func upsertDailyRow(tx *sql.Tx, day *models.DailyStats) error {
	_, err := tx.Exec(`
		INSERT INTO daily_stats (date, project, conversations, messages, subagent_sessions,
			tool_counts, hourly_activity, token_usage, model_counts, branch_counts, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, project) DO UPDATE SET
			conversations = excluded.conversations,
			messages = excluded.messages,
			subagent_sessions = excluded.subagent_sessions,
			tool_counts = excluded.tool_counts,
			hourly_activity = excluded.hourly_activity,
			token_usage = excluded.token_usage,
			model_counts = excluded.model_counts,
			branch_counts = excluded.branch_counts,
			computed_at = excluded.computed_at
	`, day.Date, day.Project, day.Conversations, day.Messages, day.SubagentSessions,
		encodeCountMap(day.ToolCounts), encodeCountMap(day.HourlyActivity),
		encodeCountMap(day.TokenUsage), encodeCountMap(day.ModelCounts),
		encodeCountMap(day.BranchCounts), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert daily_stats %s/%s: %w", day.Date, day.Project, err)
	}
	return nil
}
