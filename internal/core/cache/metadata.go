package cache

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/genesiscz/cchistory/internal/core/discovery"
	"github.com/genesiscz/cchistory/internal/core/models"
	"github.com/genesiscz/cchistory/internal/core/transcript"
)

// firstPromptLimit caps the stored first user prompt.
const firstPromptLimit = 120

// RefreshSessionMetadata upserts metadata rows for files whose
// cached mtime is stale or absent, using the bounded head read.
// Unchanged files are skipped; per-file read errors skip only that
// file. Rows for deleted files are never evicted.
func (e *Engine) RefreshSessionMetadata(files []discovery.File) error {
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			e.log.Warn("skipping unreadable transcript", "path", f.Path, "err", err)
			continue
		}
		mtimeMs := info.ModTime().UnixMilli()

		var cached int64
		err = e.db.QueryRow("SELECT mtime FROM session_metadata WHERE file_path = ?", f.Path).Scan(&cached)
		if err == nil && cached == mtimeMs {
			continue
		}
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("read session_metadata %s: %w", f.Path, err)
		}

		msgs, err := transcript.ParseFileHead(f.Path)
		if err != nil {
			e.log.Warn("skipping unparseable transcript head", "path", f.Path, "err", err)
			continue
		}

		rec := extractSessionMetadata(f, mtimeMs, msgs)
		if err := e.upsertSessionMetadata(rec); err != nil {
			return err
		}
	}
	return nil
}

// extractSessionMetadata pulls the first-seen identifying fields out
// of a transcript head.
func extractSessionMetadata(f discovery.File, mtimeMs int64, msgs []models.Message) *models.SessionMetadataRecord {
	rec := &models.SessionMetadataRecord{
		FilePath:   f.Path,
		Project:    f.Project,
		Mtime:      mtimeMs,
		IsSubagent: f.IsSubagent,
	}

	for i := range msgs {
		msg := &msgs[i]

		if rec.SessionID == "" && msg.SessionID != "" {
			rec.SessionID = msg.SessionID
		}
		if rec.GitBranch == "" && msg.GitBranch != "" {
			rec.GitBranch = msg.GitBranch
		}
		if rec.CWD == "" && msg.CWD != "" {
			rec.CWD = msg.CWD
		}
		if rec.FirstTimestamp.IsZero() && msg.HasTimestamp() {
			rec.FirstTimestamp = msg.Timestamp
		}

		switch msg.Type {
		case models.MessageTypeSummary:
			if rec.Summary == "" {
				rec.Summary = msg.Summary
			}
		case models.MessageTypeCustomTitle:
			if rec.CustomTitle == "" {
				rec.CustomTitle = msg.Title
			}
		case models.MessageTypeUser:
			if rec.FirstPrompt == "" {
				rec.FirstPrompt = truncate(firstUserText(msg), firstPromptLimit)
			}
		}
	}
	return rec
}

func firstUserText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	for _, block := range msg.Blocks {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}

// truncate cuts to at most limit runes, never splitting a multi-byte
// character.
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func (e *Engine) upsertSessionMetadata(rec *models.SessionMetadataRecord) error {
	isSubagent := 0
	if rec.IsSubagent {
		isSubagent = 1
	}
	firstTS := ""
	if !rec.FirstTimestamp.IsZero() {
		firstTS = rec.FirstTimestamp.UTC().Format(time.RFC3339)
	}
	_, err := e.db.Exec(`
		INSERT INTO session_metadata (file_path, session_id, custom_title, summary, first_prompt,
			git_branch, project, cwd, mtime, first_timestamp, is_subagent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			session_id = excluded.session_id,
			custom_title = excluded.custom_title,
			summary = excluded.summary,
			first_prompt = excluded.first_prompt,
			git_branch = excluded.git_branch,
			project = excluded.project,
			cwd = excluded.cwd,
			mtime = excluded.mtime,
			first_timestamp = excluded.first_timestamp,
			is_subagent = excluded.is_subagent
	`, rec.FilePath, rec.SessionID, rec.CustomTitle, rec.Summary, rec.FirstPrompt,
		rec.GitBranch, rec.Project, rec.CWD, rec.Mtime, firstTS, isSubagent)
	if err != nil {
		return fmt.Errorf("upsert session_metadata %s: %w", rec.FilePath, err)
	}
	return nil
}

// ListSessions returns a page of session metadata ordered by mtime
// descending, plus total and subagent counts for the scope.
func (e *Engine) ListSessions(project string, offset, limit int) ([]models.SessionMetadataRecord, int, int, error) {
	where := ""
	var args []any
	if project != "" && project != "all" {
		where = " WHERE project LIKE ?"
		args = append(args, "%"+project+"%")
	}

	var total, subagents int
	err := e.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(is_subagent), 0) FROM session_metadata"+where, args...,
	).Scan(&total, &subagents)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("count session_metadata: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT file_path, session_id, custom_title, summary, first_prompt,
		       git_branch, project, cwd, mtime, first_timestamp, is_subagent
		FROM session_metadata` + where + `
		ORDER BY mtime DESC
		LIMIT ? OFFSET ?`
	rows, err := e.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list session_metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records, err := scanSessionMetadata(rows)
	if err != nil {
		return nil, 0, 0, err
	}
	return records, total, subagents, nil
}

// AllSessionMetadata returns every cached row in a project scope,
// mtime descending. Backs the summary-only search fast path.
func (e *Engine) AllSessionMetadata(project string) ([]models.SessionMetadataRecord, error) {
	query := `
		SELECT file_path, session_id, custom_title, summary, first_prompt,
		       git_branch, project, cwd, mtime, first_timestamp, is_subagent
		FROM session_metadata`
	var args []any
	if project != "" && project != "all" {
		query += " WHERE project LIKE ?"
		args = append(args, "%"+project+"%")
	}
	query += " ORDER BY mtime DESC"

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read session_metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessionMetadata(rows)
}

func scanSessionMetadata(rows *sql.Rows) ([]models.SessionMetadataRecord, error) {
	var records []models.SessionMetadataRecord
	for rows.Next() {
		var rec models.SessionMetadataRecord
		var sessionID, title, summary, prompt, branch, project, cwd, firstTS sql.NullString
		var isSubagent int
		if err := rows.Scan(&rec.FilePath, &sessionID, &title, &summary, &prompt,
			&branch, &project, &cwd, &rec.Mtime, &firstTS, &isSubagent); err != nil {
			return nil, fmt.Errorf("scan session_metadata: %w", err)
		}
		rec.SessionID = sessionID.String
		rec.CustomTitle = title.String
		rec.Summary = summary.String
		rec.FirstPrompt = prompt.String
		rec.GitBranch = branch.String
		rec.Project = project.String
		rec.CWD = cwd.String
		rec.IsSubagent = isSubagent != 0
		if firstTS.Valid && firstTS.String != "" {
			if t, err := time.Parse(time.RFC3339, firstTS.String); err == nil {
				rec.FirstTimestamp = t
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
