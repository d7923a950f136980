// Package cache persists per-file index records, per-day statistics
// aggregates and lightweight session metadata in SQLite, so repeat
// statistics and summary queries never re-read unchanged transcript
// files.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/genesiscz/cchistory/internal/core/logging"
	"github.com/genesiscz/cchistory/internal/core/models"
)

// Engine owns the cache database. Construct with Open, release with
// Close; callers pass the instance rather than relying on a process
// singleton. SQLite statement-level atomicity is the serialization
// point for concurrent top-level requests.
type Engine struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the cache directory if needed, opens the database in
// WAL mode and initializes the schema.
func Open(dbPath string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite supports a single writer; a pool of one connection
	// serializes mutating cache operations.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	e := &Engine{db: db, log: logging.ForComponent("cache")}
	if err := e.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return e, nil
}

// Close closes the database connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Clear wipes all five cache tables.
func (e *Engine) Clear() error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"daily_stats", "file_index", "cache_meta", "totals_cache", "session_metadata"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// GetMeta reads one cache_meta value; missing keys yield "".
func (e *Engine) GetMeta(key string) (string, error) {
	var value string
	err := e.db.QueryRow("SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cache_meta %s: %w", key, err)
	}
	return value, nil
}

func (e *Engine) setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO cache_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// decodeCountMap parses a JSON count column. Malformed stored JSON
// is recovered as an empty map and logged, never raised.
func (e *Engine) decodeCountMap(column, raw string) map[string]int {
	if raw == "" {
		return map[string]int{}
	}
	var m map[string]int
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		e.log.Warn("corrupt cache column, using empty value",
			"column", column, "err", fmt.Errorf("%w: %v", models.ErrCacheCorruption, err))
		return map[string]int{}
	}
	if m == nil {
		m = map[string]int{}
	}
	return m
}

func encodeCountMap(m map[string]int) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}
