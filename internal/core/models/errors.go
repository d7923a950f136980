package models

import "errors"

// Error categories for the search/cache boundary. Individual call
// sites wrap these with context via fmt.Errorf and %w.
var (
	// ErrFileRead marks an I/O failure reading a transcript file.
	// During batch reindexing it aborts only that file, not the run.
	ErrFileRead = errors.New("file read error")

	// ErrInvalidPattern marks a rejected or uncompilable user
	// pattern. Callers treat the predicate as never matching; the
	// error is never surfaced to the end user.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrCacheCorruption marks a stored JSON column that failed to
	// parse. Readers substitute an empty value and log a warning.
	ErrCacheCorruption = errors.New("cache corruption")
)
