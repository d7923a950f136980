// Package watch reindexes transcript files as they change on disk,
// keeping the cache warm between explicit sync passes.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/genesiscz/cchistory/internal/core/cache"
	"github.com/genesiscz/cchistory/internal/core/discovery"
	"github.com/genesiscz/cchistory/internal/core/logging"
)

// debounceDelay coalesces the burst of write events an appending
// agent produces for a single logical update.
const debounceDelay = 500 * time.Millisecond

// Watcher reindexes changed transcript files through the cache
// engine as filesystem events arrive.
type Watcher struct {
	root   string
	engine *cache.Engine
	log    *slog.Logger
}

// New creates a watcher over root backed by engine.
func New(root string, engine *cache.Engine) *Watcher {
	return &Watcher{root: root, engine: engine, log: logging.ForComponent("watch")}
}

// Run watches until ctx is cancelled. Directories created under the
// root while running are added to the watch set.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := addRecursive(fw, w.root); err != nil {
		return err
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, serr := os.Stat(event.Name); serr == nil && info.IsDir() {
					_ = addRecursive(fw, event.Name)
					continue
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".jsonl" {
				continue
			}
			pending[event.Name] = time.Now()

		case ferr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "err", ferr)

		case <-ticker.C:
			now := time.Now()
			for path, seen := range pending {
				if now.Sub(seen) < debounceDelay {
					continue
				}
				delete(pending, path)
				w.reindex(path)
			}
		}
	}
}

func (w *Watcher) reindex(path string) {
	f := discovery.File{
		Path:       path,
		Project:    projectOf(w.root, path),
		IsSubagent: discovery.IsSubagentPath(path),
	}
	outcome, err := w.engine.ProcessFile(f)
	if err != nil {
		w.log.Warn("reindex failed", "path", path, "err", err)
		return
	}
	if outcome == cache.OutcomeIndexed {
		w.log.Debug("reindexed transcript", "path", path)
	}
}

func projectOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return discovery.DecodeProject(parts[0])
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if werr := fw.Add(path); werr != nil {
				return nil
			}
		}
		return nil
	})
}
