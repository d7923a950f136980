// Package discovery enumerates transcript files under the projects
// root, applying project and agent scoping. Results are ordered by
// modification time, newest first; that ordering is the default
// presentation order for non-relevance search.
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File is one discovered transcript file.
type File struct {
	Path       string
	Project    string
	IsSubagent bool
	Mtime      time.Time
}

// Options scope a discovery pass.
type Options struct {
	Project       string // "" or "all" = no scoping; otherwise substring match
	AgentsOnly    bool
	ExcludeAgents bool
}

// IsSubagentPath reports whether a transcript path follows the
// subagent filesystem convention. The convention (a /subagents/ path
// segment or an agent- filename prefix) is a producer-side detail
// with no schema backing, so the check is isolated here for easy
// replacement if the convention changes.
func IsSubagentPath(path string) bool {
	if strings.Contains(filepath.ToSlash(path), "/subagents/") {
		return true
	}
	return strings.HasPrefix(filepath.Base(path), "agent-")
}

// DecodeProject turns a projects-dir entry name into a project path.
// Claude encodes absolute paths by replacing separators with dashes
// and prefixing a dash; names that do not look encoded are returned
// verbatim.
func DecodeProject(dirName string) string {
	if len(dirName) > 0 && dirName[0] == '-' {
		return "/" + strings.ReplaceAll(dirName[1:], "-", "/")
	}
	return dirName
}

// Find walks root for .jsonl transcript files matching opts. A
// missing root yields an empty result, not an error. Files are
// deduplicated and sorted by mtime descending.
func Find(root string, opts Options) ([]File, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var files []File

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree, skip it
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		if seen[path] {
			return nil
		}

		isAgent := IsSubagentPath(path)
		if opts.AgentsOnly && !isAgent {
			return nil
		}
		if opts.ExcludeAgents && isAgent {
			return nil
		}

		project := projectForPath(root, path)
		if !matchesProject(project, filepath.Dir(path), opts.Project) {
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}

		seen[path] = true
		files = append(files, File{
			Path:       path,
			Project:    project,
			IsSubagent: isAgent,
			Mtime:      info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Mtime.After(files[j].Mtime)
	})
	return files, nil
}

// projectForPath derives the project from the first path segment
// under root.
func projectForPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	return DecodeProject(parts[0])
}

func matchesProject(project, dir, scope string) bool {
	if scope == "" || scope == "all" {
		return true
	}
	needle := strings.ToLower(scope)
	return strings.Contains(strings.ToLower(project), needle) ||
		strings.Contains(strings.ToLower(filepath.ToSlash(dir)), needle)
}
