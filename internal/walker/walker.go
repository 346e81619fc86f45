// Package walker enumerates candidate files under a root directory,
// honoring directory-name exclusions, glob exclusions and a depth limit.
package walker

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// Options filter a traversal. The zero value walks everything.
type Options struct {
	// ExcludeDirs are directory names that are never descended into.
	ExcludeDirs []string

	// ExcludePatterns are glob patterns matched against file basenames
	// (or the full path when the pattern contains a separator).
	ExcludePatterns []string

	// MaxDepth limits how many directory levels below root are entered.
	// Zero means unlimited; 1 yields only files directly under root.
	MaxDepth int
}

// Walk traverses root and calls fn for every file that passes the
// filters. Directories and symlinks are never reported. fn may be
// invoked concurrently from multiple goroutines; returning a non-nil
// error stops the walk and is returned from Walk.
func Walk(root string, opts Options, fn func(path string) error) error {
	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, name := range opts.ExcludeDirs {
		excluded[name] = true
	}

	conf := fastwalk.Config{Follow: false}

	return fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if excluded[d.Name()] {
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 && depthBelow(root, path) >= opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matchesAny(opts.ExcludePatterns, path) {
			return nil
		}
		return fn(path)
	})
}

// Count runs the same traversal as Walk with identical filtering and
// returns the number of files it would report.
func Count(root string, opts Options) (int64, error) {
	var n atomic.Int64
	err := Walk(root, opts, func(string) error {
		n.Add(1)
		return nil
	})
	return n.Load(), err
}

// depthBelow returns how many components separate path from root.
func depthBelow(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func matchesAny(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		target := base
		if strings.ContainsRune(pattern, filepath.Separator) {
			target = path
		}
		if ok, err := filepath.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}
