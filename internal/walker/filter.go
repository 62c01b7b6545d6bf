package walker

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// skippedDirs are directory names never descended into. The output and data
// directories hold generated files, never source manuals.
var skippedDirs = map[string]bool{
	".git":         true,
	".crmrag":      true,
	"__pycache__":  true,
	"node_modules": true,
	"processed":    true,
	"output":       true,
	".venv":        true,
	".idea":        true,
	".vscode":      true,
}

func skipDir(name string) bool {
	return skippedDirs[strings.ToLower(name)]
}

// Filter decides which relative paths are processed. Matching ignores case,
// so "*.pdf" also selects "MANUAL.PDF", and a pattern matches either the
// whole relative path or its base name.
type Filter struct {
	include []string
	exclude []string
}

// NewFilter validates and normalises the patterns. An empty include list
// selects every path.
func NewFilter(include, exclude []string) (Filter, error) {
	var f Filter
	var err error
	if f.include, err = normalisePatterns(include); err != nil {
		return Filter{}, err
	}
	if f.exclude, err = normalisePatterns(exclude); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func normalisePatterns(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		norm := strings.ToLower(filepath.ToSlash(p))
		if !doublestar.ValidatePattern(norm) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
		out = append(out, norm)
	}
	return out, nil
}

// Match reports whether relPath is included and not excluded.
func (f Filter) Match(relPath string) bool {
	p := strings.ToLower(filepath.ToSlash(relPath))
	if len(f.include) > 0 && !matchAny(f.include, p) {
		return false
	}
	return !matchAny(f.exclude, p)
}

func matchAny(patterns []string, p string) bool {
	base := path.Base(p)
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, p) || doublestar.MatchUnvalidated(pattern, base) {
			return true
		}
	}
	return false
}
