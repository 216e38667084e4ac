package tdd

import (
	"path"
	"strings"

	"github.com/fyrsmithlabs/prove/internal/config"
)

// DefaultTestPatterns are the configured defaults. A pattern ending in "/"
// matches a directory segment anywhere in the path; any other pattern is a
// glob against the base name.
var DefaultTestPatterns = config.DefaultTestPatterns

// TestMatcher classifies paths as test or non-test files.
type TestMatcher struct {
	globs []string
	dirs  []string
}

// NewTestMatcher compiles patterns, falling back to DefaultTestPatterns.
func NewTestMatcher(patterns []string) *TestMatcher {
	if len(patterns) == 0 {
		patterns = DefaultTestPatterns
	}
	m := &TestMatcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasSuffix(p, "/"):
			m.dirs = append(m.dirs, strings.Trim(p, "/"))
		default:
			m.globs = append(m.globs, p)
		}
	}
	return m
}

// Match reports whether p is a test file.
func (m *TestMatcher) Match(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	base := path.Base(p)
	for _, g := range m.globs {
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	if len(m.dirs) == 0 {
		return false
	}
	segments := strings.Split(path.Dir(p), "/")
	for _, seg := range segments {
		for _, d := range m.dirs {
			if seg == d {
				return true
			}
		}
	}
	return false
}

// OnlySource reports whether files is non-empty and contains no test file.
func (m *TestMatcher) OnlySource(files []string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if m.Match(f) {
			return false
		}
	}
	return true
}
