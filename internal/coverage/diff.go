package coverage

import (
	"context"
	"sort"

	"github.com/fyrsmithlabs/prove/internal/logging"
	"go.uber.org/zap"
)

// ChangedLine is one added or modified line of a change.
type ChangedLine struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Result is the diff coverage outcome.
type Result struct {
	TotalLines      int           `json:"totalLines"`
	CoveredLines    int           `json:"coveredLines"`
	Percentage      float64       `json:"percentage"`
	UncoveredLines  []ChangedLine `json:"uncoveredLines"`
	UnresolvedFiles []string      `json:"unresolvedFiles,omitempty"`
}

// Analyzer computes diff coverage for one working directory.
type Analyzer struct {
	root    string
	logger  *logging.Logger
	include func(string) bool
	exclude func(string) bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger used for ambiguous-match warnings.
func WithLogger(l *logging.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithInclude restricts diff coverage to files for which fn returns true.
func WithInclude(fn func(string) bool) Option {
	return func(a *Analyzer) { a.include = fn }
}

// WithExclude drops files for which fn returns true, e.g. test files.
func WithExclude(fn func(string) bool) Option {
	return func(a *Analyzer) { a.exclude = fn }
}

// NewAnalyzer creates an analyzer rooted at workingDir.
func NewAnalyzer(workingDir string, opts ...Option) *Analyzer {
	a := &Analyzer{root: workingDir, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DiffCoverage computes coverage over changed lines with no file filter.
func DiffCoverage(changed []ChangedLine, payload Payload, workingDir string) Result {
	return NewAnalyzer(workingDir).DiffCoverage(context.Background(), changed, payload)
}

// DiffCoverage resolves each changed line against payload. Lines inside no
// statement are non-executable and skipped; lines of files missing from the
// payload count as uncovered.
func (a *Analyzer) DiffCoverage(ctx context.Context, changed []ChangedLine, payload Payload) Result {
	ix := NewIndex(payload, a.root)
	resolved := make(map[string]Match)
	seen := make(map[ChangedLine]struct{}, len(changed))
	unresolved := make(map[string]struct{})

	res := Result{UncoveredLines: []ChangedLine{}}
	for _, cl := range changed {
		file := ix.Normalize(cl.File)
		if !a.counts(file) {
			continue
		}
		key := ChangedLine{File: file, Line: cl.Line}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		m, ok := resolved[file]
		if !ok {
			m = ix.Lookup(file)
			resolved[file] = m
			a.logMatch(ctx, file, m)
		}

		if m.Kind == MatchNone {
			unresolved[file] = struct{}{}
			res.TotalLines++
			res.UncoveredLines = append(res.UncoveredLines, key)
			continue
		}

		covered, executable := payload[m.Key].LineCovered(cl.Line)
		if !executable {
			continue
		}
		res.TotalLines++
		if covered {
			res.CoveredLines++
		} else {
			res.UncoveredLines = append(res.UncoveredLines, key)
		}
	}

	sort.Slice(res.UncoveredLines, func(i, j int) bool {
		li, lj := res.UncoveredLines[i], res.UncoveredLines[j]
		if li.File != lj.File {
			return li.File < lj.File
		}
		return li.Line < lj.Line
	})
	for f := range unresolved {
		res.UnresolvedFiles = append(res.UnresolvedFiles, f)
	}
	sort.Strings(res.UnresolvedFiles)

	res.Percentage = percent(res.CoveredLines, res.TotalLines)
	return res
}

func (a *Analyzer) counts(file string) bool {
	if a.include != nil && !a.include(file) {
		return false
	}
	if a.exclude != nil && a.exclude(file) {
		return false
	}
	return true
}

func (a *Analyzer) logMatch(ctx context.Context, file string, m Match) {
	switch {
	case m.Kind == MatchNone:
		a.logger.Debug(ctx, "changed file has no coverage entry", zap.String("file", file))
	case m.Ambiguous():
		a.logger.Warn(ctx, "ambiguous coverage path match",
			zap.String("file", file),
			zap.String("chosen", m.Key),
			zap.Strings("candidates", m.Candidates),
		)
	case m.Kind == MatchSuffix:
		a.logger.Debug(ctx, "coverage path resolved by suffix",
			zap.String("file", file),
			zap.String("key", m.Key),
		)
	}
}

// ExtensionFilter returns an include func accepting paths whose extension is
// in exts. An empty set accepts everything.
func ExtensionFilter(exts []string) func(string) bool {
	if len(exts) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return func(p string) bool {
		_, ok := set[extOf(p)]
		return ok
	}
}

func extOf(p string) string {
	for i := len(p) - 1; i >= 0 && p[i] != '/'; i-- {
		if p[i] == '.' {
			return p[i:]
		}
	}
	return ""
}
