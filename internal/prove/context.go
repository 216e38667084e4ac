package prove

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/fyrsmithlabs/prove/internal/coverage"
	"github.com/fyrsmithlabs/prove/internal/mode"
	"github.com/fyrsmithlabs/prove/internal/tdd"
	"github.com/fyrsmithlabs/prove/internal/vcs"
)

// Toggles is the feature-toggle state of a run.
type Toggles map[string]bool

// Enabled reports whether key is switched on. Unknown keys are off.
func (t Toggles) Enabled(key string) bool {
	return t[key]
}

// Settings carries the thresholds and commands checks read.
type Settings struct {
	TrunkBranches    []string
	RequiredEnv      []string
	Commands         map[string]string
	DiffThreshold    float64
	GlobalThreshold  float64
	SourceExtensions []string
	TestPatterns     []string
	SingleCommit     bool
	CoveragePath     string
	RCAGlob          string
	AllowlistPath    string
	FlagPattern      string
	KillPattern      string
}

// SettingsFromConfig extracts check settings from cfg, resolving paths
// against workDir.
func SettingsFromConfig(cfg *config.Config, workDir string) Settings {
	return Settings{
		TrunkBranches:    cfg.Prove.TrunkBranches,
		RequiredEnv:      cfg.Prove.RequiredEnv,
		Commands:         cfg.Checks.Commands,
		DiffThreshold:    cfg.Coverage.DiffThreshold,
		GlobalThreshold:  cfg.Coverage.GlobalThreshold,
		SourceExtensions: cfg.Coverage.SourceExtensions,
		TestPatterns:     cfg.TDD.TestPatterns,
		SingleCommit:     cfg.TDD.SingleCommit,
		CoveragePath:     config.Resolve(workDir, cfg.Coverage.PayloadPath),
		RCAGlob:          cfg.Paths.RCAGlob,
		AllowlistPath:    config.Resolve(workDir, cfg.Paths.Allowlist),
		FlagPattern:      cfg.KillSwitch.FlagPattern,
		KillPattern:      cfg.KillSwitch.KillSwitchPattern,
	}
}

// Context is the input bundle of one run. It is built once per invocation
// and must not be modified by checks.
type Context struct {
	RunID       string
	VCS         vcs.Snapshot
	Env         map[string]string
	Mode        mode.Mode
	ModeSource  mode.Source
	Evidence    []tdd.TestEvidence
	WorkingDir  string
	StartedAt   time.Time
	Toggles     Toggles
	// Coverage is nil when no payload was loaded; CoverageErr says why.
	Coverage    coverage.Payload
	CoverageErr error
	Marker      *tdd.Marker
	TaskID      string
	Settings    Settings
}

// Getenv returns the snapshot value of key.
func (c *Context) Getenv(key string) string {
	return c.Env[key]
}

// Path resolves p against the working directory.
func (c *Context) Path(p string) string {
	return config.Resolve(c.WorkingDir, p)
}

// ReadFile reads a working-tree file named relative to the working directory.
func (c *Context) ReadFile(p string) ([]byte, error) {
	return os.ReadFile(c.Path(filepath.FromSlash(p)))
}

// ChangedLines flattens the snapshot's changed lines, sorted by file.
func (c *Context) ChangedLines() []coverage.ChangedLine {
	files := make([]string, 0, len(c.VCS.ChangedLines))
	for f := range c.VCS.ChangedLines {
		files = append(files, f)
	}
	sort.Strings(files)

	var out []coverage.ChangedLine
	for _, f := range files {
		for _, line := range c.VCS.ChangedLines[f] {
			out = append(out, coverage.ChangedLine{File: f, Line: line})
		}
	}
	return out
}

// EnvSnapshot parses KEY=VALUE pairs, as returned by os.Environ.
func EnvSnapshot(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = v
	}
	return env
}
