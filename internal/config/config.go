// Package config provides configuration loading for prove.
//
// Configuration is read from an optional YAML file in the project and then
// overridden by PROVE_* environment variables. Every section has defaults so
// an empty repository can be gated without any config file at all.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete prove configuration.
type Config struct {
	Prove         ProveConfig         `koanf:"prove"`
	Checks        ChecksConfig        `koanf:"checks"`
	Coverage      CoverageConfig      `koanf:"coverage"`
	TDD           TDDConfig           `koanf:"tdd"`
	Mode          ModeConfig          `koanf:"mode"`
	GitHub        GitHubConfig        `koanf:"github"`
	Paths         PathsConfig         `koanf:"paths"`
	KillSwitch    KillSwitchConfig    `koanf:"killswitch"`
	Toggles       map[string]bool     `koanf:"toggles"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ProveConfig holds repository-level gate settings.
type ProveConfig struct {
	TrunkBranches []string `koanf:"trunk_branches"`
	BaseRef       string   `koanf:"base_ref"`
	RequiredEnv   []string `koanf:"required_env"`
}

// ChecksConfig holds check execution settings.
type ChecksConfig struct {
	DefaultTimeout Duration            `koanf:"default_timeout"`
	Timeouts       map[string]Duration `koanf:"timeouts"`
	Commands       map[string]string   `koanf:"commands"`
}

// CoverageConfig holds coverage thresholds and payload location.
type CoverageConfig struct {
	PayloadPath      string   `koanf:"payload_path"`
	DiffThreshold    float64  `koanf:"diff_threshold"`
	GlobalThreshold  float64  `koanf:"global_threshold"`
	SourceExtensions []string `koanf:"source_extensions"`
}

// TDDConfig controls phase detection and sequence enforcement.
type TDDConfig struct {
	// SingleCommit degrades sequence validation to marker detection on the
	// current commit, for hosts that squash intermediate commits.
	SingleCommit bool     `koanf:"single_commit"`
	TestPatterns []string `koanf:"test_patterns"`
	TaskID       string   `koanf:"task_id"`
}

// ModeConfig controls functional/non-functional resolution.
type ModeConfig struct {
	OverrideVar        string `koanf:"override_var"`
	DescriptorPath     string `koanf:"descriptor_path"`
	FunctionalLabel    string `koanf:"functional_label"`
	NonFunctionalLabel string `koanf:"non_functional_label"`
}

// GitHubConfig identifies the change request for label lookups.
type GitHubConfig struct {
	Token       Secret `koanf:"token"`
	Repository  string `koanf:"repository"`
	PullRequest int    `koanf:"pull_request"`
	BaseURL     string `koanf:"base_url"`
}

// PathsConfig holds well-known input and output locations, relative to the
// working directory unless absolute.
type PathsConfig struct {
	Report    string `koanf:"report"`
	Evidence  string `koanf:"evidence"`
	Marker    string `koanf:"marker"`
	RCAGlob   string `koanf:"rca_glob"`
	Allowlist string `koanf:"allowlist"`
}

// KillSwitchConfig describes how feature flags and their kill switches are
// recognised in changed source files.
type KillSwitchConfig struct {
	FlagPattern       string `koanf:"flag_pattern"`
	KillSwitchPattern string `koanf:"kill_switch_pattern"`
}

// MetricsConfig controls Prometheus metric export.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
}

// Toggle keys understood by the built-in optional checks.
const (
	ToggleKillSwitchRequired = "kill-switch-required"
	ToggleGlobalCoverage     = "global-coverage"
)

// DefaultThreshold is the coverage percentage required when none is
// configured.
const DefaultThreshold = 80.0

// DefaultTestPatterns recognise common JavaScript, TypeScript and Go test
// files and directories.
var DefaultTestPatterns = []string{"*.test.*", "*.spec.*", "*_test.go", "__tests__/", "test/", "tests/"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := seed()
	applyDefaults(&cfg)
	return &cfg
}

// seed returns the base that configuration sources are unmarshalled onto.
// Fields whose zero value is meaningful get their defaults here, so an
// explicit 0 in a file or the environment survives.
func seed() Config {
	return Config{
		Coverage: CoverageConfig{
			DiffThreshold:   DefaultThreshold,
			GlobalThreshold: DefaultThreshold,
		},
	}
}

// TimeoutFor returns the execution budget for a check id.
func (c *Config) TimeoutFor(id string) time.Duration {
	if d, ok := c.Checks.Timeouts[id]; ok && d > 0 {
		return d.Duration()
	}
	return c.Checks.DefaultTimeout.Duration()
}

// Resolve returns p joined to dir unless p is already absolute.
func Resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate validates the configuration.
//
// Returns an error if:
//   - a coverage threshold is outside 0-100
//   - no trunk branch is configured
//   - the default check timeout is not positive
//   - telemetry is enabled without a service name
func (c *Config) Validate() error {
	if c.Coverage.DiffThreshold < 0 || c.Coverage.DiffThreshold > 100 {
		return fmt.Errorf("invalid coverage diff_threshold: %v (must be 0-100)", c.Coverage.DiffThreshold)
	}
	if c.Coverage.GlobalThreshold < 0 || c.Coverage.GlobalThreshold > 100 {
		return fmt.Errorf("invalid coverage global_threshold: %v (must be 0-100)", c.Coverage.GlobalThreshold)
	}
	if len(c.Prove.TrunkBranches) == 0 {
		return errors.New("at least one trunk branch is required")
	}
	if c.Checks.DefaultTimeout <= 0 {
		return errors.New("checks default_timeout must be positive")
	}
	for id, d := range c.Checks.Timeouts {
		if d <= 0 {
			return fmt.Errorf("timeout for check %q must be positive", id)
		}
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.GitHub.Repository != "" && strings.Count(c.GitHub.Repository, "/") != 1 {
		return fmt.Errorf("github repository must be owner/name, got %q", c.GitHub.Repository)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if len(cfg.Prove.TrunkBranches) == 0 {
		cfg.Prove.TrunkBranches = []string{"main", "master"}
	}
	if cfg.Prove.BaseRef == "" {
		cfg.Prove.BaseRef = "HEAD~1"
	}

	if cfg.Checks.DefaultTimeout == 0 {
		cfg.Checks.DefaultTimeout = Duration(5 * time.Minute)
	}
	if cfg.Checks.Commands == nil {
		cfg.Checks.Commands = map[string]string{}
	}

	if cfg.Coverage.PayloadPath == "" {
		cfg.Coverage.PayloadPath = "coverage/coverage-final.json"
	}
	if len(cfg.Coverage.SourceExtensions) == 0 {
		cfg.Coverage.SourceExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
	}

	if len(cfg.TDD.TestPatterns) == 0 {
		cfg.TDD.TestPatterns = append([]string(nil), DefaultTestPatterns...)
	}

	if cfg.Mode.OverrideVar == "" {
		cfg.Mode.OverrideVar = "PROVE_MODE"
	}
	if cfg.Mode.DescriptorPath == "" {
		cfg.Mode.DescriptorPath = ".prove/task.json"
	}
	if cfg.Mode.FunctionalLabel == "" {
		cfg.Mode.FunctionalLabel = "functional"
	}
	if cfg.Mode.NonFunctionalLabel == "" {
		cfg.Mode.NonFunctionalLabel = "non-functional"
	}

	if cfg.Paths.Report == "" {
		cfg.Paths.Report = ".prove/report.json"
	}
	if cfg.Paths.Evidence == "" {
		cfg.Paths.Evidence = ".prove/evidence.jsonl"
	}
	if cfg.Paths.Marker == "" {
		cfg.Paths.Marker = ".prove/phase.json"
	}
	if cfg.Paths.RCAGlob == "" {
		cfg.Paths.RCAGlob = "docs/rca/*.md"
	}
	if cfg.Paths.Allowlist == "" {
		cfg.Paths.Allowlist = ".gitleaks.toml"
	}

	if cfg.KillSwitch.FlagPattern == "" {
		cfg.KillSwitch.FlagPattern = `defineFlag\(\s*['"]([A-Za-z0-9_.-]+)['"]`
	}
	if cfg.KillSwitch.KillSwitchPattern == "" {
		cfg.KillSwitch.KillSwitchPattern = `killSwitch\(\s*['"]([A-Za-z0-9_.-]+)['"]`
	}

	if cfg.Toggles == nil {
		cfg.Toggles = map[string]bool{}
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "prove"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
}
