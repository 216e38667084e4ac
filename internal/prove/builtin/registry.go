// Package builtin provides the built-in quality-gate checks.
package builtin

import (
	"github.com/fyrsmithlabs/prove/internal/checks"
	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"github.com/fyrsmithlabs/prove/internal/mode"
	"github.com/fyrsmithlabs/prove/internal/prove"
)

// Check ids.
const (
	IDTrunkBranch    = "trunk-branch"
	IDEnvSnapshot    = "env-snapshot"
	IDCleanTree      = "clean-tree"
	IDLint           = "lint"
	IDTypecheck      = "typecheck"
	IDTest           = "test"
	IDSecretScan     = "secret-scan"
	IDTDDSequence    = "tdd-sequence"
	IDDiffCoverage   = "diff-coverage"
	IDRCADocument    = "rca-document"
	IDKillSwitch     = "kill-switch"
	IDGlobalCoverage = "global-coverage"
)

// Options configures the built-in checks.
type Options struct {
	Logger *logging.Logger
	// NewScanner builds the secret scanner from an allowlist path. Nil uses
	// the gitleaks scanner.
	NewScanner ScannerFactory
}

// Definitions returns the built-in definitions in registration order.
func Definitions() []checks.Definition {
	return []checks.Definition{
		{
			ID:                IDTrunkBranch,
			Name:              "Trunk branch",
			Description:       "Current branch is a configured trunk branch",
			Category:          checks.Critical,
			QuickModeEligible: true,
		},
		{
			ID:                IDEnvSnapshot,
			Name:              "Environment",
			Description:       "Required environment variables are set",
			Category:          checks.Critical,
			QuickModeEligible: true,
		},
		{
			ID:          IDCleanTree,
			Name:        "Clean tree",
			Description: "No uncommitted changes in the working tree",
			Category:    checks.Critical,
		},
		{
			ID:                IDLint,
			Name:              "Lint",
			Description:       "Configured lint command exits 0",
			Category:          checks.Parallel,
			QuickModeEligible: true,
		},
		{
			ID:                IDTypecheck,
			Name:              "Typecheck",
			Description:       "Configured typecheck command exits 0",
			Category:          checks.Parallel,
			QuickModeEligible: true,
		},
		{
			ID:          IDTest,
			Name:        "Tests",
			Description: "Configured test command exits 0",
			Category:    checks.Parallel,
		},
		{
			ID:                IDSecretScan,
			Name:              "Secret scan",
			Description:       "Changed files contain no credentials",
			Category:          checks.Parallel,
			QuickModeEligible: true,
		},
		{
			ID:                IDTDDSequence,
			Name:              "TDD sequence",
			Description:       "Phase history follows red, green, refactor",
			Category:          checks.ModeSpecific,
			Mode:              string(mode.Functional),
			QuickModeEligible: true,
		},
		{
			ID:          IDDiffCoverage,
			Name:        "Diff coverage",
			Description: "Changed lines are covered by tests",
			Category:    checks.ModeSpecific,
			Mode:        string(mode.Functional),
		},
		{
			ID:                IDRCADocument,
			Name:              "Root-cause analysis",
			Description:       "A root-cause document accompanies the change",
			Category:          checks.ModeSpecific,
			Mode:              string(mode.NonFunctional),
			QuickModeEligible: true,
		},
		{
			ID:                IDKillSwitch,
			Name:              "Kill switch",
			Description:       "New feature flags register a kill switch",
			Category:          checks.Optional,
			ToggleKey:         config.ToggleKillSwitchRequired,
			QuickModeEligible: true,
		},
		{
			ID:          IDGlobalCoverage,
			Name:        "Global coverage",
			Description: "Overall statement coverage meets the threshold",
			Category:    checks.Optional,
			ToggleKey:   config.ToggleGlobalCoverage,
		},
	}
}

// DefaultRegistry returns the built-in registry and its implementations.
func DefaultRegistry(opts Options) (*checks.Registry, map[string]prove.Check, error) {
	reg, err := checks.NewRegistry(Definitions()...)
	if err != nil {
		return nil, nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.NewScanner == nil {
		opts.NewScanner = GitleaksScanner
	}

	impls := map[string]prove.Check{
		IDTrunkBranch:    prove.CheckFunc(trunkBranch),
		IDEnvSnapshot:    prove.CheckFunc(envSnapshot),
		IDCleanTree:      prove.CheckFunc(cleanTree),
		IDLint:           commandCheck{id: IDLint},
		IDTypecheck:      commandCheck{id: IDTypecheck},
		IDTest:           commandCheck{id: IDTest},
		IDSecretScan:     secretScan{newScanner: opts.NewScanner},
		IDTDDSequence:    tddSequence{logger: opts.Logger},
		IDDiffCoverage:   diffCoverage{logger: opts.Logger},
		IDRCADocument:    rcaDocument{},
		IDKillSwitch:     killSwitch{},
		IDGlobalCoverage: globalCoverage{},
	}
	return reg, impls, nil
}
