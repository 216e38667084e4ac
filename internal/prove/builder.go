package prove

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/fyrsmithlabs/prove/internal/coverage"
	"github.com/fyrsmithlabs/prove/internal/evidence"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"github.com/fyrsmithlabs/prove/internal/mode"
	"github.com/fyrsmithlabs/prove/internal/tdd"
	"github.com/fyrsmithlabs/prove/internal/vcs"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// taskIDVar overrides the task lineage when set.
const taskIDVar = "PROVE_TASK_ID"

// Builder assembles a Context from the working tree.
type Builder struct {
	cfg      *config.Config
	workDir  string
	environ  func() []string
	now      func() time.Time
	resolver *mode.Resolver
	logger   *logging.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithEnviron replaces os.Environ as the environment source.
func WithEnviron(fn func() []string) BuilderOption {
	return func(b *Builder) { b.environ = fn }
}

// WithResolver sets the mode resolver.
func WithResolver(r *mode.Resolver) BuilderOption {
	return func(b *Builder) { b.resolver = r }
}

// WithBuilderLogger sets the logger.
func WithBuilderLogger(l *logging.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock sets the time source for StartedAt.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder for workDir.
func NewBuilder(cfg *config.Config, workDir string, opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:     cfg,
		workDir: workDir,
		environ: os.Environ,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		b.resolver = mode.NewResolver(cfg.Mode, mode.WithLogger(b.logger))
	}
	return b
}

// Build reads every input of a run. A missing or invalid coverage payload
// is recorded in CoverageErr; checks that need it fail pre-flight.
func (b *Builder) Build(ctx context.Context) (*Context, error) {
	startedAt := b.now()
	env := EnvSnapshot(b.environ())

	repo, err := vcs.Open(b.workDir)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	snap, err := repo.Snapshot(ctx, b.cfg.Prove.BaseRef)
	if err != nil {
		return nil, fmt.Errorf("reading repository state: %w", err)
	}

	res := b.resolver.Resolve(ctx, mode.Input{Env: env, WorkingDir: b.workDir})

	entries, err := evidence.NewLedger(config.Resolve(b.workDir, b.cfg.Paths.Evidence)).Load()
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	marker, err := tdd.ReadMarker(config.Resolve(b.workDir, b.cfg.Paths.Marker))
	if err != nil {
		b.logger.Warn(ctx, "ignoring unreadable phase marker", zap.Error(err))
		marker = nil
	}

	settings := SettingsFromConfig(b.cfg, b.workDir)
	payload, coverageErr := coverage.LoadPayload(settings.CoveragePath)
	if coverageErr != nil && !errors.Is(coverageErr, coverage.ErrPayloadNotFound) {
		b.logger.Warn(ctx, "coverage payload unusable", zap.Error(coverageErr))
	}

	toggles := make(Toggles, len(b.cfg.Toggles))
	for k, v := range b.cfg.Toggles {
		toggles[k] = v
	}

	pctx := &Context{
		RunID:       uuid.NewString(),
		VCS:         *snap,
		Env:         env,
		Mode:        res.Mode,
		ModeSource:  res.Source,
		Evidence:    entries,
		WorkingDir:  b.workDir,
		StartedAt:   startedAt,
		Toggles:     toggles,
		Coverage:    payload,
		CoverageErr: coverageErr,
		Marker:      marker,
		TaskID:      b.taskID(env, marker),
		Settings:    settings,
	}

	b.logger.Debug(ctx, "run context built",
		zap.String("run.id", pctx.RunID),
		zap.String("branch", snap.Branch),
		zap.String("mode", string(res.Mode)),
		zap.String("mode_source", string(res.Source)),
		zap.Int("changed_files", len(snap.ChangedFiles)),
		zap.Int("evidence", len(entries)),
		zap.Bool("coverage", payload != nil),
	)
	return pctx, nil
}

// taskID picks the lineage from config, env, the task descriptor, then
// the marker sidecar.
func (b *Builder) taskID(env map[string]string, marker *tdd.Marker) string {
	if b.cfg.TDD.TaskID != "" {
		return b.cfg.TDD.TaskID
	}
	if id := env[taskIDVar]; id != "" {
		return id
	}
	if d, err := mode.LoadDescriptor(config.Resolve(b.workDir, b.cfg.Mode.DescriptorPath)); err == nil && d != nil && d.ID != "" {
		return d.ID
	}
	if marker != nil {
		return marker.TaskID
	}
	return ""
}
