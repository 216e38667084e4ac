package mode

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"go.uber.org/zap"
)

// eventPathVar is set by GitHub Actions to the webhook payload file.
const eventPathVar = "GITHUB_EVENT_PATH"

// Input is the per-run data the resolver reads.
type Input struct {
	Env        map[string]string
	WorkingDir string
}

// Resolver resolves the mode of a run.
type Resolver struct {
	cfg    config.ModeConfig
	api    PullRequestSource
	logger *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPullRequestSource sets the API fallback used when no event payload
// is available.
func WithPullRequestSource(src PullRequestSource) Option {
	return func(r *Resolver) { r.api = src }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver. Empty config fields take the defaults.
func NewResolver(cfg config.ModeConfig, opts ...Option) *Resolver {
	def := config.Default().Mode
	if cfg.OverrideVar == "" {
		cfg.OverrideVar = def.OverrideVar
	}
	if cfg.DescriptorPath == "" {
		cfg.DescriptorPath = def.DescriptorPath
	}
	if cfg.FunctionalLabel == "" {
		cfg.FunctionalLabel = def.FunctionalLabel
	}
	if cfg.NonFunctionalLabel == "" {
		cfg.NonFunctionalLabel = def.NonFunctionalLabel
	}

	r := &Resolver{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the mode from the first source that decides.
func (r *Resolver) Resolve(ctx context.Context, in Input) Resolution {
	if v, ok := in.Env[r.cfg.OverrideVar]; ok && v != "" {
		if m, ok := Parse(v); ok {
			return r.decided(ctx, m, SourceEnv)
		}
		r.logger.Debug(ctx, "ignoring unrecognised mode override", zap.String("var", r.cfg.OverrideVar), zap.String("value", v))
	}

	if m, ok := r.fromDescriptor(ctx, in); ok {
		return r.decided(ctx, m, SourceDescriptor)
	}

	if m, src, ok := r.fromPullRequest(ctx, in); ok {
		return r.decided(ctx, m, src)
	}

	return r.decided(ctx, Default, SourceDefault)
}

func (r *Resolver) decided(ctx context.Context, m Mode, src Source) Resolution {
	r.logger.Debug(ctx, "mode resolved", zap.String("mode", string(m)), zap.String("source", string(src)))
	return Resolution{Mode: m, Source: src}
}

func (r *Resolver) fromDescriptor(ctx context.Context, in Input) (Mode, bool) {
	path := config.Resolve(in.WorkingDir, r.cfg.DescriptorPath)
	d, err := LoadDescriptor(path)
	if err != nil {
		r.logger.Debug(ctx, "task descriptor unreadable", zap.String("path", path), zap.Error(err))
		return "", false
	}
	if d == nil || d.Mode == "" {
		return "", false
	}
	m, ok := Parse(d.Mode)
	if !ok {
		r.logger.Debug(ctx, "task descriptor has unrecognised mode", zap.String("mode", d.Mode))
	}
	return m, ok
}

// fromPullRequest consults the event payload, then the API. Labels of
// every source are tried before any title, and the API is only asked when
// the event payload's labels decide nothing.
func (r *Resolver) fromPullRequest(ctx context.Context, in Input) (Mode, Source, bool) {
	sources := make([]PullRequestSource, 0, 2)
	if p := in.Env[eventPathVar]; p != "" {
		sources = append(sources, EventFileSource{Path: p})
	}
	if r.api != nil {
		sources = append(sources, r.api)
	}

	titles := make([]string, 0, len(sources))
	for _, src := range sources {
		pr, err := src.PullRequest(ctx)
		if err != nil {
			r.logger.Debug(ctx, "pull request metadata unavailable", zap.Error(err))
			continue
		}
		if pr == nil {
			continue
		}
		if m, ok := r.fromLabels(pr.Labels); ok {
			return m, SourceLabel, true
		}
		titles = append(titles, pr.Title)
	}
	for _, title := range titles {
		if m, ok := FromTitle(title); ok {
			return m, SourceTitle, true
		}
	}
	return "", "", false
}

// fromLabels returns the mode of the first recognised label.
func (r *Resolver) fromLabels(labels []string) (Mode, bool) {
	for _, l := range labels {
		switch {
		case strings.EqualFold(l, r.cfg.NonFunctionalLabel):
			return NonFunctional, true
		case strings.EqualFold(l, r.cfg.FunctionalLabel):
			return Functional, true
		}
	}
	return "", false
}
