package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"github.com/fyrsmithlabs/prove/internal/mode"
	"github.com/fyrsmithlabs/prove/internal/prove"
	"github.com/fyrsmithlabs/prove/internal/prove/builtin"
	"github.com/fyrsmithlabs/prove/internal/telemetry"
	"go.uber.org/zap"
)

// app holds what every command needs: config, logger and telemetry.
type app struct {
	dir    string
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

// newApp loads configuration for the --dir working directory and sets up
// logging and telemetry.
func newApp(ctx context.Context) (*app, error) {
	dir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	cfg, err := config.Load(dir, configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	fillGitHubFromEnv(&cfg.GitHub, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tcfg := telemetry.FromObservability(cfg.Observability, version)
	tcfg.Run = telemetry.RunResource{
		Repository: cfg.GitHub.Repository,
		WorkDir:    dir,
		CI:         telemetry.DetectCI(os.Getenv),
	}
	tel, err := telemetry.New(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	lcfg := logging.NewDefaultConfig()
	lcfg.Format = logFormat
	if lcfg.Level, err = logging.LevelFromString(logLevel); err != nil {
		return nil, err
	}
	lcfg.Output.OTEL = tel.LoggerProvider() != nil
	logger, err := logging.NewLogger(lcfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if h := tel.Health(); !h.Healthy {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}
	return &app{dir: dir, cfg: cfg, logger: logger, tel: tel}, nil
}

// close flushes telemetry and logs.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// fillGitHubFromEnv takes the repository, pull request and token from the
// GitHub Actions environment when the config leaves them empty.
func fillGitHubFromEnv(gh *config.GitHubConfig, getenv func(string) string) {
	if gh.Repository == "" {
		gh.Repository = getenv("GITHUB_REPOSITORY")
	}
	if !gh.Token.IsSet() {
		gh.Token = config.Secret(getenv("GITHUB_TOKEN"))
	}
	if gh.BaseURL == "" {
		if api := getenv("GITHUB_API_URL"); api != "" && api != "https://api.github.com" {
			gh.BaseURL = api
		}
	}
}

func (a *app) resolver(ctx context.Context) *mode.Resolver {
	opts := []mode.Option{mode.WithLogger(a.logger)}
	src, err := mode.NewGitHubSource(ctx, a.cfg.GitHub)
	switch {
	case err == nil:
		opts = append(opts, mode.WithPullRequestSource(src))
	case !errors.Is(err, mode.ErrNoPullRequest):
		a.logger.Debug(ctx, "GitHub API lookup disabled", zap.Error(err))
	}
	return mode.NewResolver(a.cfg.Mode, opts...)
}

// buildContext reads the working tree into a fresh run context.
func (a *app) buildContext(ctx context.Context) (*prove.Context, error) {
	return prove.NewBuilder(a.cfg, a.dir,
		prove.WithResolver(a.resolver(ctx)),
		prove.WithBuilderLogger(a.logger),
	).Build(ctx)
}

// runner wires the built-in checks with timeouts, telemetry and metrics.
func (a *app) runner() (*prove.Runner, error) {
	reg, impls, err := builtin.DefaultRegistry(builtin.Options{Logger: a.logger})
	if err != nil {
		return nil, err
	}
	return prove.NewRunner(reg, impls,
		prove.WithLogger(a.logger),
		prove.WithTelemetry(a.tel),
		prove.WithTimeouts(a.cfg.TimeoutFor),
	)
}

func (a *app) path(p string) string {
	return config.Resolve(a.dir, p)
}
