package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// DefaultFileName is looked up in the working directory when no explicit
	// config path is given.
	DefaultFileName = ".prove.yaml"

	envPrefix = "PROVE_"
)

// ErrConfigPath indicates a config file outside the allowed locations.
var ErrConfigPath = errors.New("config path not allowed")

// Load loads configuration for a project rooted at workDir.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PROVE_COVERAGE_DIFF_THRESHOLD, PROVE_TDD_SINGLE_COMMIT, ...)
//  2. YAML config file (<workDir>/.prove.yaml or configPath)
//  3. Hardcoded defaults
//
// A missing config file is not an error. An explicit configPath must live
// inside workDir or ~/.config/prove, and must not exceed 1MB.
//
// # Environment Variable Mapping
//
// The PROVE_ prefix is stripped and the remainder is split on its first
// underscore into section and field:
//
//	PROVE_COVERAGE_DIFF_THRESHOLD -> coverage.diff_threshold
//	PROVE_GITHUB_TOKEN            -> github.token
//	PROVE_TDD_SINGLE_COMMIT       -> tdd.single_commit
//
// Variables without a field part (PROVE_MODE) are left to their consumers.
func Load(workDir, configPath string) (*Config, error) {
	k := koanf.New(".")

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(workDir, DefaultFileName)
	}

	if err := validateConfigPath(workDir, configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(configPath)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// No project config; defaults and env only.
	default:
		return nil, err
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := seed()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps PROVE_SECTION_FIELD_NAME to section.field_name.
// Returning "" tells koanf to skip the variable.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) < 2 || parts[1] == "" {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates it through the open
// descriptor to avoid a stat/read race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks that path resolves inside the project or the
// user's prove config directory. Symlinks are followed when they exist.
func validateConfigPath(workDir, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}

	allowed := make([]string, 0, 2)
	if absWork, err := filepath.Abs(workDir); err == nil {
		if resolved, err := filepath.EvalSymlinks(absWork); err == nil {
			absWork = resolved
		}
		allowed = append(allowed, absWork)
	}
	if home, err := os.UserHomeDir(); err == nil {
		allowed = append(allowed, filepath.Join(home, ".config", "prove"))
	}

	for _, dir := range allowed {
		rel, err := filepath.Rel(dir, absPath)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be inside the project or ~/.config/prove/", ErrConfigPath, path)
}
