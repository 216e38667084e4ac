package secrets

import (
	"fmt"
	"regexp"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding is one detected secret. Match holds the raw secret and is never
// serialized.
type Finding struct {
	File     string `json:"file,omitempty"`
	RuleID   string `json:"ruleId"`
	RuleDesc string `json:"ruleDesc"`
	Line     int    `json:"line"`
	StartCol int    `json:"startCol"`
	EndCol   int    `json:"endCol"`
	Match    string `json:"-"`
}

// Preview returns the first four characters of the secret.
func (f Finding) Preview() string {
	if len(f.Match) <= 4 {
		return f.Match
	}
	return f.Match[:4]
}

// Scanner wraps a Gitleaks detector built once from the default rule set.
type Scanner struct {
	mu       sync.Mutex
	detector *detect.Detector
	paths    []*regexp.Regexp
}

// NewScanner loads the default Gitleaks rules and merges allowlist into
// them. allowlist may be nil.
func NewScanner(allowlist *Allowlist) (*Scanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}

	s := &Scanner{detector: detector}
	if allowlist != nil {
		if err := applyAllowlist(&detector.Config, allowlist); err != nil {
			return nil, err
		}
		for _, p := range allowlist.Paths {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRegex, p, err)
			}
			s.paths = append(s.paths, re)
		}
	}
	return s, nil
}

// Allowed reports whether path matches an allowlisted path pattern.
func (s *Scanner) Allowed(path string) bool {
	for _, re := range s.paths {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Scan returns the findings in content, tagged with path. Allowlisted
// paths yield nothing.
func (s *Scanner) Scan(path, content string) []Finding {
	if path != "" && s.Allowed(path) {
		return nil
	}

	s.mu.Lock()
	found := s.detector.DetectString(content)
	s.mu.Unlock()

	out := make([]Finding, 0, len(found))
	// gitleaks reports 0-based lines for string input.
	for _, f := range found {
		out = append(out, Finding{
			File:     path,
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine + 1,
			StartCol: f.StartColumn,
			EndCol:   f.EndColumn,
			Match:    f.Secret,
		})
	}
	return out
}

// Detect scans content once with a fresh scanner.
func Detect(content string, allowlist *Allowlist) ([]Finding, error) {
	s, err := NewScanner(allowlist)
	if err != nil {
		return nil, err
	}
	return s.Scan("", content), nil
}

// applyAllowlist merges allowlist patterns into the Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	global := &gitleaksConfig.Allowlist{
		Description: "prove project allowlist",
	}
	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRegex, pattern, err)
		}
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}
