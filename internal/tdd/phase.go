// Package tdd detects the red/green/refactor phase of a commit and checks
// that a task's phase history follows test-first order.
//
// Detection prefers an explicit [TDD:phase] commit marker, then a fresh
// sidecar marker written by `prove mark`, then inference from test evidence
// and the shape of the change.
package tdd

import (
	"regexp"
	"strings"
	"time"
)

// Phase is a TDD phase.
type Phase string

const (
	Red      Phase = "red"
	Green    Phase = "green"
	Refactor Phase = "refactor"
	Unknown  Phase = "unknown"
)

// Known reports whether p is red, green or refactor.
func (p Phase) Known() bool {
	switch p {
	case Red, Green, Refactor:
		return true
	}
	return false
}

// ParsePhase parses a phase name case-insensitively. Anything else is Unknown.
func ParsePhase(s string) Phase {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if p.Known() {
		return p
	}
	return Unknown
}

var markerPattern = regexp.MustCompile(`(?i)\[\s*tdd\s*:\s*(red|green|refactor)\s*\]`)

// ExtractMarker returns the phase of the first [TDD:phase] marker in msg,
// or Unknown when there is none.
func ExtractMarker(msg string) Phase {
	m := markerPattern.FindStringSubmatch(msg)
	if m == nil {
		return Unknown
	}
	return ParsePhase(m[1])
}

// TestResults are the counts of one test run.
type TestResults struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// AllFailing reports a run with failures and no passes.
func (r TestResults) AllFailing() bool {
	return r.Failed > 0 && r.Passed == 0
}

// TestEvidence is one observed commit or test run of a task.
type TestEvidence struct {
	ID           string      `json:"id"`
	TaskID       string      `json:"taskId,omitempty"`
	Phase        Phase       `json:"phase"`
	Timestamp    time.Time   `json:"timestamp"`
	TestResults  TestResults `json:"testResults"`
	ChangedFiles []string    `json:"changedFiles"`
	CommitHash   string      `json:"commitHash"`
}
