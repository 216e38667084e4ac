package tdd

import (
	"context"

	"github.com/fyrsmithlabs/prove/internal/logging"
	"go.uber.org/zap"
)

// Source names the signal a detection came from.
type Source string

const (
	SourceCommit    Source = "commit-marker"
	SourceSidecar   Source = "sidecar"
	SourceEvidence  Source = "evidence"
	SourceInference Source = "inference"
	SourceNone      Source = "none"
)

// Detection is the phase of the commit under evaluation.
type Detection struct {
	Phase  Phase  `json:"phase"`
	Source Source `json:"source"`
}

// Input bundles what the detector looks at for one commit. Evidence may
// span several tasks; TaskID selects the lineage.
type Input struct {
	CommitMessage string
	CommitHash    string
	ChangedFiles  []string
	Evidence      []TestEvidence
	Marker        *Marker
	TaskID        string
}

// Evaluation is the detection plus the validated history it completes.
type Evaluation struct {
	Detection  Detection  `json:"detection"`
	History    []Phase    `json:"history"`
	Validation Validation `json:"validation"`
	Degraded   bool       `json:"degraded,omitempty"`
}

// Detector detects and validates phases.
type Detector struct {
	matcher      *TestMatcher
	singleCommit bool
	logger       *logging.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithTestPatterns sets the test-file patterns used for inference.
func WithTestPatterns(patterns []string) DetectorOption {
	return func(d *Detector) { d.matcher = NewTestMatcher(patterns) }
}

// WithSingleCommit limits validation to the current commit's marker, for
// hosts whose squashed history no longer carries intermediate phases.
func WithSingleCommit(enabled bool) DetectorOption {
	return func(d *Detector) { d.singleCommit = enabled }
}

// WithDetectorLogger sets the logger.
func WithDetectorLogger(l *logging.Logger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDetector creates a detector.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{matcher: NewTestMatcher(nil), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the phase of the commit: explicit marker, then a sidecar
// newer than the last evidence entry, then the phase recorded for the
// commit, then inference, else unknown.
func (d *Detector) Detect(ctx context.Context, in Input) Detection {
	if p := ExtractMarker(in.CommitMessage); p.Known() {
		return Detection{Phase: p, Source: SourceCommit}
	}

	entries := ForTask(in.Evidence, in.TaskID)

	if d.sidecarApplies(in, entries) {
		return Detection{Phase: in.Marker.Phase, Source: SourceSidecar}
	}

	current, earlier := splitCurrent(entries, in.CommitHash)
	history := ResolveHistory(earlier, d.matcher)

	s := Signals{Current: current, Prior: lastKnown(history), ChangedFiles: in.ChangedFiles}
	if len(earlier) > 0 {
		s.Previous = &earlier[len(earlier)-1]
	}
	if current != nil && current.Phase.Known() {
		return Detection{Phase: current.Phase, Source: SourceEvidence}
	}
	if p := Infer(s, d.matcher); p.Known() {
		d.logger.Debug(ctx, "tdd phase inferred",
			zap.String("phase", string(p)),
			zap.String("prior", string(s.Prior)),
		)
		return Detection{Phase: p, Source: SourceInference}
	}
	return Detection{Phase: Unknown, Source: SourceNone}
}

// Evaluate detects the current phase and validates the task history it
// extends. In single-commit mode only the commit marker is required.
func (d *Detector) Evaluate(ctx context.Context, in Input) Evaluation {
	det := d.Detect(ctx, in)

	if d.singleCommit {
		d.logger.Warn(ctx, "tdd sequence validation degraded to single-commit marker detection")
		ev := Evaluation{Detection: det, Degraded: true, Validation: Validation{OK: true, Index: -1}}
		if det.Source != SourceCommit {
			ev.Validation = Validation{
				OK:      false,
				Reason:  "single-commit mode requires a [TDD:phase] marker in the commit message",
				Missing: Unknown,
				Index:   0,
			}
		} else {
			ev.History = []Phase{det.Phase}
		}
		return ev
	}

	_, earlier := splitCurrent(ForTask(in.Evidence, in.TaskID), in.CommitHash)
	history := ResolveHistory(earlier, d.matcher)
	if det.Phase.Known() {
		history = append(history, det.Phase)
	}

	v := ValidateSequence(history)
	if !v.OK {
		d.logger.Info(ctx, "tdd sequence violation",
			zap.String("reason", v.Reason),
			zap.String("missing", string(v.Missing)),
		)
	}
	return Evaluation{Detection: det, History: history, Validation: v}
}

func (d *Detector) sidecarApplies(in Input, entries []TestEvidence) bool {
	m := in.Marker
	if m == nil || !m.Phase.Known() {
		return false
	}
	if m.TaskID != "" && in.TaskID != "" && m.TaskID != in.TaskID {
		return false
	}
	if len(entries) == 0 {
		return true
	}
	return m.Timestamp.After(entries[len(entries)-1].Timestamp)
}

// splitCurrent separates the entry recorded for hash, when it is the latest
// one, from the entries before it.
func splitCurrent(entries []TestEvidence, hash string) (*TestEvidence, []TestEvidence) {
	if n := len(entries); n > 0 && hash != "" && entries[n-1].CommitHash == hash {
		return &entries[n-1], entries[:n-1]
	}
	return nil, entries
}

func lastKnown(history []Phase) Phase {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Known() {
			return history[i]
		}
	}
	return Unknown
}
