package tdd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestExtractMarker(t *testing.T) {
	tests := []struct {
		msg  string
		want Phase
	}{
		{"feat: add parser [TDD:red]", Red},
		{"[tdd:GREEN] make it pass", Green},
		{"refactor: tidy [Tdd:Refactor]", Refactor},
		{"[ TDD : red ] spaced", Red},
		{"two markers [TDD:green] then [TDD:red]", Green},
		{"feat: no marker", Unknown},
		{"[TDD:blue] unknown phase", Unknown},
		{"TDD:red without brackets", Unknown},
		{"", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMarker(tt.msg))
		})
	}
}

func TestParsePhase(t *testing.T) {
	assert.Equal(t, Red, ParsePhase(" RED "))
	assert.Equal(t, Refactor, ParsePhase("refactor"))
	assert.Equal(t, Unknown, ParsePhase("done"))
	assert.False(t, Unknown.Known())
}

func TestTestMatcher(t *testing.T) {
	m := NewTestMatcher(nil)
	tests := []struct {
		path string
		want bool
	}{
		{"src/a.test.ts", true},
		{"src/a.spec.js", true},
		{"pkg/x_test.go", true},
		{"src/__tests__/a.ts", true},
		{"test/helpers.ts", true},
		{"packages/api/tests/a.ts", true},
		{"src/a.ts", false},
		{"src/testing.ts", false},
		{"src/latest/a.ts", false},
		{"tests", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}

	custom := NewTestMatcher([]string{"*.check.ts", "", "qa/"})
	assert.True(t, custom.Match("a.check.ts"))
	assert.True(t, custom.Match("qa/a.ts"))
	assert.False(t, custom.Match("a.test.ts"))

	assert.True(t, m.OnlySource([]string{"a.ts", "b.ts"}))
	assert.False(t, m.OnlySource([]string{"a.ts", "a.test.ts"}))
	assert.False(t, m.OnlySource(nil))
}

func TestTestMatcher_DefaultsFollowConfig(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, config.DefaultTestPatterns, cfg.TDD.TestPatterns)
	assert.Equal(t, cfg.TDD.TestPatterns, DefaultTestPatterns)

	fromConfig := NewTestMatcher(cfg.TDD.TestPatterns)
	fallback := NewTestMatcher(nil)
	for _, p := range []string{"src/a.test.ts", "pkg/x_test.go", "tests/a.ts", "src/a.ts"} {
		assert.Equal(t, fromConfig.Match(p), fallback.Match(p), p)
	}
}

func TestInfer(t *testing.T) {
	ev := func(passed, failed int, files ...string) *TestEvidence {
		return &TestEvidence{TestResults: TestResults{Passed: passed, Failed: failed, Total: passed + failed}, ChangedFiles: files}
	}

	tests := []struct {
		name string
		s    Signals
		want Phase
	}{
		{name: "all failing is red", s: Signals{Current: ev(0, 2)}, want: Red},
		{name: "all failing is red even after green", s: Signals{Current: ev(0, 1, "a.ts"), Prior: Green}, want: Red},
		{
			name: "passing after red is green",
			s:    Signals{Current: ev(2, 0), Previous: ev(0, 2), Prior: Red},
			want: Green,
		},
		{name: "passing after red with no previous entry", s: Signals{Current: ev(2, 0), Prior: Red}, want: Green},
		{name: "same failures is green", s: Signals{Current: ev(3, 1, "a.test.ts"), Previous: ev(1, 1), Prior: Red}, want: Green},
		{name: "more failures is unknown", s: Signals{Current: ev(3, 2), Previous: ev(1, 1), Prior: Red}, want: Unknown},
		{
			name: "source-only change after green is refactor",
			s:    Signals{ChangedFiles: []string{"a.ts", "b.ts"}, Prior: Green},
			want: Refactor,
		},
		{
			name: "source-only change after refactor with passing tests",
			s:    Signals{Current: ev(4, 0, "a.ts"), Prior: Refactor},
			want: Refactor,
		},
		{
			name: "test file touched after green is green",
			s:    Signals{Current: ev(4, 0, "a.ts", "a.test.ts"), Previous: ev(3, 0), Prior: Green},
			want: Green,
		},
		{name: "source-only change with no prior phase", s: Signals{ChangedFiles: []string{"a.ts"}}, want: Unknown},
		{name: "nothing to go on", s: Signals{}, want: Unknown},
		{name: "no passes no failures", s: Signals{Current: ev(0, 0), Prior: Red}, want: Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Infer(tt.s, nil))
		})
	}
}

func TestValidateSequence(t *testing.T) {
	tests := []struct {
		name    string
		history []Phase
		ok      bool
		missing Phase
		reason  string
		index   int
	}{
		{name: "full cycle", history: []Phase{Red, Green, Refactor}, ok: true, index: -1},
		{name: "empty", ok: true, index: -1},
		{name: "green alone", history: []Phase{Green}, missing: Red, reason: "green requires a prior red phase", index: 0},
		{name: "refactor after red", history: []Phase{Red, Refactor}, missing: Green, reason: "refactor requires a prior green phase", index: 1},
		{name: "two increments", history: []Phase{Red, Green, Refactor, Red, Green}, ok: true, index: -1},
		{name: "red resets window", history: []Phase{Red, Green, Red, Refactor}, missing: Green, reason: "refactor requires a prior green phase", index: 3},
		{name: "unknown skipped", history: []Phase{Red, Unknown, Green, Unknown, Refactor, Refactor}, ok: true, index: -1},
		{name: "green again in increment", history: []Phase{Red, Green, Refactor, Green}, ok: true, index: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ValidateSequence(tt.history)
			assert.Equal(t, tt.ok, v.OK)
			assert.Equal(t, tt.missing, v.Missing)
			assert.Equal(t, tt.reason, v.Reason)
			assert.Equal(t, tt.index, v.Index)
		})
	}
}

func TestHistoryForTask(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	evidence := []TestEvidence{
		{TaskID: "t1", Phase: Green, Timestamp: base.Add(2 * time.Minute)},
		{TaskID: "t2", Phase: Red, Timestamp: base},
		{TaskID: "t1", Phase: Red, Timestamp: base.Add(time.Minute)},
		{TaskID: "t1", Phase: "bogus", Timestamp: base.Add(3 * time.Minute)},
	}

	assert.Equal(t, []Phase{Red, Green, Unknown}, HistoryForTask(evidence, "t1"))
	assert.Equal(t, []Phase{Red}, HistoryForTask(evidence, "t2"))
	assert.Len(t, HistoryForTask(evidence, ""), 4)
	assert.Empty(t, HistoryForTask(evidence, "t3"))
}

func TestResolveHistory(t *testing.T) {
	entries := []TestEvidence{
		{Phase: Unknown, TestResults: TestResults{Failed: 2, Total: 2}},
		{Phase: Unknown, TestResults: TestResults{Passed: 2, Total: 2}},
		{Phase: Unknown, TestResults: TestResults{Passed: 2, Total: 2}, ChangedFiles: []string{"src/a.ts"}},
	}
	assert.Equal(t, []Phase{Red, Green, Refactor}, ResolveHistory(entries, nil))
}

func TestDetector_Detect(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	red := TestEvidence{ID: "e1", TaskID: "t1", Phase: Red, Timestamp: base, CommitHash: "c1",
		TestResults: TestResults{Failed: 2, Total: 2}}
	green := TestEvidence{ID: "e2", TaskID: "t1", Phase: Green, Timestamp: base.Add(time.Minute), CommitHash: "c2",
		TestResults: TestResults{Passed: 2, Total: 2}}

	tests := []struct {
		name string
		in   Input
		want Detection
	}{
		{
			name: "explicit marker wins over agreeing inference",
			in: Input{
				CommitMessage: "feat: X [TDD:red]",
				CommitHash:    "c3",
				ChangedFiles:  []string{"a.ts", "a.test.ts"},
				Evidence: []TestEvidence{{CommitHash: "c3", Timestamp: base,
					TestResults: TestResults{Failed: 2, Total: 2}, ChangedFiles: []string{"a.ts", "a.test.ts"}}},
			},
			want: Detection{Phase: Red, Source: SourceCommit},
		},
		{
			name: "explicit marker wins over newer sidecar",
			in: Input{
				CommitMessage: "[TDD:green]",
				Marker:        &Marker{Phase: Refactor, Timestamp: base.Add(time.Hour)},
			},
			want: Detection{Phase: Green, Source: SourceCommit},
		},
		{
			name: "fresh sidecar",
			in: Input{
				Evidence: []TestEvidence{red},
				Marker:   &Marker{Phase: Green, Timestamp: base.Add(time.Minute)},
			},
			want: Detection{Phase: Green, Source: SourceSidecar},
		},
		{
			name: "stale sidecar ignored",
			in: Input{
				CommitHash:   "c3",
				ChangedFiles: []string{"src/a.ts"},
				Evidence:     []TestEvidence{red, green},
				Marker:       &Marker{Phase: Red, Timestamp: base.Add(-time.Hour)},
			},
			want: Detection{Phase: Refactor, Source: SourceInference},
		},
		{
			name: "sidecar for another task ignored",
			in: Input{
				TaskID: "t1",
				Marker: &Marker{Phase: Green, TaskID: "t9", Timestamp: base},
			},
			want: Detection{Phase: Unknown, Source: SourceNone},
		},
		{
			name: "recorded phase for current commit",
			in:   Input{CommitHash: "c2", Evidence: []TestEvidence{red, green}},
			want: Detection{Phase: Green, Source: SourceEvidence},
		},
		{
			name: "inferred green from current evidence",
			in: Input{
				CommitHash: "c2",
				Evidence: []TestEvidence{red, {TaskID: "t1", Timestamp: base.Add(time.Minute), CommitHash: "c2",
					TestResults: TestResults{Passed: 2, Total: 2}, ChangedFiles: []string{"src/a.ts"}}},
			},
			want: Detection{Phase: Green, Source: SourceInference},
		},
		{
			name: "nothing known",
			in:   Input{CommitMessage: "chore: bump"},
			want: Detection{Phase: Unknown, Source: SourceNone},
		},
	}
	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(context.Background(), tt.in))
		})
	}
}

func TestDetector_Evaluate(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	red := TestEvidence{TaskID: "t1", Phase: Red, Timestamp: base, CommitHash: "c1"}

	t.Run("green after recorded red", func(t *testing.T) {
		ev := NewDetector().Evaluate(context.Background(), Input{
			CommitMessage: "fix: pass [TDD:green]",
			CommitHash:    "c2",
			TaskID:        "t1",
			Evidence:      []TestEvidence{red},
		})
		assert.True(t, ev.Validation.OK)
		assert.Equal(t, []Phase{Red, Green}, ev.History)
	})

	t.Run("green without red", func(t *testing.T) {
		tl := logging.NewTestLogger()
		ev := NewDetector(WithDetectorLogger(tl.Logger)).Evaluate(context.Background(), Input{
			CommitMessage: "feat: [TDD:green]",
		})
		assert.False(t, ev.Validation.OK)
		assert.Equal(t, Red, ev.Validation.Missing)
		assert.Equal(t, "green requires a prior red phase", ev.Validation.Reason)
		tl.AssertField(t, "tdd sequence violation", "missing", "red")
	})

	t.Run("current commit entry is not counted twice", func(t *testing.T) {
		ev := NewDetector().Evaluate(context.Background(), Input{
			CommitMessage: "[TDD:red]",
			CommitHash:    "c1",
			Evidence:      []TestEvidence{red},
		})
		assert.Equal(t, []Phase{Red}, ev.History)
	})

	t.Run("single commit requires marker", func(t *testing.T) {
		tl := logging.NewTestLogger()
		d := NewDetector(WithSingleCommit(true), WithDetectorLogger(tl.Logger))

		ev := d.Evaluate(context.Background(), Input{CommitMessage: "squash merge"})
		assert.True(t, ev.Degraded)
		assert.False(t, ev.Validation.OK)
		assert.Contains(t, ev.Validation.Reason, "single-commit mode")
		tl.AssertLogged(t, zapcore.WarnLevel, "single-commit")

		ev = d.Evaluate(context.Background(), Input{CommitMessage: "squash [TDD:refactor]"})
		assert.True(t, ev.Validation.OK, "prior phases are not required when degraded")
		assert.Equal(t, []Phase{Refactor}, ev.History)
	})
}

func TestMarker_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".prove", "phase.json")

	m, err := ReadMarker(path)
	require.NoError(t, err)
	assert.Nil(t, m)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, WriteMarker(context.Background(), path, Marker{Phase: "GREEN", Timestamp: ts, TaskID: "t1"}))

	m, err = ReadMarker(path)
	require.NoError(t, err)
	assert.Equal(t, &Marker{Phase: Green, Timestamp: ts, TaskID: "t1"}, m)
}

func TestMarker_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phase.json")

	err := WriteMarker(context.Background(), path, Marker{Phase: "purple"})
	assert.ErrorIs(t, err, ErrInvalidPhase)

	require.NoError(t, os.WriteFile(path, []byte(`{"phase":"purple"}`), 0o600))
	_, err = ReadMarker(path)
	assert.ErrorIs(t, err, ErrInvalidPhase)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	_, err = ReadMarker(path)
	assert.Error(t, err)
}

func TestWriteMarker_DefaultsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phase.json")
	before := time.Now().UTC().Add(-time.Second)

	require.NoError(t, WriteMarker(context.Background(), path, Marker{Phase: Red}))
	m, err := ReadMarker(path)
	require.NoError(t, err)
	assert.True(t, m.Timestamp.After(before))
}
