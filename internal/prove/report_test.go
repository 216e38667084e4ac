package prove

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/prove/internal/mode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(ok bool) *Report {
	r := &Report{
		RunID:     "run-9",
		Mode:      mode.Functional,
		Results:   []CheckResult{{ID: "trunk", OK: true, DurationMs: 1}},
		OK:        ok,
		TotalMs:   42,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if !ok {
		r.Results = append(r.Results, CheckResult{
			ID:         "diff-coverage",
			DurationMs: 7,
			Reason:     "diff coverage 50.00% below threshold 80.00%",
			Details:    map[string]interface{}{"percentage": 50.0},
		})
	}
	return r
}

func TestReport_WriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".prove", "report.json")
	require.NoError(t, sampleReport(false).WriteJSON(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, false, got["ok"])
	assert.Equal(t, 42.0, got["totalMs"])
	results := got["results"].([]interface{})
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "trunk", first["id"])
	assert.NotContains(t, first, "reason")
	second := results[1].(map[string]interface{})
	assert.Equal(t, 7.0, second["durationMs"])
}

func TestReport_WriteConsole(t *testing.T) {
	var buf bytes.Buffer
	sampleReport(false).WriteConsole(&buf)
	out := buf.String()
	assert.Contains(t, out, "mode: functional")
	assert.Contains(t, out, "FAILED: 1 of 2 checks failed")
	assert.Contains(t, out, "- diff-coverage: diff coverage 50.00% below threshold 80.00%")

	buf.Reset()
	sampleReport(true).WriteConsole(&buf)
	assert.Contains(t, buf.String(), "OK: 1 checks passed")
}

func TestReport_Lookup(t *testing.T) {
	r := sampleReport(false)
	res, ok := r.Result("diff-coverage")
	require.True(t, ok)
	assert.False(t, res.OK)
	_, ok = r.Result("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, r.ExitCode())
	assert.Equal(t, 0, sampleReport(true).ExitCode())
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.CheckResults.WithLabelValues("lint", "pass").Inc()
	m.RunOK.Set(1)

	path := filepath.Join(t.TempDir(), "prove.prom")
	require.NoError(t, m.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `prove_check_results_total{check="lint",status="pass"} 1`)
	assert.Contains(t, string(raw), "prove_run_ok 1")
}
