package prove

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/fyrsmithlabs/prove/internal/mode"
	"github.com/fyrsmithlabs/prove/pkg/filelock"
)

// CheckResult is the outcome of one check execution.
type CheckResult struct {
	ID         string                 `json:"id"`
	OK         bool                   `json:"ok"`
	DurationMs int64                  `json:"durationMs"`
	Reason     string                 `json:"reason,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Report is the result of a run, in execution order.
type Report struct {
	RunID      string        `json:"runId"`
	Mode       mode.Mode     `json:"mode"`
	ModeSource mode.Source   `json:"modeSource,omitempty"`
	Quick      bool          `json:"quick"`
	Results    []CheckResult `json:"results"`
	OK         bool          `json:"ok"`
	Cancelled  bool          `json:"cancelled,omitempty"`
	TotalMs    int64         `json:"totalMs"`
	StartedAt  time.Time     `json:"startedAt"`
}

// Failed returns the failing results in execution order.
func (r *Report) Failed() []CheckResult {
	var out []CheckResult
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for id.
func (r *Report) Result(id string) (CheckResult, bool) {
	for _, res := range r.Results {
		if res.ID == id {
			return res, true
		}
	}
	return CheckResult{}, false
}

// ExitCode is 0 when the report passed, else 1.
func (r *Report) ExitCode() int {
	if r.OK {
		return 0
	}
	return 1
}

// WriteJSON atomically writes the report to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')
	if err := filelock.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// WriteConsole prints a human-readable summary.
func (r *Report) WriteConsole(w io.Writer) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	kind := "full"
	if r.Quick {
		kind = "quick"
	}
	bold.Fprintf(w, "prove %s run (mode: %s)\n", kind, r.Mode)

	for _, res := range r.Results {
		if res.OK {
			green.Fprint(w, "  PASS ")
			fmt.Fprintf(w, "%-18s %6dms\n", res.ID, res.DurationMs)
			continue
		}
		red.Fprint(w, "  FAIL ")
		fmt.Fprintf(w, "%-18s %6dms  %s\n", res.ID, res.DurationMs, res.Reason)
	}
	if r.Cancelled {
		yellow.Fprintln(w, "  run cancelled before all phases completed")
	}

	failed := r.Failed()
	fmt.Fprintln(w)
	if r.OK {
		green.Fprintf(w, "OK: %d checks passed in %dms\n", len(r.Results), r.TotalMs)
		return
	}
	red.Fprintf(w, "FAILED: %d of %d checks failed in %dms\n", len(failed), len(r.Results), r.TotalMs)
	for _, res := range failed {
		fmt.Fprintf(w, "  - %s: %s\n", res.ID, res.Reason)
	}
}
