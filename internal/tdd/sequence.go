package tdd

import (
	"fmt"
	"sort"
)

// Validation is the outcome of ValidateSequence. Index is the position of
// the offending phase, or -1.
type Validation struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Missing Phase  `json:"missing,omitempty"`
	Index   int    `json:"index"`
}

// ValidateSequence checks that every green follows a red and every refactor
// follows a green within the current increment. A red starts a new
// increment. Unknown entries are skipped.
func ValidateSequence(history []Phase) Validation {
	var sawRed, sawGreen bool
	for i, p := range history {
		switch p {
		case Red:
			sawRed, sawGreen = true, false
		case Green:
			if !sawRed {
				return violation(i, Green, Red)
			}
			sawGreen = true
		case Refactor:
			if !sawGreen {
				return violation(i, Refactor, Green)
			}
		}
	}
	return Validation{OK: true, Index: -1}
}

func violation(i int, got, missing Phase) Validation {
	return Validation{
		OK:      false,
		Reason:  fmt.Sprintf("%s requires a prior %s phase", got, missing),
		Missing: missing,
		Index:   i,
	}
}

// ForTask returns the evidence of one task lineage ordered by timestamp.
// An empty taskID selects every entry.
func ForTask(evidence []TestEvidence, taskID string) []TestEvidence {
	out := make([]TestEvidence, 0, len(evidence))
	for _, e := range evidence {
		if taskID == "" || e.TaskID == taskID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// HistoryForTask returns the recorded phases of one task lineage in order.
func HistoryForTask(evidence []TestEvidence, taskID string) []Phase {
	entries := ForTask(evidence, taskID)
	out := make([]Phase, len(entries))
	for i, e := range entries {
		out[i] = ParsePhase(string(e.Phase))
	}
	return out
}

// ResolveHistory returns the phases of ordered entries, inferring the ones
// recorded as unknown from their predecessors.
func ResolveHistory(entries []TestEvidence, m *TestMatcher) []Phase {
	out := make([]Phase, len(entries))
	prior := Unknown
	for i := range entries {
		p := ParsePhase(string(entries[i].Phase))
		if !p.Known() {
			s := Signals{Current: &entries[i], Prior: prior}
			if i > 0 {
				s.Previous = &entries[i-1]
			}
			p = Infer(s, m)
		}
		out[i] = p
		if p.Known() {
			prior = p
		}
	}
	return out
}
