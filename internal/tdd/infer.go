package tdd

// Signals are the inputs to phase inference for one commit.
type Signals struct {
	// Current is the evidence of the commit under evaluation, if any.
	Current *TestEvidence
	// Previous is the evidence entry immediately before Current.
	Previous *TestEvidence
	// Prior is the phase of the previous entry.
	Prior Phase
	// ChangedFiles overrides Current.ChangedFiles when set.
	ChangedFiles []string
}

func (s Signals) changedFiles() []string {
	if len(s.ChangedFiles) > 0 || s.Current == nil {
		return s.ChangedFiles
	}
	return s.Current.ChangedFiles
}

// Infer derives a phase from test results and change shape:
//   - all tests failing is red;
//   - after green or refactor, a change touching only non-test files with
//     tests still passing is refactor;
//   - passing tests with no more failures than the previous entry is green,
//     as is a passing run with no previous entry right after red.
func Infer(s Signals, m *TestMatcher) Phase {
	if m == nil {
		m = NewTestMatcher(nil)
	}
	if s.Current != nil && s.Current.TestResults.AllFailing() {
		return Red
	}

	if (s.Prior == Green || s.Prior == Refactor) && m.OnlySource(s.changedFiles()) {
		if s.Current == nil || s.Current.TestResults.Failed == 0 {
			return Refactor
		}
	}

	if s.Current == nil || s.Current.TestResults.Passed == 0 {
		return Unknown
	}
	if s.Previous != nil {
		if s.Current.TestResults.Failed <= s.Previous.TestResults.Failed {
			return Green
		}
		return Unknown
	}
	if s.Prior == Red {
		return Green
	}
	return Unknown
}
