package coverage

import "math"

// Metric is one aggregated coverage figure.
type Metric struct {
	Total   int     `json:"total"`
	Covered int     `json:"covered"`
	Pct     float64 `json:"pct"`
}

func (m *Metric) add(total, covered int) {
	m.Total += total
	m.Covered += covered
}

func (m *Metric) finish() {
	m.Pct = percent(m.Covered, m.Total)
}

// Summary aggregates a whole payload.
type Summary struct {
	Statements Metric `json:"statements"`
	Branches   Metric `json:"branches"`
	Functions  Metric `json:"functions"`
	Lines      Metric `json:"lines"`
}

// ParseCoverage decodes raw and summarizes it.
func ParseCoverage(raw []byte) (Summary, error) {
	payload, err := ParsePayload(raw)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(payload), nil
}

// Summarize aggregates every file of payload. Files are visited in sorted
// key order so the result does not depend on map iteration.
func Summarize(payload Payload) Summary {
	var s Summary
	for _, key := range payload.Keys() {
		fs := SummarizeFile(payload[key])
		s.Statements.add(fs.Statements.Total, fs.Statements.Covered)
		s.Branches.add(fs.Branches.Total, fs.Branches.Covered)
		s.Functions.add(fs.Functions.Total, fs.Functions.Covered)
		s.Lines.add(fs.Lines.Total, fs.Lines.Covered)
	}
	s.Statements.finish()
	s.Branches.finish()
	s.Functions.finish()
	s.Lines.finish()
	return s
}

// SummarizeFile aggregates a single file entry.
func SummarizeFile(fc *FileCoverage) Summary {
	var s Summary
	if fc == nil {
		s.Statements.finish()
		s.Branches.finish()
		s.Functions.finish()
		s.Lines.finish()
		return s
	}

	for id := range fc.StatementMap {
		s.Statements.add(1, boolInt(fc.S[id] > 0))
	}
	for id := range fc.FnMap {
		s.Functions.add(1, boolInt(fc.F[id] > 0))
	}
	for id, bm := range fc.BranchMap {
		arms := fc.B[id]
		n := len(bm.Locations)
		if len(arms) > n {
			n = len(arms)
		}
		for i := 0; i < n; i++ {
			s.Branches.add(1, boolInt(i < len(arms) && arms[i] > 0))
		}
	}
	for _, hits := range fc.lineHits() {
		s.Lines.add(1, boolInt(hits > 0))
	}

	s.Statements.finish()
	s.Branches.finish()
	s.Functions.finish()
	s.Lines.finish()
	return s
}

// percent returns covered/total as a percentage rounded to two decimals,
// 100 for an empty total, clamped to [0, 100].
func percent(covered, total int) float64 {
	if total <= 0 {
		return 100
	}
	pct := math.Round(float64(covered)/float64(total)*10000) / 100
	return math.Max(0, math.Min(100, pct))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
