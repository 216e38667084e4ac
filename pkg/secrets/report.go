package secrets

import (
	"sort"
	"time"
)

// Redaction describes one finding without the secret value.
type Redaction struct {
	File        string `json:"file,omitempty"`
	RuleID      string `json:"ruleId"`
	RuleDesc    string `json:"ruleDesc"`
	LineNumber  int    `json:"line"`
	Column      int    `json:"column"`
	OriginalLen int    `json:"originalLen"`
	Preview     string `json:"preview"`
}

// Summary aggregates a scan.
type Summary struct {
	FilesScanned     int            `json:"filesScanned"`
	TotalSecrets     int            `json:"totalSecrets"`
	UniqueRules      int            `json:"uniqueRules"`
	RuleCounts       map[string]int `json:"ruleCounts"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
}

// Report is the serializable outcome of a scan.
type Report struct {
	Redactions []Redaction `json:"findings"`
	Summary    Summary     `json:"summary"`
}

// Clean reports whether no secret was found.
func (r Report) Clean() bool {
	return len(r.Redactions) == 0
}

// BuildReport summarizes findings, ordered by file then line.
func BuildReport(findings []Finding, filesScanned int, elapsed time.Duration) Report {
	redactions := make([]Redaction, 0, len(findings))
	ruleCounts := make(map[string]int)

	for _, f := range findings {
		redactions = append(redactions, Redaction{
			File:        f.File,
			RuleID:      f.RuleID,
			RuleDesc:    f.RuleDesc,
			LineNumber:  f.Line,
			Column:      f.StartCol,
			OriginalLen: len(f.Match),
			Preview:     f.Preview(),
		})
		ruleCounts[f.RuleID]++
	}
	sort.SliceStable(redactions, func(i, j int) bool {
		if redactions[i].File != redactions[j].File {
			return redactions[i].File < redactions[j].File
		}
		return redactions[i].LineNumber < redactions[j].LineNumber
	})

	return Report{
		Redactions: redactions,
		Summary: Summary{
			FilesScanned:     filesScanned,
			TotalSecrets:     len(findings),
			UniqueRules:      len(ruleCounts),
			RuleCounts:       ruleCounts,
			ProcessingTimeMs: elapsed.Milliseconds(),
		},
	}
}
