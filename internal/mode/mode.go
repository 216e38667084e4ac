// Package mode decides whether the unit of work under evaluation is
// functional or non-functional.
//
// Sources are consulted in a fixed order and the first one that yields a
// mode wins: an override environment variable, the task descriptor file, a
// pull request label, a tag in the pull request title, then the default.
// Resolution never fails; unreadable sources are logged and skipped.
package mode

import (
	"regexp"
	"strings"
)

// Mode classifies a unit of work.
type Mode string

const (
	Functional    Mode = "functional"
	NonFunctional Mode = "non-functional"
)

// Default is used when no source decides.
const Default = Functional

// Source names where a resolution came from.
type Source string

const (
	SourceEnv        Source = "env"
	SourceDescriptor Source = "descriptor"
	SourceLabel      Source = "label"
	SourceTitle      Source = "title"
	SourceDefault    Source = "default"
)

// Resolution is the resolved mode and the source that decided it.
type Resolution struct {
	Mode   Mode   `json:"mode"`
	Source Source `json:"source"`
}

// Parse normalizes accepted spellings of a mode.
func Parse(s string) (Mode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	switch s {
	case "functional":
		return Functional, true
	case "non-functional", "nonfunctional", "nf":
		return NonFunctional, true
	}
	return "", false
}

var titleTag = regexp.MustCompile(`(?i)\[\s*(non[-_ ]?functional|nf|functional)\s*\]`)

// FromTitle returns the mode named by the first [functional], [nf] or
// [non-functional] tag in title.
func FromTitle(title string) (Mode, bool) {
	m := titleTag.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return Parse(m[1])
}
