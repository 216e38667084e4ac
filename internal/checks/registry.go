// Package checks holds the static catalogue of quality-gate check definitions.
//
// A Registry is built once at startup and never mutated. The runner consults
// it for phase membership; it never executes anything itself.
package checks

import (
	"errors"
	"fmt"
)

// Category places a check in one of the runner's four ordered phases.
type Category string

const (
	// Critical checks run serially and stop the run on the first failure.
	Critical Category = "critical"
	// Parallel checks run concurrently and are all awaited.
	Parallel Category = "parallel"
	// ModeSpecific checks run only when the resolved mode matches.
	ModeSpecific Category = "mode-specific"
	// Optional checks run only when their toggle is enabled.
	Optional Category = "optional"
)

// Categories lists the phases in execution order.
var Categories = []Category{Critical, Parallel, ModeSpecific, Optional}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case Critical, Parallel, ModeSpecific, Optional:
		return true
	}
	return false
}

var (
	// ErrDuplicateCheck is returned when two definitions share an id.
	ErrDuplicateCheck = errors.New("duplicate check id")
	// ErrInvalidDefinition is returned for a malformed definition.
	ErrInvalidDefinition = errors.New("invalid check definition")
	// ErrUnknownCheck is returned by Get for an unregistered id.
	ErrUnknownCheck = errors.New("unknown check")
)

// Definition describes one check. Mode is the mode string a mode-specific
// check applies to; ToggleKey names the toggle gating an optional check.
type Definition struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Category          Category `json:"category"`
	QuickModeEligible bool     `json:"quickModeEligible"`
	ToggleKey         string   `json:"toggleKey,omitempty"`
	Mode              string   `json:"mode,omitempty"`
}

func (d Definition) validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	case !d.Category.Valid():
		return fmt.Errorf("%w: %s has unknown category %q", ErrInvalidDefinition, d.ID, d.Category)
	case d.Category == ModeSpecific && d.Mode == "":
		return fmt.Errorf("%w: mode-specific check %s has no mode", ErrInvalidDefinition, d.ID)
	case d.Category == Optional && d.ToggleKey == "":
		return fmt.Errorf("%w: optional check %s has no toggle key", ErrInvalidDefinition, d.ID)
	}
	return nil
}

// Registry is an immutable, ordered set of definitions.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry validates defs and preserves their order.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, ok := r.index[d.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCheck, d.ID)
		}
		r.index[d.ID] = len(r.defs)
		r.defs = append(r.defs, d)
	}
	return r, nil
}

// List returns every definition in registration order.
func (r *Registry) List() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// ByCategory returns the definitions in cat, in registration order.
func (r *Registry) ByCategory(cat Category) []Definition {
	return r.filter(func(d Definition) bool { return d.Category == cat })
}

// QuickModeChecks returns the quick-mode eligible definitions.
func (r *Registry) QuickModeChecks() []Definition {
	return r.filter(func(d Definition) bool { return d.QuickModeEligible })
}

// Get returns the definition registered under id.
func (r *Registry) Get(id string) (Definition, error) {
	i, ok := r.index[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownCheck, id)
	}
	return r.defs[i], nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	return len(r.defs)
}

func (r *Registry) filter(keep func(Definition) bool) []Definition {
	var out []Definition
	for _, d := range r.defs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
