// Package coverage reads Istanbul coverage-final.json payloads and computes
// global and changed-line coverage from them.
package coverage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	// ErrInvalidPayload is returned when the payload is not Istanbul JSON.
	ErrInvalidPayload = errors.New("invalid coverage payload")
	// ErrPayloadNotFound is returned by LoadPayload when the file is absent.
	ErrPayloadNotFound = errors.New("coverage payload not found")
)

// maxPayloadSize bounds how much of a payload file is read.
const maxPayloadSize = 256 << 20

// Position is a line/column pair. Columns may be null in the payload.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range spans from Start to End inclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether line falls inside the range.
func (r Range) Contains(line int) bool {
	return line >= r.Start.Line && line <= r.End.Line
}

// FunctionMapping locates one function.
type FunctionMapping struct {
	Name string `json:"name"`
	Decl Range  `json:"decl"`
	Loc  Range  `json:"loc"`
	Line int    `json:"line"`
}

// BranchMapping locates one branch point and its arms.
type BranchMapping struct {
	Type      string  `json:"type"`
	Loc       Range   `json:"loc"`
	Locations []Range `json:"locations"`
	Line      int     `json:"line"`
}

// FileCoverage is the per-file entry of an Istanbul payload. S, F and B hold
// hit counts keyed by the ids in StatementMap, FnMap and BranchMap.
type FileCoverage struct {
	Path         string                     `json:"path"`
	StatementMap map[string]Range           `json:"statementMap"`
	FnMap        map[string]FunctionMapping `json:"fnMap"`
	BranchMap    map[string]BranchMapping   `json:"branchMap"`
	S            map[string]int             `json:"s"`
	F            map[string]int             `json:"f"`
	B            map[string][]int           `json:"b"`
}

// Payload maps the file keys of coverage-final.json to their entries.
type Payload map[string]*FileCoverage

// Keys returns the payload keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fileEnvelope accepts both the flat layout and the older {"data": {...}}
// wrapper some reporters still emit.
type fileEnvelope struct {
	FileCoverage
	Data *FileCoverage `json:"data"`
}

// ParsePayload decodes raw coverage-final.json bytes.
func ParsePayload(raw []byte) (Payload, error) {
	var files map[string]fileEnvelope
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if files == nil {
		return nil, fmt.Errorf("%w: payload is null", ErrInvalidPayload)
	}

	payload := make(Payload, len(files))
	for key, env := range files {
		fc := env.FileCoverage
		if env.Data != nil {
			fc = *env.Data
		}
		if fc.Path == "" {
			fc.Path = key
		}
		payload[key] = &fc
	}
	return payload, nil
}

// LoadPayload reads and parses the payload at path.
func LoadPayload(path string) (Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPayloadNotFound, path)
		}
		return nil, fmt.Errorf("opening coverage payload: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading coverage payload: %w", err)
	}
	if len(raw) > maxPayloadSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidPayload, path, maxPayloadSize)
	}
	return ParsePayload(raw)
}

// lineHits folds statement hits onto their start lines, Istanbul style: a
// line's count is the maximum over statements starting on it.
func (fc *FileCoverage) lineHits() map[int]int {
	lines := make(map[int]int, len(fc.StatementMap))
	for id, rng := range fc.StatementMap {
		hits := fc.S[id]
		if prev, ok := lines[rng.Start.Line]; !ok || hits > prev {
			lines[rng.Start.Line] = hits
		}
	}
	return lines
}

// LineCovered reports whether line is executable and, if so, whether any
// statement containing it was hit.
func (fc *FileCoverage) LineCovered(line int) (covered, executable bool) {
	for id, rng := range fc.StatementMap {
		if !rng.Contains(line) {
			continue
		}
		executable = true
		if fc.S[id] > 0 {
			return true, true
		}
	}
	return false, executable
}
