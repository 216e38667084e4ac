package tdd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/prove/pkg/filelock"
)

// ErrInvalidPhase is returned when a marker names no known phase.
var ErrInvalidPhase = errors.New("invalid tdd phase")

// Marker is the phase sidecar written by `prove mark`.
type Marker struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"taskId,omitempty"`
}

// ReadMarker loads the sidecar at path. A missing file yields (nil, nil).
func ReadMarker(path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading phase marker: %w", err)
	}

	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing phase marker %s: %w", path, err)
	}
	m.Phase = ParsePhase(string(m.Phase))
	if !m.Phase.Known() {
		return nil, fmt.Errorf("%w in %s", ErrInvalidPhase, path)
	}
	return &m, nil
}

// WriteMarker replaces the sidecar at path under its lock.
func WriteMarker(ctx context.Context, path string, m Marker) error {
	m.Phase = ParsePhase(string(m.Phase))
	if !m.Phase.Known() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, m.Phase)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding phase marker: %w", err)
	}
	return filelock.LockAndWrite(ctx, path, append(data, '\n'))
}
