// Package evidence reads and appends the test-evidence ledger, a JSON-lines
// file with one tdd.TestEvidence per observed commit or test run.
package evidence

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fyrsmithlabs/prove/internal/tdd"
	"github.com/fyrsmithlabs/prove/pkg/filelock"
	"github.com/google/uuid"
)

// maxLineSize bounds one ledger entry.
const maxLineSize = 1 << 20

// ErrMalformedEntry is returned for a ledger line that is not valid JSON.
var ErrMalformedEntry = errors.New("malformed evidence entry")

// Ledger is an append-only evidence file.
type Ledger struct {
	path string
	now  func() time.Time
}

// NewLedger returns a ledger stored at path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path, now: time.Now}
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Load returns every entry in file order. A missing ledger is empty.
func (l *Ledger) Load() ([]tdd.TestEvidence, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening evidence ledger: %w", err)
	}
	defer f.Close()

	var out []tdd.TestEvidence
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e tdd.TestEvidence
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformedEntry, l.path, lineNo, err)
		}
		e.Phase = tdd.ParsePhase(string(e.Phase))
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading evidence ledger: %w", err)
	}
	return out, nil
}

// Append assigns an id and timestamp when missing and appends e under the
// ledger lock. The stored entry is returned.
func (l *Ledger) Append(ctx context.Context, e tdd.TestEvidence) (tdd.TestEvidence, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if e.Phase == "" {
		e.Phase = tdd.Unknown
	}
	if e.TestResults.Total == 0 {
		e.TestResults.Total = e.TestResults.Passed + e.TestResults.Failed
	}
	if e.ChangedFiles == nil {
		e.ChangedFiles = []string{}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return tdd.TestEvidence{}, fmt.Errorf("encoding evidence: %w", err)
	}
	if err := filelock.LockAndAppend(ctx, l.path, append(data, '\n')); err != nil {
		return tdd.TestEvidence{}, fmt.Errorf("appending evidence: %w", err)
	}
	return e, nil
}
