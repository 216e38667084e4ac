package evidence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyrsmithlabs/prove/internal/tdd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_MissingIsEmpty(t *testing.T) {
	l := NewLedger(filepath.Join(t.TempDir(), "evidence.jsonl"))
	entries, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".prove", "evidence.jsonl")
	l := NewLedger(path)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	first, err := l.Append(context.Background(), tdd.TestEvidence{
		TaskID:      "t1",
		Phase:       tdd.Red,
		CommitHash:  "abc",
		TestResults: tdd.TestResults{Failed: 2},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, fixed, first.Timestamp)
	assert.Equal(t, 2, first.TestResults.Total)
	assert.Equal(t, []string{}, first.ChangedFiles)

	_, err = l.Append(context.Background(), tdd.TestEvidence{ID: "fixed-id", TaskID: "t1", ChangedFiles: []string{"a.ts"}})
	require.NoError(t, err)

	entries, err := l.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, tdd.Red, entries[0].Phase)
	assert.Equal(t, "abc", entries[0].CommitHash)
	assert.Equal(t, "fixed-id", entries[1].ID)
	assert.Equal(t, tdd.Unknown, entries[1].Phase)
	assert.Equal(t, []string{"a.ts"}, entries[1].ChangedFiles)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
}

func TestLedger_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"phase\":\"red\"}\n\nnot json\n"), 0o600))

	_, err := NewLedger(path).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedEntry)
	assert.Contains(t, err.Error(), "line 3")
}

func TestLedger_NormalizesPhase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"phase":"GREEN"}`+"\n"+`{"phase":"later"}`+"\n"), 0o600))

	entries, err := NewLedger(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []tdd.Phase{tdd.Green, tdd.Unknown}, []tdd.Phase{entries[0].Phase, entries[1].Phase})
}
