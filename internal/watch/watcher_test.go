package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDetectGitDir(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("main repository", func(t *testing.T) {
		gitDir := filepath.Join(tmpDir, "main-repo", ".git")
		require.NoError(t, os.MkdirAll(gitDir, 0o755))

		detected, err := DetectGitDir(filepath.Join(tmpDir, "main-repo"))
		require.NoError(t, err)
		assert.Equal(t, gitDir, detected)
	})

	t.Run("worktree repository", func(t *testing.T) {
		worktreeDir := filepath.Join(tmpDir, "worktree-repo")
		require.NoError(t, os.MkdirAll(worktreeDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(worktreeDir, ".git"),
			[]byte("gitdir: /main/.git/worktrees/feature\n"), 0o644))

		detected, err := DetectGitDir(worktreeDir)
		require.NoError(t, err)
		assert.Equal(t, "/main/.git/worktrees/feature", detected)
	})

	t.Run("invalid .git file", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "bad")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".git"), []byte("nonsense"), 0o644))

		_, err := DetectGitDir(dir)
		assert.ErrorIs(t, err, ErrNotGitRepo)
	})

	t.Run("non-git directory", func(t *testing.T) {
		_, err := DetectGitDir(t.TempDir())
		assert.ErrorIs(t, err, ErrNotGitRepo)
	})
}

// newRepoDir creates a directory with a minimal .git layout.
func newRepoDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	return dir
}

func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestWatcher_FileChange(t *testing.T) {
	dir := newRepoDir(t)
	w, err := New(dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.ts"), []byte("x"), 0o644))
	ev := waitEvent(t, w)
	assert.Equal(t, EventTypeFileChange, ev.Type)
	assert.Equal(t, filepath.Join(dir, "src", "a.ts"), ev.Path)
}

func TestWatcher_HeadChangeIsCommit(t *testing.T) {
	dir := newRepoDir(t)
	w, err := New(dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/feat\n"), 0o644))
	ev := waitEvent(t, w)
	assert.Equal(t, EventTypeCommit, ev.Type)
	assert.Equal(t, "commit", ev.Type.String())
}

func TestWatcher_Ignored(t *testing.T) {
	dir := newRepoDir(t)
	w, err := New(dir)
	require.NoError(t, err)

	assert.True(t, w.ignored(filepath.Join(dir, "node_modules", "pkg", "index.js")))
	assert.True(t, w.ignored(filepath.Join(dir, ".prove", "report.json")))
	assert.False(t, w.ignored(filepath.Join(dir, "src", "a.ts")))

	w.Stop()
	w.Stop()
}

func TestLoop_CoalescesBursts(t *testing.T) {
	events := make(chan Event, 10)
	for i := 0; i < 3; i++ {
		events <- Event{Path: "src/a.ts"}
	}
	close(events)

	var batches [][]Event
	err := Loop(context.Background(), events, rate.NewLimiter(rate.Inf, 1), func(_ context.Context, batch []Event) {
		batches = append(batches, batch)
	})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 3)
}

func TestLoop_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Loop(ctx, make(chan Event), rate.NewLimiter(rate.Inf, 1), func(context.Context, []Event) {
		t.Fatal("fn must not run")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
