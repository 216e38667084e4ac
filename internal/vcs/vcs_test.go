package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	wt   *git.Worktree
	when time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo, wt: wt, when: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (r *testRepo) write(path, content string) {
	r.t.Helper()
	full := filepath.Join(r.dir, path)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(r.t, os.WriteFile(full, []byte(content), 0o644))
}

func (r *testRepo) commit(msg string, paths ...string) plumbing.Hash {
	r.t.Helper()
	for _, p := range paths {
		_, err := r.wt.Add(p)
		require.NoError(r.t, err)
	}
	r.when = r.when.Add(time.Minute)
	hash, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Dev", Email: "dev@example.com", When: r.when},
	})
	require.NoError(r.t, err)
	return hash
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestSnapshot_ChangedLines(t *testing.T) {
	r := newTestRepo(t)
	r.write("src/a.ts", "one\ntwo\nthree\n")
	r.write("src/gone.ts", "bye\n")
	r.commit("initial", "src/a.ts", "src/gone.ts")

	r.write("src/a.ts", "one\nTWO\nthree\nfour\n")
	r.write("src/a.test.ts", "it()\n")
	_, err := r.wt.Remove("src/gone.ts")
	require.NoError(t, err)
	head := r.commit("feat: four [TDD:green]\n\nbody", "src/a.ts", "src/a.test.ts")

	repo, err := Open(filepath.Join(r.dir, "src"))
	require.NoError(t, err)
	snap, err := repo.Snapshot(context.Background(), "HEAD~1")
	require.NoError(t, err)

	assert.Equal(t, "master", snap.Branch)
	assert.False(t, snap.Detached)
	assert.Equal(t, head.String(), snap.HeadHash)
	assert.Equal(t, "feat: four [TDD:green]\n\nbody", snap.HeadMessage)
	assert.NotEmpty(t, snap.BaseHash)
	assert.Equal(t, []string{"src/a.test.ts", "src/a.ts"}, snap.ChangedFiles)
	assert.Equal(t, []string{"src/gone.ts"}, snap.DeletedFiles)
	assert.Equal(t, map[string][]int{
		"src/a.ts":      {2, 4},
		"src/a.test.ts": {1},
	}, snap.ChangedLines)
	assert.False(t, snap.Uncommitted)
}

func TestSnapshot_FirstCommitDiffsAgainstEmptyTree(t *testing.T) {
	r := newTestRepo(t)
	r.write("main.go", "package main\n\nfunc main() {}\n")
	r.commit("init", "main.go")

	repo, err := Open(r.dir)
	require.NoError(t, err)
	snap, err := repo.Snapshot(context.Background(), "HEAD~1")
	require.NoError(t, err)

	assert.Empty(t, snap.BaseHash)
	assert.Equal(t, []string{"main.go"}, snap.ChangedFiles)
	assert.Equal(t, []int{1, 2, 3}, snap.ChangedLines["main.go"])
}

func TestSnapshot_UncommittedAndDetached(t *testing.T) {
	r := newTestRepo(t)
	r.write("a.txt", "a\n")
	first := r.commit("one", "a.txt")
	r.write("a.txt", "b\n")
	r.commit("two", "a.txt")

	require.NoError(t, r.wt.Checkout(&git.CheckoutOptions{Hash: first}))
	r.write("scratch.txt", "wip\n")

	repo, err := Open(r.dir)
	require.NoError(t, err)
	snap, err := repo.Snapshot(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, snap.Detached)
	assert.Empty(t, snap.Branch)
	assert.True(t, snap.Uncommitted)
	assert.Equal(t, first.String(), snap.HeadHash)
}

func TestSnapshot_CancelledContext(t *testing.T) {
	r := newTestRepo(t)
	r.write("a.txt", "a\n")
	r.commit("one", "a.txt")

	repo, err := Open(r.dir)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.Snapshot(ctx, "HEAD~1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddedLines(t *testing.T) {
	chunks := []diff.Chunk{
		chunk{"a\nb\n", diff.Equal},
		chunk{"old\n", diff.Delete},
		chunk{"new\nnewer\n", diff.Add},
		chunk{"c\n", diff.Equal},
		chunk{"tail", diff.Add},
	}
	assert.Equal(t, []int{3, 4, 6}, addedLines(chunks))
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("x"))
	assert.Equal(t, 2, countLines("x\ny\n"))
}

type chunk struct {
	content string
	op      diff.Operation
}

func (c chunk) Content() string { return c.content }
func (c chunk) Type() diff.Operation { return c.op }
