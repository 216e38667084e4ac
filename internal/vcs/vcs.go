// Package vcs snapshots the version-control state a prove run evaluates:
// branch, diff base, head commit, changed files and lines, and whether the
// working tree has uncommitted changes.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned when dir is not inside a git repository.
var ErrNotRepository = errors.New("not a git repository")

// Snapshot is the version-control state of one run. ChangedLines maps each
// changed file to the line numbers added or modified in the head version.
type Snapshot struct {
	Branch       string           `json:"branch"`
	Detached     bool             `json:"detached,omitempty"`
	BaseRef      string           `json:"baseRef"`
	BaseHash     string           `json:"baseHash,omitempty"`
	HeadHash     string           `json:"headHash"`
	HeadMessage  string           `json:"headMessage"`
	ChangedFiles []string         `json:"changedFiles"`
	DeletedFiles []string         `json:"deletedFiles,omitempty"`
	ChangedLines map[string][]int `json:"changedLines"`
	Uncommitted  bool             `json:"uncommitted"`
}

// Repository is an opened git repository.
type Repository struct {
	repo *git.Repository
	dir  string
}

// Open opens the repository containing dir, walking up to find .git.
func Open(dir string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	return &Repository{repo: repo, dir: dir}, nil
}

// Snapshot reads the current state, diffing HEAD against the merge base of
// HEAD and baseRef. An unresolvable base (a first commit, a shallow clone)
// diffs against the empty tree.
func (r *Repository) Snapshot(ctx context.Context, baseRef string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit: %w", err)
	}

	snap := &Snapshot{
		BaseRef:      baseRef,
		HeadHash:     head.Hash().String(),
		HeadMessage:  strings.TrimSpace(headCommit.Message),
		ChangedFiles: []string{},
		ChangedLines: map[string][]int{},
	}
	if head.Name().IsBranch() {
		snap.Branch = head.Name().Short()
	} else {
		snap.Detached = true
	}

	base, err := r.baseCommit(headCommit, baseRef)
	if err != nil {
		return nil, err
	}
	if base != nil {
		snap.BaseHash = base.Hash.String()
	}

	if err := r.diff(ctx, base, headCommit, snap); err != nil {
		return nil, err
	}

	dirty, err := r.uncommitted()
	if err != nil {
		return nil, err
	}
	snap.Uncommitted = dirty
	return snap, nil
}

func (r *Repository) baseCommit(head *object.Commit, baseRef string) (*object.Commit, error) {
	if baseRef == "" {
		return nil, nil
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(baseRef))
	if err != nil {
		return nil, nil
	}
	base, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("reading base commit %s: %w", baseRef, err)
	}

	bases, err := head.MergeBase(base)
	if err != nil {
		return nil, fmt.Errorf("computing merge base with %s: %w", baseRef, err)
	}
	if len(bases) > 0 {
		return bases[0], nil
	}
	return base, nil
}

func (r *Repository) diff(ctx context.Context, base, head *object.Commit, snap *Snapshot) error {
	headTree, err := head.Tree()
	if err != nil {
		return fmt.Errorf("reading HEAD tree: %w", err)
	}
	var baseTree *object.Tree
	if base != nil {
		if baseTree, err = base.Tree(); err != nil {
			return fmt.Errorf("reading base tree: %w", err)
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, baseTree, headTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return fmt.Errorf("diffing trees: %w", err)
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return fmt.Errorf("building patch: %w", err)
	}

	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		if to == nil {
			if from != nil {
				snap.DeletedFiles = append(snap.DeletedFiles, from.Path())
			}
			continue
		}
		path := to.Path()
		snap.ChangedFiles = append(snap.ChangedFiles, path)
		if fp.IsBinary() {
			continue
		}
		if lines := addedLines(fp.Chunks()); len(lines) > 0 {
			snap.ChangedLines[path] = lines
		}
	}
	sort.Strings(snap.ChangedFiles)
	sort.Strings(snap.DeletedFiles)
	return nil
}

// addedLines walks the chunks of one file patch and returns the head-side
// line numbers of added lines.
func addedLines(chunks []diff.Chunk) []int {
	var out []int
	line := 1
	for _, c := range chunks {
		n := countLines(c.Content())
		switch c.Type() {
		case diff.Equal:
			line += n
		case diff.Add:
			for i := 0; i < n; i++ {
				out = append(out, line+i)
			}
			line += n
		}
	}
	return out
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func (r *Repository) uncommitted() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return false, nil
		}
		return false, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("reading worktree status: %w", err)
	}
	return !status.IsClean(), nil
}
