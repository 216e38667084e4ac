// Package watch reports working-tree and commit changes for re-running the
// gate while a developer works.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/prove/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNotGitRepo indicates the directory is not a Git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")
)

// DefaultIgnore lists directory names never watched.
var DefaultIgnore = []string{".git", ".prove", "node_modules", "coverage", "dist", "build", ".next"}

// EventType is the kind of change observed.
type EventType int

const (
	// EventTypeFileChange is a write, create, remove or rename in the tree.
	EventTypeFileChange EventType = iota
	// EventTypeCommit is a new commit or branch switch.
	EventTypeCommit
)

func (t EventType) String() string {
	if t == EventTypeCommit {
		return "commit"
	}
	return "file"
}

// Event is one observed change.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// Watcher watches a working tree and its git HEAD.
type Watcher struct {
	root    string
	gitDir  string
	ignore  map[string]bool
	watcher *fsnotify.Watcher
	events  chan Event
	stop    chan struct{}
	logger  *logging.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithIgnore replaces the ignored directory names.
func WithIgnore(names ...string) Option {
	return func(w *Watcher) {
		w.ignore = make(map[string]bool, len(names))
		for _, n := range names {
			w.ignore[n] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for the repository at root. Main repositories and
// worktrees are both supported.
func New(root string, opts ...Option) (*Watcher, error) {
	gitDir, err := DetectGitDir(root)
	if err != nil {
		return nil, fmt.Errorf("detecting git directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		root:    root,
		gitDir:  gitDir,
		watcher: fw,
		events:  make(chan Event, 64),
		stop:    make(chan struct{}),
		logger:  logging.NewNop(),
	}
	WithIgnore(DefaultIgnore...)(w)
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start registers every non-ignored directory and the git HEAD files, then
// processes events in the background until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}

	if err := w.watcher.Add(filepath.Join(w.gitDir, "HEAD")); err != nil {
		return fmt.Errorf("watching HEAD file: %w", err)
	}
	// logs/HEAD is absent until the first commit
	logsHead := filepath.Join(w.gitDir, "logs", "HEAD")
	if _, err := os.Stat(logsHead); err == nil {
		_ = w.watcher.Add(logsHead)
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Events returns the channel of observed changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.ignore[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	if w.isGitFile(ev.Name) {
		w.emit(Event{Type: EventTypeCommit, Path: ev.Name, Timestamp: time.Now()})
		return
	}
	if w.ignored(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addTree(ev.Name)
		}
	}
	w.emit(Event{Type: EventTypeFileChange, Path: ev.Name, Timestamp: time.Now()})
}

func (w *Watcher) isGitFile(p string) bool {
	return p == filepath.Join(w.gitDir, "HEAD") || p == filepath.Join(w.gitDir, "logs", "HEAD")
}

// ignored reports whether any segment of p below root is ignored.
func (w *Watcher) ignored(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.ignore[seg] {
			return true
		}
	}
	return false
}

// emit sends without blocking; a full channel already guarantees a re-run.
func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
	}
}

// Loop calls fn for each burst of events, waiting on limiter between calls
// and coalescing everything that arrived meanwhile. It returns when ctx is
// done or events is closed.
func Loop(ctx context.Context, events <-chan Event, limiter *rate.Limiter, fn func(ctx context.Context, batch []Event)) error {
	for {
		var batch []Event
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			batch = append(batch, ev)
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	drain:
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					break drain
				}
				batch = append(batch, ev)
			default:
				break drain
			}
		}
		fn(ctx, batch)
	}
}

// DetectGitDir returns the git directory for a project path: .git for a
// main repository, or the gitdir named by a worktree's .git file.
func DetectGitDir(projectPath string) (string, error) {
	gitPath := filepath.Join(projectPath, ".git")

	info, err := os.Stat(gitPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotGitRepo, projectPath)
		}
		return "", fmt.Errorf("stat .git: %w", err)
	}
	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("reading .git file: %w", err)
	}
	gitDir := parseGitDir(string(content))
	if gitDir == "" {
		return "", fmt.Errorf("%w: invalid .git file format", ErrNotGitRepo)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(projectPath, gitDir)
	}
	return gitDir, nil
}

// parseGitDir extracts the path from "gitdir: <path>".
func parseGitDir(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "gitdir:") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(content, "gitdir:"))
}
