// Package walker lists the regular files under a directory tree using
// parallel fastwalk traversal. Symbolic links and special files are skipped;
// each file is reported with its absolute path, size and modification time
// truncated to whole seconds.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"
	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/logging"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

var logger = logging.Get("walker")

var (
	// ErrNotDirectory is returned when the root is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNoFiles is returned when the walk finds no regular files.
	ErrNoFiles = errors.New("directory contains no files")
)

// DefaultProgressInterval is the minimum time between progress callbacks.
const DefaultProgressInterval = 100 * time.Millisecond

// Options configures a walk.
type Options struct {
	// Root is the directory to walk.
	Root string

	// Exclude contains glob patterns. A pattern matches against the
	// root-relative path (with '/' separators) or the base name.
	Exclude []string

	// Skip lists absolute file paths to leave out, such as the manifest
	// being read.
	Skip []string

	// SkipRoot, when set, is asked about every file directly under Root by
	// base name. Files it accepts are left out.
	SkipRoot func(name string) bool

	// OnProgress is called periodically from walker goroutines.
	OnProgress func(Progress)

	// ProgressInterval throttles OnProgress. Zero uses DefaultProgressInterval.
	ProgressInterval time.Duration
}

// Progress reports walk progress.
type Progress struct {
	Files int64
	Bytes int64
	Done  bool
}

// File is one regular file found by the walk.
type File struct {
	Path     string
	Metadata types.FileMetadata
}

// WalkError records a path that could not be read during the walk.
type WalkError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result is the outcome of a walk.
type Result struct {
	Root    string
	Files   []File
	Errors  []WalkError
	Elapsed time.Duration
}

// Walker walks a directory tree once.
type Walker struct {
	opts     Options
	excludes []glob.Glob
	skip     map[string]struct{}

	files atomic.Int64
	bytes atomic.Int64

	results   []File
	resultsMu sync.Mutex

	errors   []WalkError
	errorsMu sync.Mutex

	lastProgress atomic.Int64

	root string
}

// New creates a walker. Invalid exclude patterns are reported here.
func New(opts Options) (*Walker, error) {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}

	w := &Walker{
		opts: opts,
		skip: make(map[string]struct{}, len(opts.Skip)),
	}
	for _, pattern := range opts.Exclude {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		w.excludes = append(w.excludes, g)
	}
	for _, p := range opts.Skip {
		if abs, err := filepath.Abs(p); err == nil {
			w.skip[abs] = struct{}{}
		}
	}
	return w, nil
}

// Walk traverses the tree. It returns ctx.Err() if the context is cancelled
// and ErrNoFiles if nothing was found. Unreadable entries are collected in
// Result.Errors and do not stop the walk. Files are sorted by path.
func (w *Walker) Walk(ctx context.Context) (*Result, error) {
	start := time.Now()

	root, err := validateRoot(w.opts.Root)
	if err != nil {
		return nil, err
	}
	w.root = root

	logger.Debug("walk started", "root", root)

	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, root, w.callback(ctx))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, walkErr)
	}

	w.reportProgressForce(true)

	if len(w.results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, root)
	}

	sort.Slice(w.results, func(i, j int) bool {
		return w.results[i].Path < w.results[j].Path
	})

	logger.Info("walk complete",
		"root", root,
		"files", len(w.results),
		"errors", len(w.errors),
		"elapsed", time.Since(start))

	return &Result{
		Root:    root,
		Files:   w.results,
		Errors:  w.errors,
		Elapsed: time.Since(start),
	}, nil
}

// validateRoot resolves root to an absolute path and checks it is a directory.
func validateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return abs, nil
}

func (w *Walker) callback(ctx context.Context) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			w.addError(path, err)
			return nil
		}

		if path != w.root && w.isExcluded(path) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if _, skip := w.skip[path]; skip {
			return nil
		}
		if w.opts.SkipRoot != nil && filepath.Dir(path) == w.root && w.opts.SkipRoot(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.addError(path, err)
			return nil
		}

		size := uint64(info.Size())
		w.files.Add(1)
		w.bytes.Add(info.Size())

		w.resultsMu.Lock()
		w.results = append(w.results, File{
			Path:     path,
			Metadata: types.NewFileMetadata(size, info.ModTime()),
		})
		w.resultsMu.Unlock()

		w.reportProgress()
		return nil
	}
}

func (w *Walker) isExcluded(path string) bool {
	if len(w.excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)
	for _, g := range w.excludes {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Walker) addError(path string, err error) {
	logger.Warn("skipping unreadable entry", "path", path, "error", err)

	w.errorsMu.Lock()
	w.errors = append(w.errors, WalkError{Path: path, Error: err.Error()})
	w.errorsMu.Unlock()
}

func (w *Walker) reportProgress() {
	if w.opts.OnProgress == nil {
		return
	}
	now := time.Now().UnixNano()
	last := w.lastProgress.Load()
	if now-last < int64(w.opts.ProgressInterval) {
		return
	}
	if !w.lastProgress.CompareAndSwap(last, now) {
		return
	}
	w.sendProgress(false)
}

func (w *Walker) reportProgressForce(done bool) {
	if w.opts.OnProgress == nil {
		return
	}
	w.lastProgress.Store(time.Now().UnixNano())
	w.sendProgress(done)
}

func (w *Walker) sendProgress(done bool) {
	w.opts.OnProgress(Progress{
		Files: w.files.Load(),
		Bytes: w.bytes.Load(),
		Done:  done,
	})
}

// Snapshot walks opts.Root and returns the files as an unhashed snapshot.
func Snapshot[D digest.Digest[D]](ctx context.Context, opts Options) (*types.Snapshot[D], *Result, error) {
	w, err := New(opts)
	if err != nil {
		return nil, nil, err
	}
	res, err := w.Walk(ctx)
	if err != nil {
		return nil, nil, err
	}

	snap := &types.Snapshot[D]{
		BasePath: res.Root,
		Files:    make([]types.FileRecord[D], len(res.Files)),
	}
	for i, f := range res.Files {
		snap.Files[i] = types.FileRecord[D]{Path: f.Path, Metadata: f.Metadata}
	}
	return snap, res, nil
}
