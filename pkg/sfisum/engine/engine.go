// Package engine drives one sfisum run. An Engine is single use: pick the
// paths, start exactly one mode, then read the report and optionally save a
// fresh manifest.
//
//	eng := engine.New(digest.MD5Algorithm, engine.Options{})
//	eng.SetPaths("/backup/2024-05-01_10-00.md5", "/backup")
//	if err := eng.FastRefresh(ctx); err != nil {
//	    return err
//	}
//	path, err := eng.SaveManifest("")
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/hasher"
	"github.com/jamesainslie/sfisum/pkg/sfisum/logging"
	"github.com/jamesainslie/sfisum/pkg/sfisum/manifest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/reconcile"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
	"github.com/jamesainslie/sfisum/pkg/sfisum/walker"
)

var logger = logging.Get("engine")

// FilenameLayout is the time layout of saved manifest names.
const FilenameLayout = "2006-01-02_15-04"

// Sentinel errors.
var (
	ErrModeAlreadySet = errors.New("engine mode already set")
	ErrNotImplemented = errors.New("full refresh is not implemented")
	ErrNothingToSave  = errors.New("nothing to save")
	ErrMissingPath    = errors.New("path not set")
)

// Mode is the operation an Engine performs.
type Mode int

// Modes. ModeNone means no operation has started yet.
const (
	ModeNone Mode = iota
	ModeGenerate
	ModeValidate
	ModeFastRefresh
	ModeFullRefresh
)

func (m Mode) String() string {
	switch m {
	case ModeGenerate:
		return "generate"
	case ModeValidate:
		return "validate"
	case ModeFastRefresh:
		return "fast refresh"
	case ModeFullRefresh:
		return "full refresh"
	default:
		return "none"
	}
}

// Options tunes an Engine.
type Options struct {
	Hasher  hasher.Options
	Exclude []string

	// OutputDir is where SaveManifest writes when called with an empty
	// directory. Empty means the base directory.
	OutputDir string

	OnWalkProgress func(walker.Progress)

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Engine runs one mode against one directory and, depending on the mode,
// one manifest.
type Engine[D digest.Digest[D]] struct {
	algo digest.Algorithm[D]
	opts Options

	manifestPath string
	baseDir      string

	mode   Mode
	failed bool

	// primary holds the records whose hashes were calculated: the walked
	// directory, or in validate mode the manifest entries themselves.
	primary   *types.Snapshot[D]
	secondary *types.Snapshot[D]

	hashingErrors []int
	invalid       []int
	recon         *reconcile.Result[D]
	walkErrors    []walker.WalkError

	hashed  int
	elapsed time.Duration
	savedTo string
}

// New creates an idle engine.
func New[D digest.Digest[D]](algo digest.Algorithm[D], opts Options) *Engine[D] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine[D]{algo: algo, opts: opts}
}

// SetPaths sets the manifest file and the base directory. Either may be
// empty when the mode does not need it. An empty base directory defaults
// to the manifest's directory for validate and fast refresh.
func (e *Engine[D]) SetPaths(manifestPath, baseDir string) {
	e.manifestPath = manifestPath
	e.baseDir = baseDir
}

// Mode returns the started mode.
func (e *Engine[D]) Mode() Mode {
	return e.mode
}

// Failed reports whether the started mode returned an error.
func (e *Engine[D]) Failed() bool {
	return e.failed
}

func (e *Engine[D]) begin(mode Mode) error {
	if e.mode != ModeNone {
		return fmt.Errorf("cannot start %s: %w (%s)", mode, ErrModeAlreadySet, e.mode)
	}
	e.mode = mode
	logger.Info("starting", "mode", mode.String(), "hash", e.algo.Type().Name())
	return nil
}

// finish records the outcome of a mode and wraps err with the mode name.
func (e *Engine[D]) finish(start time.Time, err error) error {
	e.elapsed = time.Since(start)
	if err != nil {
		e.failed = true
		logger.Error("run failed", "mode", e.mode.String(), "error", err)
		return fmt.Errorf("%s: %w", e.mode, err)
	}
	logger.Info("run finished",
		"mode", e.mode.String(),
		"hashed", e.hashed,
		"events", e.EventCount(),
		"elapsed", e.elapsed)
	return nil
}

func (e *Engine[D]) resolveBase() (string, error) {
	base := e.baseDir
	if base == "" {
		if e.manifestPath == "" {
			return "", fmt.Errorf("base directory: %w", ErrMissingPath)
		}
		base = filepath.Dir(e.manifestPath)
	}
	return filepath.Abs(base)
}

func (e *Engine[D]) resolveManifest() (string, error) {
	if e.manifestPath == "" {
		return "", fmt.Errorf("manifest: %w", ErrMissingPath)
	}
	return filepath.Abs(e.manifestPath)
}

// IsSavedManifestName reports whether name has the form SaveManifest gives
// its files: FilenameLayout followed by a known hash suffix. Such files
// directly under the base directory are not part of the audited tree.
func IsSavedManifestName(name string) bool {
	ext := filepath.Ext(name)
	if _, ok := digest.TypeFromSuffix(ext); !ok {
		return false
	}
	_, err := time.Parse(FilenameLayout, strings.TrimSuffix(name, ext))
	return err == nil
}

func (e *Engine[D]) walk(ctx context.Context, root string, skip ...string) (*types.Snapshot[D], error) {
	snap, res, err := walker.Snapshot[D](ctx, walker.Options{
		Root:       root,
		Exclude:    e.opts.Exclude,
		Skip:       skip,
		SkipRoot:   IsSavedManifestName,
		OnProgress: e.opts.OnWalkProgress,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: walking %s: %w", hasher.ErrInterrupted, root, err)
		}
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	e.walkErrors = res.Errors
	return snap, nil
}

// Generate walks the base directory and hashes every file.
func (e *Engine[D]) Generate(ctx context.Context) error {
	if err := e.begin(ModeGenerate); err != nil {
		return err
	}
	start := time.Now()
	return e.finish(start, e.generate(ctx))
}

func (e *Engine[D]) generate(ctx context.Context) error {
	if e.baseDir == "" {
		return fmt.Errorf("base directory: %w", ErrMissingPath)
	}
	base, err := filepath.Abs(e.baseDir)
	if err != nil {
		return err
	}

	snap, err := e.walk(ctx, base)
	if err != nil {
		return err
	}
	e.primary = snap

	failed, err := hasher.Hash(ctx, e.algo, snap.Files, nil, e.opts.Hasher)
	if err != nil {
		return fmt.Errorf("hashing files: %w", err)
	}
	e.hashingErrors = failed
	e.hashed = len(snap.Files)
	return nil
}

// Validate hashes every file listed in the manifest and compares the result
// with the recorded digest. The directory is not walked, so new files are
// not noticed.
func (e *Engine[D]) Validate(ctx context.Context) error {
	if err := e.begin(ModeValidate); err != nil {
		return err
	}
	start := time.Now()
	return e.finish(start, e.validate(ctx))
}

func (e *Engine[D]) validate(ctx context.Context) error {
	path, err := e.resolveManifest()
	if err != nil {
		return err
	}
	base, err := e.resolveBase()
	if err != nil {
		return err
	}

	snap, err := manifest.ReadFile(path, e.algo, base)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	e.primary = snap

	failed, err := hasher.Hash(ctx, e.algo, snap.Files, nil, e.opts.Hasher)
	if err != nil {
		return fmt.Errorf("hashing files: %w", err)
	}
	e.hashingErrors = failed
	e.hashed = len(snap.Files)

	for i := range snap.Files {
		rec := &snap.Files[i]
		if rec.Calculated == nil {
			continue
		}
		if rec.Loaded == nil {
			return types.Internalf("manifest entry %s has no digest", rec.Path)
		}
		if *rec.Calculated != *rec.Loaded {
			e.invalid = append(e.invalid, i)
		}
	}
	return nil
}

// FastRefresh compares the directory with the manifest by metadata and only
// hashes files that are new or whose size or modification time changed.
func (e *Engine[D]) FastRefresh(ctx context.Context) error {
	if err := e.begin(ModeFastRefresh); err != nil {
		return err
	}
	start := time.Now()
	return e.finish(start, e.fastRefresh(ctx))
}

func (e *Engine[D]) fastRefresh(ctx context.Context) error {
	path, err := e.resolveManifest()
	if err != nil {
		return err
	}
	base, err := e.resolveBase()
	if err != nil {
		return err
	}

	secondary, err := manifest.ReadFile(path, e.algo, base)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	e.secondary = secondary

	primary, err := e.walk(ctx, base, path)
	if err != nil {
		return err
	}
	e.primary = primary

	res, err := reconcile.Run(ctx, e.algo, primary, secondary, e.opts.Hasher)
	if err != nil {
		return err
	}
	e.recon = res
	e.hashingErrors = res.HashingErrors
	e.hashed = len(res.WorkSet)
	return nil
}

// FullRefresh is reserved. It claims the engine and always fails with
// ErrNotImplemented.
func (e *Engine[D]) FullRefresh(ctx context.Context) error {
	if err := e.begin(ModeFullRefresh); err != nil {
		return err
	}
	e.failed = true
	return fmt.Errorf("%s: %w", e.mode, ErrNotImplemented)
}

// EventCount returns the number of noteworthy outcomes of the run. Callers
// use it to decide whether a report is worth showing.
func (e *Engine[D]) EventCount() int {
	switch e.mode {
	case ModeGenerate:
		return len(e.hashingErrors)
	case ModeValidate:
		return len(e.hashingErrors) + len(e.invalid)
	case ModeFastRefresh:
		r := e.recon
		if r == nil {
			return len(e.hashingErrors)
		}
		return len(r.HashingErrors) +
			len(r.InvalidHash) +
			len(r.DirtyBySize) +
			len(r.DirtyByDate) +
			len(r.DirtyByBoth) +
			len(r.DirtyValid) +
			len(r.SecondaryOrphans) +
			len(r.PrimaryOrphans) +
			len(r.SecondaryOrphansWithDup) +
			len(r.Found)
	default:
		return 0
	}
}

// SaveManifest writes the records of a successful generate or fast refresh
// to dir, named after the current minute and the hash suffix. Files that
// failed to hash are left out. An empty dir uses Options.OutputDir, then the
// base directory. It returns the written path.
func (e *Engine[D]) SaveManifest(dir string) (string, error) {
	switch e.mode {
	case ModeGenerate, ModeFastRefresh:
	default:
		return "", fmt.Errorf("%w: %s produces no manifest", ErrNothingToSave, e.mode)
	}
	if e.failed || e.primary == nil {
		return "", fmt.Errorf("%w: %s did not complete", ErrNothingToSave, e.mode)
	}

	snap := &types.Snapshot[D]{BasePath: e.primary.BasePath}
	for _, rec := range e.primary.Files {
		if _, ok := rec.Hash(); ok {
			snap.Files = append(snap.Files, rec)
		}
	}
	if len(snap.Files) == 0 {
		return "", fmt.Errorf("%w: no file was hashed", ErrNothingToSave)
	}

	if dir == "" {
		dir = e.opts.OutputDir
	}
	if dir == "" {
		dir = e.primary.BasePath
	}

	now := e.opts.Now()
	path := filepath.Join(dir, now.Format(FilenameLayout)+"."+e.algo.Type().Suffix())
	if err := manifest.WriteFile(path, snap, e.algo, now); err != nil {
		return "", fmt.Errorf("saving manifest: %w", err)
	}

	e.savedTo = path
	logger.Info("manifest saved", "path", path, "entries", len(snap.Files))
	return path, nil
}
