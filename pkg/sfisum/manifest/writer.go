package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

// Write serializes snap. Record paths are written relative to snap.BasePath;
// a record outside the base is an error, and a record without a digest is an
// internal error.
func Write[D digest.Digest[D]](w io.Writer, snap *types.Snapshot[D], algo digest.Algorithm[D], generated time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%sDirectory digest generated at %s containing %d entries\n",
		commentPrefix, generated.Format(time.RFC3339), len(snap.Files))
	fmt.Fprintf(bw, "%s%s%s\n", commentPrefix, hashPrefix, algo.Type().Name())

	for i := range snap.Files {
		rec := &snap.Files[i]

		d, ok := rec.Hash()
		if !ok {
			return types.Internalf("record %q has no digest to write", rec.Path)
		}
		rel, err := relativePath(snap.BasePath, rec.Path)
		if err != nil {
			return err
		}

		fmt.Fprintf(bw, "%s%s\n", commentPrefix, rec.Metadata.String())
		fmt.Fprintf(bw, "%s %s%s\n", d.String(), pathMarker, rel)
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func relativePath(base, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPathOutsideBase, path, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideBase, path)
	}
	return rel, nil
}

// WriteFile writes the manifest to path atomically: the content goes to a
// temporary file in the same directory which is then renamed into place.
func WriteFile[D digest.Digest[D]](path string, snap *types.Snapshot[D], algo digest.Algorithm[D], generated time.Time) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sfisum-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if err := Write(tmp, snap, algo, generated); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}
