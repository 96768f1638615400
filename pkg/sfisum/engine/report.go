package engine

import (
	"fmt"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/output"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

// Report describes the run: counts plus every non-empty finding category
// with absolute paths. It may be called after a failed run; the categories
// then cover whatever was computed before the failure.
func (e *Engine[D]) Report() *output.Result {
	r := &output.Result{
		Mode:      e.mode.String(),
		Algorithm: e.algo.Type().Name(),
		Manifest:  e.manifestPath,
		SavedTo:   e.savedTo,
		Hashed:    e.hashed,
		Elapsed:   e.elapsed,
		Events:    e.EventCount(),
	}
	if e.primary != nil {
		r.BasePath = e.primary.BasePath
		r.Files = e.primary.Len()
		r.TotalBytes = e.primary.TotalSize()
	} else {
		r.BasePath = e.baseDir
	}
	for _, we := range e.walkErrors {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %s", we.Path, we.Error))
	}

	r.Add(e.category(output.KeyHashErrors, "Files that failed to hash:", output.SeverityError, e.primary, e.hashingErrors))

	switch e.mode {
	case ModeValidate:
		r.Add(e.category(output.KeyInvalidHash, "Files that have invalid hashes:", output.SeverityError, e.primary, e.invalid))
	case ModeFastRefresh:
		e.addRefreshCategories(r)
	}
	return r
}

func (e *Engine[D]) addRefreshCategories(r *output.Result) {
	res := e.recon
	if res == nil {
		return
	}
	r.Unchanged = res.Unchanged()

	primary, secondary := e.primary, e.secondary
	r.Add(e.category(output.KeyInvalidHash,
		"Files that have invalid hashes but identical size and last modified date:",
		output.SeverityError, primary, res.InvalidHash))
	r.Add(e.category(output.KeyChangedSize,
		"Files that have different size and hash:",
		output.SeverityWarning, primary, res.DirtyBySize))
	r.Add(e.category(output.KeyChangedDate,
		"Files that have different last modified date and hash:",
		output.SeverityWarning, primary, res.DirtyByDate))
	r.Add(e.category(output.KeyChangedSizeAndDate,
		"Files that have different size, last modified date and hash:",
		output.SeverityWarning, primary, res.DirtyByBoth))
	r.Add(e.category(output.KeyOnlyInManifest,
		"Files that were only found in the digest file:",
		output.SeverityWarning, secondary, res.SecondaryOrphans))
	r.Add(e.category(output.KeyOnlyOnDisk,
		"Files that were only found on disk:",
		output.SeverityWarning, primary, res.PrimaryOrphans))
	r.Add(e.category(output.KeyOnlyInManifestWithDup,
		"Files that were only found in the digest file and have duplicates in it:",
		output.SeverityWarning, secondary, res.SecondaryOrphansWithDup))
	r.Add(e.category(output.KeyMetadataOnly,
		"Files that have different size or last modified date, but identical hashes:",
		output.SeverityOK, primary, res.DirtyValid))

	moved := output.Category{
		Key:      output.KeyMoved,
		Title:    "Files that were found:",
		Severity: output.SeverityOK,
	}
	for _, m := range res.Found {
		moved.Groups = append(moved.Groups, output.Group{
			Hash: m.Hash.String(),
			Disk: paths(primary, m.Primary),
			From: paths(secondary, m.Secondary),
		})
	}
	r.Add(moved)
}

func (e *Engine[D]) category(key, title string, sev output.Severity, snap *types.Snapshot[D], indices []int) output.Category {
	return output.Category{
		Key:      key,
		Title:    title,
		Severity: sev,
		Paths:    paths(snap, indices),
	}
}

func paths[D digest.Digest[D]](snap *types.Snapshot[D], indices []int) []string {
	if snap == nil || len(indices) == 0 {
		return nil
	}
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = snap.Files[idx].Path
	}
	return out
}
