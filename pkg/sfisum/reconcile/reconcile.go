// Package reconcile compares a freshly walked directory (the primary
// snapshot) with a previously written manifest (the secondary snapshot) and
// sorts every file into an outcome category.
//
// Only files that are new on disk, or whose size or modification second
// changed, are hashed. Content hashes are then used to recognise files that
// were moved or renamed, so they are not reported as one deletion plus one
// addition.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/hasher"
	"github.com/jamesainslie/sfisum/pkg/sfisum/logging"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

var logger = logging.Get("reconcile")

// Pair links a primary and a secondary record that share a path.
type Pair struct {
	Primary   int
	Secondary int
}

// Partition splits both snapshots by path membership. Every primary index
// appears exactly once in OnlyPrimary or Both, and likewise for secondary.
type Partition struct {
	OnlyPrimary   []int
	OnlySecondary []int
	Both          []Pair
}

// Outcome classifies a dirty pair.
type Outcome int

// Dirty pair outcomes.
const (
	DirtyValid Outcome = iota
	DirtyInvalidSize
	DirtyInvalidDate
	DirtyInvalidBoth
	InvalidHash
)

var outcomeNames = [...]string{"dirty-valid", "dirty-invalid-size", "dirty-invalid-date", "dirty-invalid-both", "invalid-hash"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Match is a content hash found both among files only on disk and files
// only in the manifest: the file was moved or renamed. Either side may hold
// several indices when the content is duplicated.
type Match[D digest.Digest[D]] struct {
	Hash      D
	Primary   []int
	Secondary []int
}

// Result holds every category produced by a reconciliation. Primary-side
// categories hold primary indices; the secondary orphan lists hold secondary
// indices.
type Result[D digest.Digest[D]] struct {
	Partition

	Dirty   []Pair
	WorkSet []int

	HashingErrors []int
	InvalidHash   []int
	DirtyValid    []int
	DirtyBySize   []int
	DirtyByDate   []int
	DirtyByBoth   []int

	Found                   []Match[D]
	SecondaryOrphans        []int
	SecondaryOrphansWithDup []int
	PrimaryOrphans          []int
}

// Unchanged returns the number of paired files whose metadata did not change.
func (r *Result[D]) Unchanged() int {
	return len(r.Both) - len(r.Dirty)
}

// Split builds path maps for both snapshots and partitions them. When a path
// occurs more than once in one snapshot, only its first occurrence can be
// paired; later occurrences count as present on that side only.
func Split[D digest.Digest[D]](primary, secondary []types.FileRecord[D]) Partition {
	var part Partition

	secondaryByPath := make(map[string]int, len(secondary))
	for i := range secondary {
		if _, dup := secondaryByPath[secondary[i].Path]; dup {
			part.OnlySecondary = append(part.OnlySecondary, i)
			continue
		}
		secondaryByPath[secondary[i].Path] = i
	}

	claimed := make(map[string]bool, len(primary))
	for i := range primary {
		path := primary[i].Path
		j, ok := secondaryByPath[path]
		if !ok || claimed[path] {
			part.OnlyPrimary = append(part.OnlyPrimary, i)
			continue
		}
		claimed[path] = true
		part.Both = append(part.Both, Pair{Primary: i, Secondary: j})
	}

	for path, j := range secondaryByPath {
		if !claimed[path] {
			part.OnlySecondary = append(part.OnlySecondary, j)
		}
	}
	sort.Ints(part.OnlySecondary)
	return part
}

// DirtyPairs returns the pairs whose size or modification second differ.
func DirtyPairs[D digest.Digest[D]](primary, secondary []types.FileRecord[D], pairs []Pair) []Pair {
	var dirty []Pair
	for _, p := range pairs {
		if !primary[p.Primary].Metadata.Equal(secondary[p.Secondary].Metadata) {
			dirty = append(dirty, p)
		}
	}
	return dirty
}

// WorkSet returns the primary indices that need hashing: files only on disk
// and the primary side of every dirty pair. The result is sorted.
func WorkSet(part Partition, dirty []Pair) []int {
	work := make([]int, 0, len(part.OnlyPrimary)+len(dirty))
	work = append(work, part.OnlyPrimary...)
	for _, p := range dirty {
		work = append(work, p.Primary)
	}
	sort.Ints(work)
	return work
}

// ClassifyPair decides the outcome of a dirty pair from whether the hashes,
// sizes and modification seconds are equal.
func ClassifyPair(hashEqual, sizeEqual, dateEqual bool) Outcome {
	switch {
	case hashEqual:
		return DirtyValid
	case sizeEqual && dateEqual:
		return InvalidHash
	case !sizeEqual && dateEqual:
		return DirtyInvalidSize
	case sizeEqual && !dateEqual:
		return DirtyInvalidDate
	default:
		return DirtyInvalidBoth
	}
}

// Classify sorts the dirty pairs of res into outcome categories. Pairs whose
// primary file failed to hash are left out; they are already listed in
// res.HashingErrors.
func Classify[D digest.Digest[D]](primary, secondary []types.FileRecord[D], res *Result[D]) error {
	failed := indexSet(res.HashingErrors)

	for _, p := range res.Dirty {
		if failed[p.Primary] {
			continue
		}
		prim, sec := &primary[p.Primary], &secondary[p.Secondary]
		if prim.Calculated == nil {
			return types.Internalf("dirty file %q has no calculated hash", prim.Path)
		}
		if sec.Loaded == nil {
			return types.Internalf("manifest entry %q has no loaded hash", sec.Path)
		}

		outcome := ClassifyPair(
			*prim.Calculated == *sec.Loaded,
			prim.Metadata.SizeEqual(sec.Metadata),
			prim.Metadata.ModTimeEqual(sec.Metadata),
		)
		switch outcome {
		case DirtyValid:
			res.DirtyValid = append(res.DirtyValid, p.Primary)
		case InvalidHash:
			res.InvalidHash = append(res.InvalidHash, p.Primary)
		case DirtyInvalidSize:
			res.DirtyBySize = append(res.DirtyBySize, p.Primary)
		case DirtyInvalidDate:
			res.DirtyByDate = append(res.DirtyByDate, p.Primary)
		case DirtyInvalidBoth:
			res.DirtyByBoth = append(res.DirtyByBoth, p.Primary)
		}
	}
	return nil
}

// Crosscheck matches files only on disk against files only in the manifest
// by content hash.
//
// A manifest-only file whose hash appears among disk-only files was moved.
// Otherwise it is an orphan, or an orphan with a duplicate when the same
// hash appears elsewhere in the manifest. Disk-only files whose hash was
// never matched are primary orphans.
func Crosscheck[D digest.Digest[D]](primary, secondary []types.FileRecord[D], res *Result[D]) error {
	failed := indexSet(res.HashingErrors)

	primaryGroups := make(map[D][]int)
	for _, i := range res.OnlyPrimary {
		if failed[i] {
			continue
		}
		if primary[i].Calculated == nil {
			return types.Internalf("new file %q has no calculated hash", primary[i].Path)
		}
		h := *primary[i].Calculated
		primaryGroups[h] = append(primaryGroups[h], i)
	}

	secondaryGroups := make(map[D]int, len(secondary))
	for i := range secondary {
		if secondary[i].Loaded == nil {
			return types.Internalf("manifest entry %q has no loaded hash", secondary[i].Path)
		}
		secondaryGroups[*secondary[i].Loaded]++
	}

	found := make(map[D]*Match[D])
	for _, j := range res.OnlySecondary {
		h := *secondary[j].Loaded
		if group, ok := primaryGroups[h]; ok {
			m, seen := found[h]
			if !seen {
				m = &Match[D]{Hash: h, Primary: group}
				found[h] = m
			}
			m.Secondary = append(m.Secondary, j)
			continue
		}
		if secondaryGroups[h] > 1 {
			res.SecondaryOrphansWithDup = append(res.SecondaryOrphansWithDup, j)
		} else {
			res.SecondaryOrphans = append(res.SecondaryOrphans, j)
		}
	}

	for _, i := range res.OnlyPrimary {
		if failed[i] {
			continue
		}
		if _, claimed := found[*primary[i].Calculated]; !claimed {
			res.PrimaryOrphans = append(res.PrimaryOrphans, i)
		}
	}

	res.Found = make([]Match[D], 0, len(found))
	for _, m := range found {
		res.Found = append(res.Found, *m)
	}
	sort.Slice(res.Found, func(a, b int) bool {
		return res.Found[a].Hash.Compare(res.Found[b].Hash) < 0
	})
	return nil
}

// Propagate gives every persistable primary record a digest.
//
// Moved files receive the matched hash. Paired files whose metadata did not
// change, and dirty files whose content proved unchanged, receive the
// manifest's hash. Files classified as changed keep their freshly
// calculated hash, so a refreshed manifest records the current content.
// Files that failed to hash get nothing and are excluded when saving.
func Propagate[D digest.Digest[D]](primary, secondary []types.FileRecord[D], res *Result[D]) {
	for _, m := range res.Found {
		for _, i := range m.Primary {
			primary[i].SetCalculated(m.Hash)
		}
	}

	dirty := make(map[int]bool, len(res.Dirty))
	for _, p := range res.Dirty {
		dirty[p.Primary] = true
	}
	valid := indexSet(res.DirtyValid)

	for _, p := range res.Both {
		if dirty[p.Primary] && !valid[p.Primary] {
			continue
		}
		if loaded := secondary[p.Secondary].Loaded; loaded != nil {
			primary[p.Primary].SetCalculated(*loaded)
		}
	}
}

// Run performs a complete reconciliation: partition, dirty detection,
// hashing of the work set, classification, crosscheck and propagation.
func Run[D digest.Digest[D]](ctx context.Context, algo digest.Algorithm[D], primary, secondary *types.Snapshot[D], opts hasher.Options) (*Result[D], error) {
	res := &Result[D]{Partition: Split(primary.Files, secondary.Files)}
	res.Dirty = DirtyPairs(primary.Files, secondary.Files, res.Both)
	res.WorkSet = WorkSet(res.Partition, res.Dirty)

	logger.Info("reconciling",
		"disk", len(primary.Files),
		"manifest", len(secondary.Files),
		"paired", len(res.Both),
		"dirty", len(res.Dirty),
		"to_hash", len(res.WorkSet))

	failed, err := hasher.Hash(ctx, algo, primary.Files, res.WorkSet, opts)
	if err != nil {
		return nil, fmt.Errorf("hashing changed files: %w", err)
	}
	res.HashingErrors = failed

	if err := Classify(primary.Files, secondary.Files, res); err != nil {
		return nil, err
	}
	if err := Crosscheck(primary.Files, secondary.Files, res); err != nil {
		return nil, err
	}
	Propagate(primary.Files, secondary.Files, res)

	logger.Info("reconciled",
		"unchanged", res.Unchanged(),
		"dirty_valid", len(res.DirtyValid),
		"invalid", len(res.InvalidHash)+len(res.DirtyBySize)+len(res.DirtyByDate)+len(res.DirtyByBoth),
		"moved", len(res.Found),
		"new", len(res.PrimaryOrphans),
		"removed", len(res.SecondaryOrphans)+len(res.SecondaryOrphansWithDup),
		"hash_errors", len(res.HashingErrors))
	return res, nil
}

func indexSet(indices []int) map[int]bool {
	set := make(map[int]bool, len(indices))
	for _, i := range indices {
		set[i] = true
	}
	return set
}
