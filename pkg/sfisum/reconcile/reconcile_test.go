package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/hasher"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

type rec = types.FileRecord[digest.MD5]

var epoch = time.Unix(1700000000, 0)

func sum(s string) *digest.MD5 {
	d := digest.MD5Algorithm.Sum([]byte(s))
	return &d
}

func meta(size uint64, secs int64) types.FileMetadata {
	return types.NewFileMetadata(size, epoch.Add(time.Duration(secs)*time.Second))
}

func TestSplitCompleteness(t *testing.T) {
	t.Parallel()

	primary := []rec{{Path: "/a"}, {Path: "/b"}, {Path: "/c"}, {Path: "/b"}}
	secondary := []rec{{Path: "/b"}, {Path: "/d"}, {Path: "/a"}, {Path: "/d"}}

	part := Split(primary, secondary)

	assert.Equal(t, []Pair{{Primary: 0, Secondary: 2}, {Primary: 1, Secondary: 0}}, part.Both)
	assert.Equal(t, []int{2, 3}, part.OnlyPrimary)
	assert.Equal(t, []int{1, 3}, part.OnlySecondary)

	seenP := map[int]int{}
	seenS := map[int]int{}
	for _, i := range part.OnlyPrimary {
		seenP[i]++
	}
	for _, i := range part.OnlySecondary {
		seenS[i]++
	}
	for _, p := range part.Both {
		seenP[p.Primary]++
		seenS[p.Secondary]++
	}
	for i := range primary {
		assert.Equal(t, 1, seenP[i], "primary %d", i)
	}
	for i := range secondary {
		assert.Equal(t, 1, seenS[i], "secondary %d", i)
	}
	assert.Equal(t, len(primary), len(part.OnlyPrimary)+len(part.Both))
}

func TestDirtyPairsIgnoresSubSecond(t *testing.T) {
	t.Parallel()

	primary := []rec{
		{Path: "/same", Metadata: types.NewFileMetadata(5, epoch.Add(900*time.Millisecond))},
		{Path: "/size", Metadata: meta(6, 0)},
		{Path: "/date", Metadata: meta(5, 1)},
	}
	secondary := []rec{
		{Path: "/same", Metadata: types.NewFileMetadata(5, epoch)},
		{Path: "/size", Metadata: meta(5, 0)},
		{Path: "/date", Metadata: meta(5, 0)},
	}
	part := Split(primary, secondary)
	dirty := DirtyPairs(primary, secondary, part.Both)

	assert.Equal(t, []Pair{{1, 1}, {2, 2}}, dirty)
	assert.Equal(t, []int{1, 2}, WorkSet(part, dirty))
}

func TestClassifyPairExhaustive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hash, size, date bool
		want             Outcome
	}{
		{true, true, true, DirtyValid},
		{true, false, true, DirtyValid},
		{true, true, false, DirtyValid},
		{true, false, false, DirtyValid},
		{false, true, true, InvalidHash},
		{false, false, true, DirtyInvalidSize},
		{false, true, false, DirtyInvalidDate},
		{false, false, false, DirtyInvalidBoth},
	}
	for _, tt := range tests {
		got := ClassifyPair(tt.hash, tt.size, tt.date)
		assert.Equal(t, tt.want, got, "hash=%v size=%v date=%v", tt.hash, tt.size, tt.date)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	primary := []rec{
		{Path: "/valid", Calculated: sum("v"), Metadata: meta(1, 5)},
		{Path: "/size", Calculated: sum("s2"), Metadata: meta(2, 0)},
		{Path: "/date", Calculated: sum("d2"), Metadata: meta(1, 9)},
		{Path: "/both", Calculated: sum("b2"), Metadata: meta(2, 9)},
		{Path: "/failed", Metadata: meta(3, 9)},
	}
	secondary := []rec{
		{Path: "/valid", Loaded: sum("v"), Metadata: meta(1, 0)},
		{Path: "/size", Loaded: sum("s1"), Metadata: meta(1, 0)},
		{Path: "/date", Loaded: sum("d1"), Metadata: meta(1, 0)},
		{Path: "/both", Loaded: sum("b1"), Metadata: meta(1, 0)},
		{Path: "/failed", Loaded: sum("f"), Metadata: meta(1, 0)},
	}

	res := &Result[digest.MD5]{Partition: Split(primary, secondary)}
	res.Dirty = DirtyPairs(primary, secondary, res.Both)
	res.HashingErrors = []int{4}

	require.NoError(t, Classify(primary, secondary, res))
	assert.Equal(t, []int{0}, res.DirtyValid)
	assert.Equal(t, []int{1}, res.DirtyBySize)
	assert.Equal(t, []int{2}, res.DirtyByDate)
	assert.Equal(t, []int{3}, res.DirtyByBoth)
	assert.Empty(t, res.InvalidHash)
}

func TestClassifyMissingHashIsInternal(t *testing.T) {
	t.Parallel()

	primary := []rec{{Path: "/x", Metadata: meta(2, 0)}}
	secondary := []rec{{Path: "/x", Loaded: sum("x"), Metadata: meta(1, 0)}}
	res := &Result[digest.MD5]{Partition: Split(primary, secondary)}
	res.Dirty = DirtyPairs(primary, secondary, res.Both)

	err := Classify(primary, secondary, res)
	require.Error(t, err)
	assert.True(t, types.IsInternal(err))
}

func TestCrosscheck(t *testing.T) {
	t.Parallel()

	primary := []rec{
		{Path: "/moved-to", Calculated: sum("moved")},
		{Path: "/new", Calculated: sum("new")},
		{Path: "/copy-1", Calculated: sum("dup")},
		{Path: "/copy-2", Calculated: sum("dup")},
		{Path: "/unreadable"},
	}
	secondary := []rec{
		{Path: "/moved-from", Loaded: sum("moved")},
		{Path: "/gone", Loaded: sum("gone")},
		{Path: "/gone-twin-a", Loaded: sum("twin")},
		{Path: "/kept-twin", Loaded: sum("twin")},
		{Path: "/dup-source", Loaded: sum("dup")},
	}
	// kept-twin is still on disk.
	primary = append(primary, rec{Path: "/kept-twin", Calculated: sum("twin")})

	res := &Result[digest.MD5]{Partition: Split(primary, secondary)}
	res.HashingErrors = []int{4}
	require.NoError(t, Crosscheck(primary, secondary, res))

	require.Len(t, res.Found, 2)
	byHash := map[digest.MD5]Match[digest.MD5]{}
	for _, m := range res.Found {
		byHash[m.Hash] = m
	}
	assert.Equal(t, []int{0}, byHash[*sum("moved")].Primary)
	assert.Equal(t, []int{0}, byHash[*sum("moved")].Secondary)
	assert.Equal(t, []int{2, 3}, byHash[*sum("dup")].Primary)
	assert.Equal(t, []int{4}, byHash[*sum("dup")].Secondary)
	assert.Negative(t, res.Found[0].Hash.Compare(res.Found[1].Hash), "matches sorted by hash")

	assert.Equal(t, []int{1}, res.SecondaryOrphans)
	assert.Equal(t, []int{2}, res.SecondaryOrphansWithDup)
	assert.Equal(t, []int{1}, res.PrimaryOrphans)
}

func TestCrosscheckSymmetry(t *testing.T) {
	t.Parallel()

	primary := []rec{{Path: "/c.txt", Calculated: sum("world")}}
	secondary := []rec{{Path: "/b.txt", Loaded: sum("world")}}

	res := &Result[digest.MD5]{Partition: Split(primary, secondary)}
	require.NoError(t, Crosscheck(primary, secondary, res))

	require.Len(t, res.Found, 1)
	assert.Empty(t, res.PrimaryOrphans)
	assert.Empty(t, res.SecondaryOrphans)
	assert.Empty(t, res.SecondaryOrphansWithDup)
}

func TestPropagate(t *testing.T) {
	t.Parallel()

	primary := []rec{
		{Path: "/unchanged", Metadata: meta(1, 0)},
		{Path: "/valid", Calculated: sum("v"), Metadata: meta(1, 5)},
		{Path: "/changed", Calculated: sum("new content"), Metadata: meta(2, 5)},
		{Path: "/failed", Metadata: meta(2, 5)},
		{Path: "/moved", Calculated: sum("m")},
	}
	secondary := []rec{
		{Path: "/unchanged", Loaded: sum("u"), Metadata: meta(1, 0)},
		{Path: "/valid", Loaded: sum("v"), Metadata: meta(1, 0)},
		{Path: "/changed", Loaded: sum("old content"), Metadata: meta(1, 0)},
		{Path: "/failed", Loaded: sum("f"), Metadata: meta(1, 0)},
		{Path: "/origin", Loaded: sum("m")},
	}

	res := &Result[digest.MD5]{Partition: Split(primary, secondary)}
	res.Dirty = DirtyPairs(primary, secondary, res.Both)
	res.HashingErrors = []int{3}
	require.NoError(t, Classify(primary, secondary, res))
	require.NoError(t, Crosscheck(primary, secondary, res))
	Propagate(primary, secondary, res)

	assert.Equal(t, *sum("u"), *primary[0].Calculated)
	assert.Equal(t, *sum("v"), *primary[1].Calculated)
	assert.Equal(t, *sum("new content"), *primary[2].Calculated, "changed files keep the fresh hash")
	assert.Nil(t, primary[3].Calculated)
	assert.Equal(t, *sum("m"), *primary[4].Calculated)
}

func writeFile(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func diskRecord(t *testing.T, path string) rec {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return rec{Path: path, Metadata: types.NewFileMetadata(uint64(info.Size()), info.ModTime())}
}

func TestRunHashesOnlyWorkSet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	same := filepath.Join(dir, "same.txt")
	touched := filepath.Join(dir, "touched.txt")
	added := filepath.Join(dir, "added.txt")
	writeFile(t, same, "same", epoch)
	writeFile(t, touched, "touched", epoch.Add(time.Hour))
	writeFile(t, added, "added", epoch)

	primary := &types.Snapshot[digest.MD5]{BasePath: dir, Files: []rec{
		diskRecord(t, added), diskRecord(t, same), diskRecord(t, touched),
	}}
	// The manifest claims a wrong hash for same.txt; since its metadata is
	// unchanged it must not be re-hashed, so the claim is carried forward.
	secondary := &types.Snapshot[digest.MD5]{BasePath: dir, Files: []rec{
		{Path: same, Loaded: sum("stale claim"), Metadata: types.NewFileMetadata(4, epoch)},
		{Path: touched, Loaded: sum("touched"), Metadata: types.NewFileMetadata(7, epoch)},
	}}

	res, err := Run(context.Background(), digest.MD5Algorithm, primary, secondary, hasher.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, res.WorkSet)
	assert.Equal(t, 1, res.Unchanged())
	assert.Equal(t, []int{2}, res.DirtyValid)
	assert.Equal(t, []int{0}, res.PrimaryOrphans)
	assert.Equal(t, *sum("stale claim"), *primary.Files[1].Calculated)
}

func TestRunPropagatesInterrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "new.txt")
	writeFile(t, path, "x", epoch)

	primary := &types.Snapshot[digest.MD5]{BasePath: dir, Files: []rec{diskRecord(t, path)}}
	secondary := &types.Snapshot[digest.MD5]{BasePath: dir, Files: []rec{{Path: filepath.Join(dir, "old"), Loaded: sum("o")}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, digest.MD5Algorithm, primary, secondary, hasher.DefaultOptions())
	assert.ErrorIs(t, err, hasher.ErrInterrupted)
}

// BenchmarkSplit partitions two 100k-entry snapshots that overlap by 90%.
func BenchmarkSplit(b *testing.B) {
	const n = 100_000
	primary := make([]rec, n)
	secondary := make([]rec, n)
	for i := range n {
		primary[i] = rec{Path: "dir/file" + strconv.Itoa(i)}
		secondary[i] = rec{Path: "dir/file" + strconv.Itoa(i+n/10)}
	}

	b.ResetTimer()
	for range b.N {
		part := Split(primary, secondary)
		if len(part.Both) != n-n/10 {
			b.Fatalf("Both = %d, want %d", len(part.Both), n-n/10)
		}
	}
}
