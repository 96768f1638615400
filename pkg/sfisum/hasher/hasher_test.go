package hasher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

// fixture writes files with the given contents and returns unhashed records.
func fixture(t *testing.T, contents ...string) []types.FileRecord[digest.MD5] {
	t.Helper()
	dir := t.TempDir()
	records := make([]types.FileRecord[digest.MD5], len(contents))
	for i, c := range contents {
		path := filepath.Join(dir, fmt.Sprintf("f%03d", i))
		require.NoError(t, os.WriteFile(path, []byte(c), 0o644))
		records[i] = types.FileRecord[digest.MD5]{
			Path:     path,
			Metadata: types.NewFileMetadata(uint64(len(c)), time.Now()),
		}
	}
	return records
}

func smallOpts() Options {
	return Options{Threshold: 8, SmallWorkers: 2, LargeWorkers: 2}
}

func TestHashAll(t *testing.T) {
	t.Parallel()

	contents := []string{"a", "hello", strings.Repeat("L", 100), strings.Repeat("M", 200)}
	records := fixture(t, contents...)

	failed, err := Hash(context.Background(), digest.MD5Algorithm, records, nil, smallOpts())
	require.NoError(t, err)
	assert.Nil(t, failed)

	for i, c := range contents {
		require.NotNil(t, records[i].Calculated, "record %d", i)
		assert.Equal(t, digest.MD5Algorithm.Sum([]byte(c)), *records[i].Calculated)
	}
}

func TestHashWorkerCountsAgree(t *testing.T) {
	t.Parallel()

	contents := make([]string, 40)
	for i := range contents {
		contents[i] = strings.Repeat(fmt.Sprint(i%10), i*3)
	}

	for _, workers := range []int{1, 2, 7, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()
			records := fixture(t, contents...)
			opts := Options{Threshold: 30, SmallWorkers: workers, LargeWorkers: workers}

			failed, err := Hash(context.Background(), digest.MD5Algorithm, records, nil, opts)
			require.NoError(t, err)
			assert.Nil(t, failed)
			for i, c := range contents {
				require.NotNil(t, records[i].Calculated)
				assert.Equal(t, digest.MD5Algorithm.Sum([]byte(c)), *records[i].Calculated)
			}
		})
	}
}

func TestHashRestrictedIndices(t *testing.T) {
	t.Parallel()

	records := fixture(t, "a", "b", "c", "d")

	failed, err := Hash(context.Background(), digest.MD5Algorithm, records, []int{1, 3, 3}, smallOpts())
	require.NoError(t, err)
	assert.Nil(t, failed)

	assert.Nil(t, records[0].Calculated)
	assert.NotNil(t, records[1].Calculated)
	assert.Nil(t, records[2].Calculated)
	assert.NotNil(t, records[3].Calculated)
}

func TestHashEmptySelection(t *testing.T) {
	t.Parallel()

	records := fixture(t, "a")
	failed, err := Hash(context.Background(), digest.MD5Algorithm, records, []int{}, smallOpts())
	require.NoError(t, err)
	assert.Nil(t, failed)
	assert.Nil(t, records[0].Calculated)
}

func TestHashRecordsFailures(t *testing.T) {
	t.Parallel()

	records := fixture(t, "ok", "gone", strings.Repeat("x", 50), strings.Repeat("y", 60))
	require.NoError(t, os.Remove(records[1].Path))
	require.NoError(t, os.Remove(records[3].Path))

	failed, err := Hash(context.Background(), digest.MD5Algorithm, records, nil, smallOpts())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, failed)
	assert.NotNil(t, records[0].Calculated)
	assert.Nil(t, records[1].Calculated)
	assert.NotNil(t, records[2].Calculated)
	assert.Nil(t, records[3].Calculated)
}

func TestHashAllSmallFailedIsFatal(t *testing.T) {
	t.Parallel()

	records := fixture(t, "a", "b", strings.Repeat("z", 100))
	require.NoError(t, os.Remove(records[0].Path))
	require.NoError(t, os.Remove(records[1].Path))

	_, err := Hash(context.Background(), digest.MD5Algorithm, records, nil, smallOpts())
	assert.ErrorIs(t, err, ErrAllSmallFailed)
}

func TestHashAllLargeFailedIsNotFatal(t *testing.T) {
	t.Parallel()

	records := fixture(t, "a", strings.Repeat("z", 100), strings.Repeat("w", 100))
	require.NoError(t, os.Remove(records[1].Path))
	require.NoError(t, os.Remove(records[2].Path))

	failed, err := Hash(context.Background(), digest.MD5Algorithm, records, nil, smallOpts())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, failed)
}

func TestHashCancelled(t *testing.T) {
	t.Parallel()

	records := fixture(t, "a", "b", strings.Repeat("c", 100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Hash(ctx, digest.MD5Algorithm, records, nil, smallOpts())
	require.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	for i := range records {
		assert.Nil(t, records[i].Calculated)
	}
}

func TestHashCancelledMidway(t *testing.T) {
	t.Parallel()

	contents := make([]string, 200)
	for i := range contents {
		contents[i] = fmt.Sprint(i)
	}
	records := fixture(t, contents...)

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	opts := Options{
		Threshold:        1024,
		SmallWorkers:     1,
		ProgressInterval: time.Nanosecond,
		OnProgress: func(Progress) {
			once.Do(cancel)
		},
	}

	_, err := Hash(ctx, digest.MD5Algorithm, records, nil, opts)
	require.ErrorIs(t, err, ErrInterrupted)

	hashed := 0
	for i := range records {
		if records[i].Calculated != nil {
			hashed++
		}
	}
	assert.Less(t, hashed, len(records))
}

func TestHashOutOfRangeIndexIsInternal(t *testing.T) {
	t.Parallel()

	records := fixture(t, "a")
	_, err := Hash(context.Background(), digest.MD5Algorithm, records, []int{0, 5}, smallOpts())
	require.Error(t, err)
	assert.True(t, types.IsInternal(err))
}

func TestHashProgress(t *testing.T) {
	t.Parallel()

	records := fixture(t, "a", "b", "c", strings.Repeat("d", 64))

	var mu sync.Mutex
	final := map[Pool]Progress{}
	opts := smallOpts()
	opts.OnProgress = func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		final[p.Pool] = p
	}

	_, err := Hash(context.Background(), digest.MD5Algorithm, records, nil, opts)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, Progress{Pool: PoolSmall, Remaining: 0, Total: 3}, final[PoolSmall])
	assert.Equal(t, Progress{Pool: PoolLarge, Remaining: 0, Total: 1}, final[PoolLarge])
}

func TestThresholdBoundaryIsSmall(t *testing.T) {
	t.Parallel()

	// A file exactly at the threshold belongs to the small pool.
	records := fixture(t, strings.Repeat("x", 8))

	var mu sync.Mutex
	var pools []Pool
	opts := smallOpts()
	opts.OnProgress = func(p Progress) {
		mu.Lock()
		pools = append(pools, p.Pool)
		mu.Unlock()
	}

	_, err := Hash(context.Background(), digest.MD5Algorithm, records, nil, opts)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, pools, PoolLarge)
	assert.Contains(t, pools, PoolSmall)
}

// BenchmarkHash hashes 500 small files and 4 large ones per iteration.
func BenchmarkHash(b *testing.B) {
	dir := b.TempDir()
	var records []types.FileRecord[digest.XXH128]
	add := func(name string, size int) {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644); err != nil {
			b.Fatalf("failed to create file: %v", err)
		}
		records = append(records, types.FileRecord[digest.XXH128]{
			Path:     path,
			Metadata: types.NewFileMetadata(uint64(size), time.Now()),
		})
	}
	for i := range 500 {
		add(fmt.Sprintf("small%03d", i), 4096)
	}
	for i := range 4 {
		add(fmt.Sprintf("large%d", i), 4*int(types.MiB))
	}

	opts := Options{Threshold: types.MiB, SmallWorkers: 8, LargeWorkers: 2}

	b.ResetTimer()
	for range b.N {
		if _, err := Hash(context.Background(), digest.XXH128Algorithm, records, nil, opts); err != nil {
			b.Fatalf("Hash failed: %v", err)
		}
	}
}
