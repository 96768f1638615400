// Package hasher computes file digests in parallel.
//
// Selected records are split by size into a small and a large partition, and
// each partition is hashed by its own bounded worker pool. The two pools run
// at the same time, so a handful of huge files cannot starve thousands of
// small ones and vice versa. Every worker owns a distinct record index, which
// is what lets workers write Calculated without locking.
package hasher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/logging"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

var logger = logging.Get("hasher")

// Defaults.
const (
	DefaultThreshold        = types.MiB
	DefaultSmallWorkers     = 2
	DefaultLargeWorkers     = 2
	DefaultProgressInterval = 100 * time.Millisecond
)

var (
	// ErrInterrupted is returned when the context is cancelled before all
	// selected records were hashed.
	ErrInterrupted = errors.New("interrupted")

	// ErrAllSmallFailed is returned when the small partition is non-empty
	// and every file in it failed to hash.
	ErrAllSmallFailed = errors.New("failed to hash any small files")
)

// Pool identifies one of the two worker pools.
type Pool int

// Worker pools.
const (
	PoolSmall Pool = iota
	PoolLarge
)

func (p Pool) String() string {
	if p == PoolSmall {
		return "small"
	}
	return "large"
}

// Progress is a "files remaining" report for one pool.
type Progress struct {
	Pool      Pool
	Remaining int64
	Total     int64
}

// Options configures a hashing pass.
type Options struct {
	// Threshold is the largest size, in bytes, still hashed by the small pool.
	Threshold int64

	// SmallWorkers and LargeWorkers bound the two pools.
	SmallWorkers int
	LargeWorkers int

	// ProgressInterval is the minimum time between OnProgress calls.
	ProgressInterval time.Duration

	// OnProgress receives throttled progress from worker goroutines, plus a
	// final report for each pool. It must be safe for concurrent use.
	OnProgress func(Progress)
}

// DefaultOptions returns options matching the package defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:        DefaultThreshold,
		SmallWorkers:     DefaultSmallWorkers,
		LargeWorkers:     DefaultLargeWorkers,
		ProgressInterval: DefaultProgressInterval,
	}
}

func (o *Options) applyDefaults() {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.SmallWorkers < 1 {
		o.SmallWorkers = DefaultSmallWorkers
	}
	if o.LargeWorkers < 1 {
		o.LargeWorkers = DefaultLargeWorkers
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
}

type pass[D digest.Digest[D]] struct {
	algo  digest.Algorithm[D]
	files []types.FileRecord[D]
	opts  Options

	remaining [2]atomic.Int64
	totals    [2]int64

	failed   []int
	failedMu sync.Mutex

	lastProgress atomic.Int64
}

// Hash computes Calculated for the records selected by indices, or for every
// record when indices is nil. Per-file failures do not stop the pass; their
// indices are returned sorted, or nil when every file hashed.
//
// Cancellation is cooperative: workers check ctx before opening each file and
// the dispatcher stops handing out work, but a file already being read is
// finished. A cancelled pass returns ErrInterrupted.
func Hash[D digest.Digest[D]](ctx context.Context, algo digest.Algorithm[D], files []types.FileRecord[D], indices []int, opts Options) ([]int, error) {
	opts.applyDefaults()

	selected, err := selectIndices(len(files), indices)
	if err != nil {
		return nil, err
	}

	var parts [2][]int
	for _, idx := range selected {
		if files[idx].Metadata.Size <= uint64(opts.Threshold) {
			parts[PoolSmall] = append(parts[PoolSmall], idx)
		} else {
			parts[PoolLarge] = append(parts[PoolLarge], idx)
		}
	}

	p := &pass[D]{algo: algo, files: files, opts: opts}
	for pool, part := range parts {
		p.totals[pool] = int64(len(part))
		p.remaining[pool].Store(int64(len(part)))
	}

	logger.Debug("hashing started",
		"algorithm", algo.Type().Name(),
		"small", len(parts[PoolSmall]),
		"large", len(parts[PoolLarge]),
		"threshold", opts.Threshold)

	start := time.Now()
	var smallFailed atomic.Int64
	var wg sync.WaitGroup
	for _, pool := range []Pool{PoolSmall, PoolLarge} {
		if len(parts[pool]) == 0 {
			continue
		}
		workers := opts.SmallWorkers
		if pool == PoolLarge {
			workers = opts.LargeWorkers
		}
		wg.Add(1)
		go func(pool Pool, part []int, workers int) {
			defer wg.Done()
			n := p.runPool(ctx, pool, part, workers)
			if pool == PoolSmall {
				smallFailed.Store(int64(n))
			}
		}(pool, parts[pool], workers)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warn("hashing interrupted", "elapsed", time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if n := len(parts[PoolSmall]); n > 0 && smallFailed.Load() == int64(n) {
		return nil, fmt.Errorf("%w (%d files)", ErrAllSmallFailed, n)
	}

	logger.Info("hashing complete",
		"files", len(selected),
		"failed", len(p.failed),
		"elapsed", time.Since(start))

	if len(p.failed) == 0 {
		return nil, nil
	}
	sort.Ints(p.failed)
	return p.failed, nil
}

// selectIndices validates and de-duplicates indices. A nil slice selects
// every record.
func selectIndices(n int, indices []int) ([]int, error) {
	if indices == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	seen := make([]bool, n)
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, types.Internalf("hash index %d out of range [0,%d)", idx, n)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out, nil
}

// runPool hashes part with at most workers goroutines and returns the number
// of failures.
func (p *pass[D]) runPool(ctx context.Context, pool Pool, part []int, workers int) int {
	var failures atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, idx := range part {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if !p.hashOne(idx) {
				failures.Add(1)
			}
			p.remaining[pool].Add(-1)
			p.reportProgress(pool)
			return nil
		})
	}
	// Workers never return errors; failures are collected in p.failed.
	_ = g.Wait()

	p.reportProgressForce(pool)
	logger.Debug("pool finished", "pool", pool, "files", len(part), "failed", failures.Load())
	return int(failures.Load())
}

func (p *pass[D]) hashOne(idx int) bool {
	rec := &p.files[idx]
	d, err := p.algo.FromFile(rec.Path)
	if err != nil {
		logger.Warn("failed to hash file", "path", rec.Path, "error", err)
		p.failedMu.Lock()
		p.failed = append(p.failed, idx)
		p.failedMu.Unlock()
		return false
	}
	rec.SetCalculated(d)
	return true
}

func (p *pass[D]) reportProgress(pool Pool) {
	if p.opts.OnProgress == nil {
		return
	}
	now := time.Now().UnixNano()
	last := p.lastProgress.Load()
	if now-last < int64(p.opts.ProgressInterval) {
		return
	}
	if !p.lastProgress.CompareAndSwap(last, now) {
		return
	}
	p.send(pool)
}

func (p *pass[D]) reportProgressForce(pool Pool) {
	if p.opts.OnProgress == nil {
		return
	}
	p.lastProgress.Store(time.Now().UnixNano())
	p.send(pool)
}

func (p *pass[D]) send(pool Pool) {
	p.opts.OnProgress(Progress{
		Pool:      pool,
		Remaining: p.remaining[pool].Load(),
		Total:     p.totals[pool],
	})
}
