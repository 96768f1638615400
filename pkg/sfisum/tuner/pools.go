package tuner

import "github.com/jamesainslie/sfisum/pkg/sfisum/types"

// Pool limits.
const (
	maxWorkers = 64

	minSmallWorkers = 2
	minLargeWorkers = 1
	maxLargeWorkers = 8

	// Below this much free memory the page cache cannot keep several large
	// sequential streams warm.
	lowMemory = 1 * types.GiB
)

// PoolConfig is a worker count for each hasher pool.
type PoolConfig struct {
	// SmallWorkers hash files at or under the size threshold. Their cost is
	// dominated by open and stat latency, so they scale with cores.
	SmallWorkers int

	// LargeWorkers stream big files. More than a handful only makes the
	// disk seek between them.
	LargeWorkers int
}

// Calculate returns pool sizes for resources:
//   - SmallWorkers: NumCPU * 2, at least 2, at most 64
//   - LargeWorkers: NumCPU / 2, between 1 and 8, and at most 2 on low memory
func Calculate(resources SystemResources) PoolConfig {
	small := resources.CPUCores * 2
	small = max(small, minSmallWorkers)
	small = min(small, maxWorkers)

	large := resources.CPUCores / 2
	large = max(large, minLargeWorkers)
	large = min(large, maxLargeWorkers)
	if resources.AvailableRAM > 0 && resources.AvailableRAM < lowMemory {
		large = min(large, 2)
	}

	return PoolConfig{SmallWorkers: small, LargeWorkers: large}
}

// CalculateWithOverrides applies positive overrides on top of Calculate.
// Overrides are still capped at 64.
func CalculateWithOverrides(resources SystemResources, smallOverride, largeOverride int) PoolConfig {
	cfg := Calculate(resources)
	if smallOverride > 0 {
		cfg.SmallWorkers = min(smallOverride, maxWorkers)
	}
	if largeOverride > 0 {
		cfg.LargeWorkers = min(largeOverride, maxWorkers)
	}
	return cfg
}
