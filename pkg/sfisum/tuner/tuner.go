// Package tuner sizes the hasher's worker pools for the machine it runs on.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is free RAM in bytes, possibly estimated.
	AvailableRAM int64
}
