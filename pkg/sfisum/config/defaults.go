// Package config loads sfisum settings from a YAML file, SFISUM_ environment
// variables and command-line flags.
package config

import "time"

// Default configuration values.
const (
	// DefaultHash is the hash algorithm used for new manifests.
	DefaultHash = "md5"

	// DefaultThreshold separates small files from large ones in the hasher.
	DefaultThreshold = "1MiB"

	// DefaultProgressInterval throttles progress updates.
	DefaultProgressInterval = 100 * time.Millisecond

	// DefaultFormat is the report format.
	DefaultFormat = "pretty"

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 90
)
