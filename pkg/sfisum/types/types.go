// Package types provides the core data model shared by the sfisum packages:
// file metadata as stored in manifests, file records carrying loaded and
// calculated digests, and snapshots of a directory tree. It also includes
// helpers for parsing and formatting human-readable sizes.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// ErrMalformedMetadata indicates a metadata line that does not match
// "Size: <bytes>, Last modified: <unix-seconds>".
var ErrMalformedMetadata = errors.New("malformed metadata")

const (
	metaSizePrefix = "Size: "
	metaModSep     = ", Last modified: "
)

// FileMetadata is the size and modification time recorded for a file.
// ModTime is always truncated to whole seconds, because manifests only store
// integer seconds.
type FileMetadata struct {
	// Size is the file size in bytes.
	Size uint64 `json:"size"`

	// ModTime is the last modification time at second precision.
	ModTime time.Time `json:"mod_time"`
}

// NewFileMetadata builds metadata with modTime truncated to seconds.
// Times before the Unix epoch are clamped to the epoch.
func NewFileMetadata(size uint64, modTime time.Time) FileMetadata {
	secs := modTime.Unix()
	if secs < 0 {
		secs = 0
	}
	return FileMetadata{Size: size, ModTime: time.Unix(secs, 0)}
}

// SizeEqual reports whether both sizes match.
func (m FileMetadata) SizeEqual(other FileMetadata) bool {
	return m.Size == other.Size
}

// ModTimeEqual reports whether both modification times match at second precision.
func (m FileMetadata) ModTimeEqual(other FileMetadata) bool {
	return m.ModTime.Unix() == other.ModTime.Unix()
}

// Equal reports whether size and modification second both match.
func (m FileMetadata) Equal(other FileMetadata) bool {
	return m.SizeEqual(other) && m.ModTimeEqual(other)
}

// String returns the manifest form of the metadata.
func (m FileMetadata) String() string {
	return fmt.Sprintf("%s%d%s%d", metaSizePrefix, m.Size, metaModSep, m.ModTime.Unix())
}

// ParseFileMetadata parses the manifest form produced by FileMetadata.String.
func ParseFileMetadata(s string) (FileMetadata, error) {
	rest, ok := strings.CutPrefix(s, metaSizePrefix)
	if !ok {
		return FileMetadata{}, fmt.Errorf("%w: %q", ErrMalformedMetadata, s)
	}
	sizeStr, modStr, ok := strings.Cut(rest, metaModSep)
	if !ok {
		return FileMetadata{}, fmt.Errorf("%w: %q", ErrMalformedMetadata, s)
	}
	size, err := strconv.ParseUint(strings.TrimSpace(sizeStr), 10, 64)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("%w: size %q", ErrMalformedMetadata, sizeStr)
	}
	secs, err := strconv.ParseUint(strings.TrimSpace(modStr), 10, 63)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("%w: last modified %q", ErrMalformedMetadata, modStr)
	}
	return FileMetadata{Size: size, ModTime: time.Unix(int64(secs), 0)}, nil
}

// FileRecord is one file in a snapshot.
//
// Loaded is set only for records read from a manifest. Calculated is set only
// when the file's bytes were hashed during the current run.
type FileRecord[D digest.Digest[D]] struct {
	Path       string
	Loaded     *D
	Calculated *D
	Metadata   FileMetadata
}

// RecordKey identifies a record for set and map membership. It is built from
// the loaded digest when present and from the path otherwise. It must never
// be used to decide whether two files have equal content.
type RecordKey[D digest.Digest[D]] struct {
	Hash    D
	HasHash bool
	Path    string
}

// Key returns the record's identity key.
func (r FileRecord[D]) Key() RecordKey[D] {
	if r.Loaded != nil {
		return RecordKey[D]{Hash: *r.Loaded, HasHash: true}
	}
	return RecordKey[D]{Path: r.Path}
}

// Hash returns the digest to persist for the record: the calculated digest
// when present, otherwise the loaded one.
func (r FileRecord[D]) Hash() (D, bool) {
	if r.Calculated != nil {
		return *r.Calculated, true
	}
	if r.Loaded != nil {
		return *r.Loaded, true
	}
	var zero D
	return zero, false
}

// SetCalculated stores a copy of d as the calculated digest.
func (r *FileRecord[D]) SetCalculated(d D) {
	r.Calculated = &d
}

// Snapshot is a set of file records sharing a base directory.
type Snapshot[D digest.Digest[D]] struct {
	BasePath string
	Files    []FileRecord[D]
}

// Len returns the number of records.
func (s *Snapshot[D]) Len() int {
	return len(s.Files)
}

// TotalSize returns the sum of all record sizes.
func (s *Snapshot[D]) TotalSize() uint64 {
	var total uint64
	for i := range s.Files {
		total += s.Files[i].Metadata.Size
	}
	return total
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size such as "1MiB", "512K" or "4096"
// and returns the size in bytes. Units are binary; decimal values are
// truncated to the nearest byte.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	unit := strings.ToUpper(matches[2])
	unit = strings.TrimSuffix(unit, "IB")
	unit = strings.TrimSuffix(unit, "B")

	var multiplier int64
	switch unit {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, unit)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable IEC string.
func FormatSize(bytes uint64) string {
	return humanize.IBytes(bytes)
}
