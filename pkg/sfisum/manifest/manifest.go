// Package manifest reads and writes sfisum digest manifests.
//
// A manifest is a line-oriented text file. Comment lines start with ';'.
// After a title line and a "Hash:" signature line, every file takes two
// lines: a metadata comment followed by "<hex-digest> *<relative-path>".
//
//	; Directory digest generated at 2024-05-01T10:00:00Z containing 2 entries
//	; Hash: MD5
//	; Size: 5, Last modified: 1714557600
//	5d41402abc4b2a76b9719d911017c592 *a.txt
//	; Size: 5, Last modified: 1714557600
//	7d793037a0760186574b0282f2f435e7 *b.txt
package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// CommentChar starts every comment line.
const CommentChar = ';'

const (
	commentPrefix = string(CommentChar) + " "
	hashPrefix    = "Hash: "
	sizePrefix    = "Size: "
	pathMarker    = "*"

	// maxLineSize bounds a single manifest line.
	maxLineSize = 1024 * 1024
)

var (
	// ErrMissingHashHeader is returned when no "Hash:" line precedes end of file.
	ErrMissingHashHeader = errors.New("missing hash header")

	// ErrUnsupportedHashType is returned when the declared hash type does not
	// match the algorithm in use, or is not known at all.
	ErrUnsupportedHashType = errors.New("unsupported hash type")

	// ErrMalformedEntry is returned for a data line that cannot be parsed.
	ErrMalformedEntry = errors.New("malformed entry")

	// ErrNoEntries is returned when a manifest contains no usable entries.
	ErrNoEntries = errors.New("no valid file entries found")

	// ErrPathOutsideBase is returned when writing a record whose path is not
	// under the snapshot's base directory.
	ErrPathOutsideBase = errors.New("path is not under base directory")
)

// ParseError locates a parse failure in the manifest.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// commentBody returns the text after the comment character and reports
// whether line is a comment at all.
func commentBody(line string) (string, bool) {
	if len(line) == 0 || line[0] != CommentChar {
		return "", false
	}
	return strings.TrimPrefix(line[1:], " "), true
}
