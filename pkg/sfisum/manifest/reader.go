package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

// lineReader wraps bufio.Scanner with line numbering and CRLF tolerance.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineReader{sc: sc}
}

func (lr *lineReader) next() (string, bool) {
	if !lr.sc.Scan() {
		return "", false
	}
	lr.line++
	return strings.TrimSuffix(lr.sc.Text(), "\r"), true
}

func (lr *lineReader) err() error {
	if err := lr.sc.Err(); err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	return nil
}

// readHeader advances to the "Hash:" line and returns its token.
func (lr *lineReader) readHeader() (string, error) {
	for {
		line, ok := lr.next()
		if !ok {
			if err := lr.err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w (scanned %d lines)", ErrMissingHashHeader, lr.line)
		}
		body, isComment := commentBody(line)
		if !isComment {
			continue
		}
		if token, found := strings.CutPrefix(body, hashPrefix); found {
			return strings.TrimSpace(token), nil
		}
	}
}

// Read parses a manifest and returns its records as a snapshot rooted at
// basePath. Every record path is joined onto basePath.
func Read[D digest.Digest[D]](r io.Reader, algo digest.Algorithm[D], basePath string) (*types.Snapshot[D], error) {
	lr := newLineReader(r)

	token, err := lr.readHeader()
	if err != nil {
		return nil, err
	}
	declared, err := digest.ParseType(token)
	if err != nil || declared != algo.Type() {
		return nil, &ParseError{
			Line: lr.line,
			Err:  fmt.Errorf("%w: %q (expected %s)", ErrUnsupportedHashType, token, algo.Type().Name()),
		}
	}

	snap := &types.Snapshot[D]{BasePath: basePath}

	// Lines other than metadata comments are skipped, but a metadata comment
	// must be followed directly by its data line.
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		body, isComment := commentBody(line)
		if !isComment || !strings.HasPrefix(body, sizePrefix) {
			continue
		}

		meta, err := types.ParseFileMetadata(body)
		if err != nil {
			return nil, &ParseError{Line: lr.line, Err: err}
		}

		metaLine := lr.line
		data, ok := lr.next()
		if !ok {
			if err := lr.err(); err != nil {
				return nil, err
			}
			return nil, &ParseError{
				Line: metaLine,
				Err:  fmt.Errorf("%w: metadata without a file entry", ErrMalformedEntry),
			}
		}
		if _, isComment := commentBody(data); isComment || strings.TrimSpace(data) == "" {
			return nil, &ParseError{
				Line: lr.line,
				Err:  fmt.Errorf("%w: expected a file entry after metadata on line %d", ErrMalformedEntry, metaLine),
			}
		}

		record, err := parseEntry(data, algo, basePath, meta)
		if err != nil {
			return nil, &ParseError{Line: lr.line, Err: err}
		}
		snap.Files = append(snap.Files, record)
	}
	if err := lr.err(); err != nil {
		return nil, err
	}

	if len(snap.Files) == 0 {
		return nil, ErrNoEntries
	}
	return snap, nil
}

func parseEntry[D digest.Digest[D]](line string, algo digest.Algorithm[D], basePath string, meta types.FileMetadata) (types.FileRecord[D], error) {
	hashStr, path, ok := strings.Cut(line, " ")
	if !ok {
		return types.FileRecord[D]{}, fmt.Errorf("%w: no separator between hash and path", ErrMalformedEntry)
	}
	d, ok := algo.FromString(hashStr)
	if !ok {
		return types.FileRecord[D]{}, fmt.Errorf("%w: invalid %s hash %q", ErrMalformedEntry, algo.Type().Name(), hashStr)
	}

	if rest, marked := strings.CutPrefix(path, pathMarker); marked {
		path = localizeSeparators(rest)
	}
	if path == "" {
		return types.FileRecord[D]{}, fmt.Errorf("%w: empty path", ErrMalformedEntry)
	}
	path = filepath.Join(basePath, path)

	return types.FileRecord[D]{Path: path, Loaded: &d, Metadata: meta}, nil
}

// localizeSeparators rewrites separators from manifests produced on a
// platform with the other convention. Only '*' marked paths are rewritten;
// unmarked paths are used as written.
func localizeSeparators(path string) string {
	if filepath.Separator == '/' {
		return strings.ReplaceAll(path, `\`, "/")
	}
	return strings.ReplaceAll(path, "/", string(filepath.Separator))
}

// ReadFile opens path and parses it with Read.
func ReadFile[D digest.Digest[D]](path string, algo digest.Algorithm[D], basePath string) (*types.Snapshot[D], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	snap, err := Read(f, algo, basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return snap, nil
}

// PeekHashType returns the declared "Hash:" token without parsing entries.
func PeekHashType(r io.Reader) (string, error) {
	return newLineReader(r).readHeader()
}

// DetectHashType infers the hash type of the manifest at path. The filename
// suffix is tried first; the "Hash:" header is the fallback.
func DetectHashType(path string) (digest.Type, error) {
	if t, ok := digest.TypeFromSuffix(filepath.Ext(path)); ok {
		return t, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	token, err := PeekHashType(f)
	if err != nil {
		return 0, err
	}
	t, err := digest.ParseType(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedHashType, token)
	}
	return t, nil
}
