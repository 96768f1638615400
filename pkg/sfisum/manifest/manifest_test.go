package manifest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sfisum/pkg/sfisum/digest"
	"github.com/jamesainslie/sfisum/pkg/sfisum/types"
)

var generatedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func record(base, rel, content string, mod int64) types.FileRecord[digest.MD5] {
	d := digest.MD5Algorithm.Sum([]byte(content))
	return types.FileRecord[digest.MD5]{
		Path:       filepath.Join(base, rel),
		Calculated: &d,
		Metadata:   types.NewFileMetadata(uint64(len(content)), time.Unix(mod, 0)),
	}
}

func TestWriteFormat(t *testing.T) {
	t.Parallel()

	base := filepath.Join(string(filepath.Separator), "data")
	snap := &types.Snapshot[digest.MD5]{
		BasePath: base,
		Files: []types.FileRecord[digest.MD5]{
			record(base, "a.txt", "hello", 1714557600),
			record(base, "b.txt", "world", 1714557601),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap, digest.MD5Algorithm, generatedAt))

	want := strings.Join([]string{
		"; Directory digest generated at 2024-05-01T10:00:00Z containing 2 entries",
		"; Hash: MD5",
		"; Size: 5, Last modified: 1714557600",
		"5d41402abc4b2a76b9719d911017c592 *a.txt",
		"; Size: 5, Last modified: 1714557601",
		"7d793037a0760186574b0282f2f435e7 *b.txt",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	snap := &types.Snapshot[digest.MD5]{
		BasePath: base,
		Files: []types.FileRecord[digest.MD5]{
			record(base, "a.txt", "hello", 1714557600),
			record(base, filepath.Join("nested", "deep", "b.txt"), "world", 1714557601),
			record(base, "with space.txt", "spaces", 1),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap, digest.MD5Algorithm, generatedAt))

	got, err := Read(&buf, digest.MD5Algorithm, base)
	require.NoError(t, err)
	require.Len(t, got.Files, len(snap.Files))

	for i, want := range snap.Files {
		rec := got.Files[i]
		assert.Equal(t, want.Path, rec.Path)
		require.NotNil(t, rec.Loaded)
		assert.Nil(t, rec.Calculated)
		assert.Equal(t, *want.Calculated, *rec.Loaded)
		assert.True(t, want.Metadata.Equal(rec.Metadata))
	}
}

func TestReadToleratesVariations(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"random preamble",
		"; Directory digest generated at whenever containing 3 entries",
		"; Hash: md5",
		"",
		"; Size: 5, Last modified: 10",
		"5D41402ABC4B2A76B9719D911017C592 a.txt",
		"; unrelated comment",
		"7d793037a0760186574b0282f2f435e7 *orphan-data-line.txt",
		"; Size: 5, Last modified: 11",
		`7d793037a0760186574b0282f2f435e7 *dir\b.txt`,
		"; Size: 1, Last modified: 12\r",
		"0cc175b9c0f1b6a831c399e269772661 *crlf.txt\r",
		"; Size: 3, Last modified: 13",
		`900150983cd24fb0d6963f7d28e17f72 plain\name.txt`,
	}, "\n")

	got, err := Read(strings.NewReader(input), digest.MD5Algorithm, "/base")
	require.NoError(t, err)
	require.Len(t, got.Files, 4)

	assert.Equal(t, filepath.Join("/base", "a.txt"), got.Files[0].Path)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", got.Files[0].Loaded.String())

	if filepath.Separator == '/' {
		assert.Equal(t, "/base/dir/b.txt", got.Files[1].Path)
	}
	assert.Equal(t, filepath.Join("/base", "crlf.txt"), got.Files[2].Path)
	assert.Equal(t, uint64(1), got.Files[2].Metadata.Size)

	// Unmarked paths keep their separators.
	assert.Equal(t, filepath.Join("/base", `plain\name.txt`), got.Files[3].Path)
}

func TestReadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		wantErr  error
		wantLine int
	}{
		{
			name:    "missing header",
			input:   "; just a comment\nabc *x\n",
			wantErr: ErrMissingHashHeader,
		},
		{
			name:     "wrong hash type",
			input:    "; title\n; Hash: SHA256\n",
			wantErr:  ErrUnsupportedHashType,
			wantLine: 2,
		},
		{
			name:     "unknown hash type",
			input:    "; Hash: CRC32\n",
			wantErr:  ErrUnsupportedHashType,
			wantLine: 1,
		},
		{
			name:     "malformed metadata",
			input:    "; Hash: MD5\n; Size: ten, Last modified: 1\n",
			wantErr:  types.ErrMalformedMetadata,
			wantLine: 2,
		},
		{
			name:     "data line without separator",
			input:    "; Hash: MD5\n; Size: 1, Last modified: 1\n5d41402abc4b2a76b9719d911017c592\n",
			wantErr:  ErrMalformedEntry,
			wantLine: 3,
		},
		{
			name:     "bad hash token",
			input:    "; Hash: MD5\n; Size: 1, Last modified: 1\nnothex *a.txt\n",
			wantErr:  ErrMalformedEntry,
			wantLine: 3,
		},
		{
			name:     "metadata followed by blank line",
			input:    "; Hash: MD5\n; Size: 5, Last modified: 11\n\n5d41402abc4b2a76b9719d911017c592 *b.txt\n",
			wantErr:  ErrMalformedEntry,
			wantLine: 3,
		},
		{
			name:     "metadata followed by comment",
			input:    "; Hash: MD5\n; Size: 5, Last modified: 11\n; Size: 5, Last modified: 12\n5d41402abc4b2a76b9719d911017c592 *b.txt\n",
			wantErr:  ErrMalformedEntry,
			wantLine: 3,
		},
		{
			name:     "metadata at end of file",
			input:    "; Hash: MD5\n; Size: 5, Last modified: 10\n5d41402abc4b2a76b9719d911017c592 *a.txt\n; Size: 5, Last modified: 11\n",
			wantErr:  ErrMalformedEntry,
			wantLine: 4,
		},
		{
			name:    "no entries",
			input:   "; Hash: MD5\n; nothing here\n",
			wantErr: ErrNoEntries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Read(strings.NewReader(tt.input), digest.MD5Algorithm, "/base")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			if tt.wantLine > 0 {
				var pe *ParseError
				require.True(t, errors.As(err, &pe), "expected ParseError, got %T", err)
				assert.Equal(t, tt.wantLine, pe.Line)
			}
		})
	}
}

func TestMissingHeaderReportsLinesScanned(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader("a\nb\nc\n"), digest.MD5Algorithm, "/base")
	require.ErrorIs(t, err, ErrMissingHashHeader)
	assert.Contains(t, err.Error(), "3 lines")
}

func TestWriteErrors(t *testing.T) {
	t.Parallel()

	t.Run("path outside base", func(t *testing.T) {
		t.Parallel()
		snap := &types.Snapshot[digest.MD5]{
			BasePath: "/data/root",
			Files:    []types.FileRecord[digest.MD5]{record("/data/other", "x.txt", "x", 1)},
		}
		err := Write(&bytes.Buffer{}, snap, digest.MD5Algorithm, generatedAt)
		assert.ErrorIs(t, err, ErrPathOutsideBase)
		assert.False(t, types.IsInternal(err))
	})

	t.Run("record without digest", func(t *testing.T) {
		t.Parallel()
		snap := &types.Snapshot[digest.MD5]{
			BasePath: "/data",
			Files:    []types.FileRecord[digest.MD5]{{Path: "/data/x.txt"}},
		}
		err := Write(&bytes.Buffer{}, snap, digest.MD5Algorithm, generatedAt)
		require.Error(t, err)
		assert.True(t, types.IsInternal(err))
	})
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	out := filepath.Join(t.TempDir(), "sub", "digest.md5")
	snap := &types.Snapshot[digest.MD5]{
		BasePath: base,
		Files:    []types.FileRecord[digest.MD5]{record(base, "a.txt", "hello", 1)},
	}

	require.NoError(t, WriteFile(out, snap, digest.MD5Algorithm, generatedAt))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file left behind")

	got, err := ReadFile(out, digest.MD5Algorithm, base)
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, filepath.Join(base, "a.txt"), got.Files[0].Path)
}

func TestWriteFileFailureLeavesNoFile(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "digest.md5")
	snap := &types.Snapshot[digest.MD5]{
		BasePath: "/data",
		Files:    []types.FileRecord[digest.MD5]{{Path: "/data/x"}},
	}

	require.Error(t, WriteFile(out, snap, digest.MD5Algorithm, generatedAt))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDetectHashType(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := "; title\n; Hash: XXH3-128\n"

	bySuffix := filepath.Join(dir, "2024-05-01_10-00.sha256")
	require.NoError(t, os.WriteFile(bySuffix, []byte(body), 0o644))
	got, err := DetectHashType(bySuffix)
	require.NoError(t, err)
	assert.Equal(t, digest.TypeSHA256, got, "suffix wins over header")

	byHeader := filepath.Join(dir, "digest.txt")
	require.NoError(t, os.WriteFile(byHeader, []byte(body), 0o644))
	got, err = DetectHashType(byHeader)
	require.NoError(t, err)
	assert.Equal(t, digest.TypeXXH128, got)

	unknown := filepath.Join(dir, "digest.bin")
	require.NoError(t, os.WriteFile(unknown, []byte("; Hash: CRC32\n"), 0o644))
	_, err = DetectHashType(unknown)
	assert.ErrorIs(t, err, ErrUnsupportedHashType)

	none := filepath.Join(dir, "empty.bin")
	require.NoError(t, os.WriteFile(none, []byte("nothing\n"), 0o644))
	_, err = DetectHashType(none)
	assert.ErrorIs(t, err, ErrMissingHashHeader)
}

func TestPeekHashType(t *testing.T) {
	t.Parallel()

	token, err := PeekHashType(strings.NewReader("; title\n; Hash: BLAKE2B-256\n; Size: x\n"))
	require.NoError(t, err)
	assert.Equal(t, "BLAKE2B-256", token)
}
