// Package digest provides the content-hash capability used throughout sfisum.
//
// Every supported algorithm has a fixed-size, comparable digest type (MD5,
// SHA256, BLAKE2b256, XXH128) and a matching Algorithm value. Downstream
// packages are generic over the Digest constraint, so the algorithm is chosen
// once at the edge of the program and never dispatched dynamically again:
//
//	d, err := digest.MD5Algorithm.FromFile("/data/photo.jpg")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(d) // 32 lowercase hex characters
package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// BufferSize is the chunk size used when streaming file content into a hash.
const BufferSize = 64 * 1024

// ErrUnknownType is returned when a hash type name or suffix is not recognized.
var ErrUnknownType = errors.New("unknown hash type")

// Type identifies a hash algorithm.
type Type int

// Supported hash algorithms.
const (
	TypeMD5 Type = iota + 1
	TypeSHA256
	TypeBLAKE2b256
	TypeXXH128
)

var typeInfo = map[Type]struct {
	name   string
	suffix string
	size   int
}{
	TypeMD5:        {"MD5", "md5", 16},
	TypeSHA256:     {"SHA256", "sha256", 32},
	TypeBLAKE2b256: {"BLAKE2B-256", "b2", 32},
	TypeXXH128:     {"XXH3-128", "xxh128", 16},
}

// Types returns all supported hash types in a stable order.
func Types() []Type {
	return []Type{TypeMD5, TypeSHA256, TypeBLAKE2b256, TypeXXH128}
}

// Name returns the token written to the manifest "Hash:" header.
func (t Type) Name() string {
	if info, ok := typeInfo[t]; ok {
		return info.name
	}
	return "unknown"
}

// Suffix returns the manifest filename extension for the type.
func (t Type) Suffix() string {
	return typeInfo[t].suffix
}

// Size returns the raw digest length in bytes.
func (t Type) Size() int {
	return typeInfo[t].size
}

// String returns the header name of the type.
func (t Type) String() string {
	return t.Name()
}

// ParseType resolves a header token, suffix or common alias to a Type.
// Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Types() {
		info := typeInfo[t]
		if key == strings.ToLower(info.name) || key == info.suffix {
			return t, nil
		}
	}
	switch key {
	case "sha-256":
		return TypeSHA256, nil
	case "blake2b", "blake2b256":
		return TypeBLAKE2b256, nil
	case "xxh3", "xxh3-128", "xxhash":
		return TypeXXH128, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// TypeFromSuffix returns the type whose filename suffix is exactly suffix.
// A leading dot is ignored.
func TypeFromSuffix(suffix string) (Type, bool) {
	suffix = strings.TrimPrefix(suffix, ".")
	for _, t := range Types() {
		if typeInfo[t].suffix == suffix {
			return t, true
		}
	}
	return 0, false
}

// Digest is the constraint satisfied by every concrete digest type.
// Values are fixed-size arrays, so == compares content.
type Digest[D any] interface {
	comparable
	fmt.Stringer

	// Bytes returns a copy of the raw digest.
	Bytes() []byte

	// Compare orders digests lexicographically over their raw bytes.
	Compare(other D) int
}

// Algorithm computes and decodes digests of type D.
type Algorithm[D Digest[D]] struct {
	typ     Type
	newHash func() hash.Hash
	sum     func(hash.Hash) []byte
	convert func([]byte) D
}

// Type returns the algorithm's type tag.
func (a Algorithm[D]) Type() Type {
	return a.typ
}

// Size returns the raw digest length in bytes.
func (a Algorithm[D]) Size() int {
	return a.typ.Size()
}

// FromBytes builds a digest from raw bytes. It fails if the length is wrong.
func (a Algorithm[D]) FromBytes(b []byte) (D, bool) {
	var zero D
	if len(b) != a.Size() {
		return zero, false
	}
	return a.convert(b), true
}

// FromString decodes a canonical hex string. Upper and lower case are accepted.
func (a Algorithm[D]) FromString(s string) (D, bool) {
	var zero D
	if len(s) != a.Size()*2 {
		return zero, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return zero, false
	}
	return a.FromBytes(raw)
}

// Sum hashes an in-memory buffer.
func (a Algorithm[D]) Sum(data []byte) D {
	h := a.newHash()
	_, _ = h.Write(data)
	return a.convert(a.sum(h))
}

// FromReader streams r into the hash using BufferSize chunks.
func (a Algorithm[D]) FromReader(r io.Reader) (D, error) {
	var zero D
	h := a.newHash()
	buf := make([]byte, BufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return zero, err
		}
	}
	return a.convert(a.sum(h)), nil
}

// FromFile hashes the full content of the file at path.
func (a Algorithm[D]) FromFile(path string) (D, error) {
	var zero D
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	adviseSequential(f)

	d, err := a.FromReader(f)
	if err != nil {
		return zero, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return d, nil
}
