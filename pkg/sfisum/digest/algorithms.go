package digest

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// MD5 is a 128-bit MD5 digest.
type MD5 [16]byte

func (d MD5) Bytes() []byte         { return append([]byte(nil), d[:]...) }
func (d MD5) String() string        { return hex.EncodeToString(d[:]) }
func (d MD5) Compare(other MD5) int { return bytes.Compare(d[:], other[:]) }

// SHA256 is a 256-bit SHA-2 digest.
type SHA256 [32]byte

func (d SHA256) Bytes() []byte            { return append([]byte(nil), d[:]...) }
func (d SHA256) String() string           { return hex.EncodeToString(d[:]) }
func (d SHA256) Compare(other SHA256) int { return bytes.Compare(d[:], other[:]) }

// BLAKE2b256 is a 256-bit BLAKE2b digest.
type BLAKE2b256 [32]byte

func (d BLAKE2b256) Bytes() []byte                { return append([]byte(nil), d[:]...) }
func (d BLAKE2b256) String() string               { return hex.EncodeToString(d[:]) }
func (d BLAKE2b256) Compare(other BLAKE2b256) int { return bytes.Compare(d[:], other[:]) }

// XXH128 is a 128-bit XXH3 digest. It is not cryptographic and only
// detects accidental corruption.
type XXH128 [16]byte

func (d XXH128) Bytes() []byte            { return append([]byte(nil), d[:]...) }
func (d XXH128) String() string           { return hex.EncodeToString(d[:]) }
func (d XXH128) Compare(other XXH128) int { return bytes.Compare(d[:], other[:]) }

func plainSum(h hash.Hash) []byte { return h.Sum(nil) }

// MD5Algorithm computes MD5 digests.
var MD5Algorithm = Algorithm[MD5]{
	typ:     TypeMD5,
	newHash: md5.New,
	sum:     plainSum,
	convert: func(b []byte) MD5 { return MD5(b) },
}

// SHA256Algorithm computes SHA-256 digests.
var SHA256Algorithm = Algorithm[SHA256]{
	typ:     TypeSHA256,
	newHash: sha256.New,
	sum:     plainSum,
	convert: func(b []byte) SHA256 { return SHA256(b) },
}

// BLAKE2b256Algorithm computes unkeyed BLAKE2b-256 digests.
var BLAKE2b256Algorithm = Algorithm[BLAKE2b256]{
	typ: TypeBLAKE2b256,
	newHash: func() hash.Hash {
		// New256 only fails for keys longer than 64 bytes.
		h, _ := blake2b.New256(nil)
		return h
	},
	sum:     plainSum,
	convert: func(b []byte) BLAKE2b256 { return BLAKE2b256(b) },
}

// XXH128Algorithm computes XXH3 128-bit digests.
var XXH128Algorithm = Algorithm[XXH128]{
	typ:     TypeXXH128,
	newHash: func() hash.Hash { return xxh3.New() },
	sum: func(h hash.Hash) []byte {
		b := h.(*xxh3.Hasher).Sum128().Bytes()
		return b[:]
	},
	convert: func(b []byte) XXH128 { return XXH128(b) },
}
