package crypt

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Digest is a fixed-size SHA-256 content hash. It is the tamper
// evidence value anchored in the ledger and recomputed at verify time.
type Digest [sha256.Size]byte

// HashBytes computes the SHA-256 digest of data.
func HashBytes(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// HashString computes the SHA-256 digest of s.
func HashString(s string) Digest {
	return HashBytes([]byte(s))
}

// ParseDigest parses a 64-character hex string into a Digest.
func ParseDigest(s string) (Digest, error) {
	if len(s) != sha256.Size*2 {
		return Digest{}, fmt.Errorf(
			"invalid hex length: expected %d, got %d",
			sha256.Size*2, len(s),
		)
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("decode hex: %w", err)
	}

	var d Digest
	copy(d[:], decoded)
	return d, nil
}

// Equal compares two digests in constant time.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// IsZero reports whether the digest is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Bytes returns a byte slice copy of the digest.
func (d Digest) Bytes() []byte {
	b := make([]byte, len(d))
	copy(b, d[:])
	return b
}

// String returns the hexadecimal representation of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Hex is an alias for String.
func (d Digest) Hex() string {
	return d.String()
}
