// Package contentstore stores ciphertext under content-derived
// addresses. Payloads are buzhash-chunked, each chunk is
// lzma-compressed and stored under its own digest, and a manifest
// under the address records the chunk order. Identical ciphertext
// therefore shares chunk storage, and any payload mutation changes
// the address.
//
// The store is write-once per address: there is no update or delete.
// The addressing strategy is pluggable (see Addresser); the default
// derives a CIDv1 from the full ciphertext, the legacy strategy keeps
// the original random scheme for compatibility with recorded data.
package contentstore

import "context"

// Address identifies stored ciphertext. With the default addresser it
// is a CIDv1 string derived from the content.
type Address string

// Store is the content-addressed byte store contract. Implementations
// may be remote; callers wrap Get/Put in bounded retry.
type Store interface {
	// Put stores payload and returns its address. Storing the same
	// payload again returns the same address without rewriting.
	Put(ctx context.Context, payload []byte) (Address, error)

	// Get returns the payload stored under addr, or a
	// faults.NotFoundError for an unknown address.
	Get(ctx context.Context, addr Address) ([]byte, error)
}
