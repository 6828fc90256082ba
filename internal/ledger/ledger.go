// Package ledger anchors a record's storage address and content hash
// as an immutable, queryable entry. The contract is anchor-once: a
// repeated anchor with identical content is a no-op, a repeated anchor
// with different content fails, and nothing is ever overwritten.
//
// The implementations here simulate a chain; real chain adapters plug
// in behind the Ledger interface. Chain refs are derived
// deterministically from the anchored content so runs are
// reproducible.
package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/medledger/medledger/internal/crypt"
	"github.com/medledger/medledger/pkg/model"
)

// Ledger is the anchor registry contract. Implementations may be
// remote; callers wrap Anchor/Get in bounded retry.
type Ledger interface {
	// Anchor binds (address, contentHash) to recordID. Calling it
	// again with the same payload returns the existing entry; with a
	// different payload it fails with faults.AlreadyAnchoredError.
	Anchor(ctx context.Context, recordID, address, contentHash string) (model.AnchorEntry, error)

	// Get returns the anchor for recordID, or faults.NotFoundError.
	Get(ctx context.Context, recordID string) (model.AnchorEntry, error)
}

// chainRefFor derives the simulated transaction and block refs from
// the anchored content.
func chainRefFor(recordID, address, contentHash string) model.ChainRef {
	sum := crypt.HashString(recordID + "|" + address + "|" + contentHash)
	return model.ChainRef{
		TxRef:    "0x" + sum.Hex()[:32],
		BlockRef: fmt.Sprintf("%d", binary.BigEndian.Uint32(sum.Bytes()[:4])%10_000_000),
	}
}

func newEntry(recordID, address, contentHash string, now time.Time) model.AnchorEntry {
	return model.AnchorEntry{
		RecordID:    recordID,
		Address:     address,
		ContentHash: contentHash,
		AnchoredAt:  now,
		ChainRef:    chainRefFor(recordID, address, contentHash),
	}
}

func sameAnchor(existing model.AnchorEntry, address, contentHash string) bool {
	return existing.Address == address && existing.ContentHash == contentHash
}
