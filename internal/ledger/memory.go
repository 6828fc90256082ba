package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
)

// MemoryLedger is the in-memory Ledger used in tests and the demo
// driver.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]model.AnchorEntry
	fault   error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]model.AnchorEntry)}
}

func (l *MemoryLedger) Anchor(ctx context.Context, recordID, address, contentHash string) (model.AnchorEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "anchor", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fault != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "anchor", Err: l.fault}
	}

	if existing, ok := l.entries[recordID]; ok {
		if sameAnchor(existing, address, contentHash) {
			return existing, nil
		}
		return model.AnchorEntry{}, &faults.AlreadyAnchoredError{RecordID: recordID}
	}

	entry := newEntry(recordID, address, contentHash, time.Now().UTC())
	l.entries[recordID] = entry
	return entry, nil
}

func (l *MemoryLedger) Get(ctx context.Context, recordID string) (model.AnchorEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "get", Err: err}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.fault != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "get", Err: l.fault}
	}

	entry, ok := l.entries[recordID]
	if !ok {
		return model.AnchorEntry{}, &faults.NotFoundError{Kind: "anchor", ID: recordID}
	}
	return entry, nil
}

// SetFault makes every subsequent call fail with err until cleared.
// Test hook for unreachable-ledger behavior.
func (l *MemoryLedger) SetFault(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fault = err
}
