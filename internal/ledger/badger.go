package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/medledger/medledger/internal/kvstore"
	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
)

const anchorPrefix = "ledger:"

// BadgerLedger persists anchors in the shared Badger instance. The
// anchor-once check and the write happen inside one transaction, so
// concurrent anchors for the same record cannot both succeed with
// different content.
type BadgerLedger struct {
	kv *kvstore.Store
}

func NewBadgerLedger(kv *kvstore.Store) *BadgerLedger {
	return &BadgerLedger{kv: kv}
}

func (l *BadgerLedger) Anchor(ctx context.Context, recordID, address, contentHash string) (model.AnchorEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "anchor", Err: err}
	}

	key := []byte(anchorPrefix + recordID)
	entry := newEntry(recordID, address, contentHash, time.Now().UTC())

	err := l.kv.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == nil {
			var existing model.AnchorEntry
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if sameAnchor(existing, address, contentHash) {
				entry = existing
				return nil
			}
			return &faults.AlreadyAnchoredError{RecordID: recordID}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return txn.Set(key, encoded)
	})
	if err != nil {
		if faults.IsAlreadyAnchored(err) {
			return model.AnchorEntry{}, err
		}
		return model.AnchorEntry{}, &faults.LedgerError{Op: "anchor", Err: err}
	}

	return entry, nil
}

func (l *BadgerLedger) Get(ctx context.Context, recordID string) (model.AnchorEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "get", Err: err}
	}

	raw, err := l.kv.Read([]byte(anchorPrefix + recordID))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return model.AnchorEntry{}, &faults.NotFoundError{Kind: "anchor", ID: recordID}
	}
	if err != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "get", Err: err}
	}

	var entry model.AnchorEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return model.AnchorEntry{}, &faults.LedgerError{Op: "get", Err: err}
	}
	return entry, nil
}
