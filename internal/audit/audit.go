// Package audit keeps the append-only access log. Every upload,
// verification and consent resolution lands here exactly once;
// entries are never mutated or deleted, and retrieval is
// most-recent-first.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medledger/medledger/internal/kvstore"
	"github.com/medledger/medledger/pkg/model"
)

const entryPrefix = "audit:"

// Filter selects entries by the fields that are set; empty fields
// match everything. Set fields are ANDed.
type Filter struct {
	SubjectID  string
	RecordID   string
	AccessorID string
	Action     model.AuditAction
}

func (f Filter) matches(e model.AuditLogEntry) bool {
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.RecordID != "" && e.RecordID != f.RecordID {
		return false
	}
	if f.AccessorID != "" && e.AccessorID != f.AccessorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

// TrailConfig configures a Trail. All fields are optional.
type TrailConfig struct {
	KV     *kvstore.Store // nil disables persistence
	Logger *logrus.Logger
}

// Trail is the append-only audit log. Appends are safe under
// concurrent writers; the lock assigns the sequence number and the
// head position together, so stored order matches append order.
type Trail struct {
	mu      sync.RWMutex
	entries []model.AuditLogEntry // most recent first
	seq     uint64
	kv      *kvstore.Store
	log     *logrus.Logger
}

// NewTrail builds a Trail and, when persistence is configured,
// restores previously stored entries.
func NewTrail(cfg TrailConfig) (*Trail, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	t := &Trail{kv: cfg.KV, log: cfg.Logger}

	if t.kv != nil {
		// Keys are zero-padded sequence numbers, so the scan yields
		// append order; prepend to rebuild most-recent-first.
		err := t.kv.ScanPrefix([]byte(entryPrefix), func(_, value []byte) error {
			var entry model.AuditLogEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return err
			}
			t.entries = append([]model.AuditLogEntry{entry}, t.entries...)
			t.seq++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("restoring audit trail: %w", err)
		}
	}

	return t, nil
}

// Append assigns the entry id and timestamp and inserts the entry at
// the head of the sequence.
func (t *Trail) Append(ctx context.Context, entry model.AuditLogEntry) (model.AuditLogEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.ID = fmt.Sprintf("%d-%06d", entry.Timestamp.UnixNano(), t.seq)

	if t.kv != nil {
		encoded, err := json.Marshal(entry)
		if err != nil {
			t.seq--
			return model.AuditLogEntry{}, err
		}
		key := []byte(fmt.Sprintf("%s%020d", entryPrefix, t.seq))
		if err := t.kv.Write(key, encoded); err != nil {
			t.seq--
			return model.AuditLogEntry{}, err
		}
	}

	t.entries = append([]model.AuditLogEntry{entry}, t.entries...)

	t.log.WithFields(logrus.Fields{
		"action":   string(entry.Action),
		"recordId": entry.RecordID,
		"accessor": entry.AccessorID,
		"verified": entry.Verified,
	}).Info("audit entry appended")

	return entry, nil
}

// Query returns matching entries, most recent first.
func (t *Trail) Query(ctx context.Context, f Filter) []model.AuditLogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []model.AuditLogEntry
	for _, e := range t.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries appended so far.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
