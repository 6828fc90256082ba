// Package records holds the registered Record documents. A record is
// write-once: after upload only its integrity status may change, and
// only the verification engine calls SetStatus.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/medledger/medledger/internal/kvstore"
	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
)

const recordPrefix = "record:"

// Repo stores records in memory with optional Badger persistence.
type Repo struct {
	mu      sync.RWMutex
	records map[string]model.Record
	order   []string
	kv      *kvstore.Store // nil disables persistence
}

// NewRepo builds a Repo and, when persistence is configured, restores
// previously stored records.
func NewRepo(kv *kvstore.Store) (*Repo, error) {
	r := &Repo{
		records: make(map[string]model.Record),
		kv:      kv,
	}

	if r.kv != nil {
		err := r.kv.ScanPrefix([]byte(recordPrefix), func(_, value []byte) error {
			var rec model.Record
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			r.records[rec.ID] = rec
			r.order = append(r.order, rec.ID)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("restoring records: %w", err)
		}
	}

	return r, nil
}

// Save stores a new record. Saving an existing id fails; records are
// immutable after upload.
func (r *Repo) Save(ctx context.Context, rec model.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; exists {
		return &faults.ValidationError{Field: "id", Reason: "record already exists"}
	}

	if err := r.persist(rec); err != nil {
		return err
	}
	r.records[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return nil
}

// Get returns a record by id.
func (r *Repo) Get(ctx context.Context, id string) (model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return model.Record{}, &faults.NotFoundError{Kind: "record", ID: id}
	}
	return rec, nil
}

// SetStatus updates the integrity status of a record. This is the
// only mutation allowed after upload.
func (r *Repo) SetStatus(ctx context.Context, id string, status model.RecordStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return &faults.NotFoundError{Kind: "record", ID: id}
	}
	if rec.Status == status {
		return nil
	}

	rec.Status = status
	if err := r.persist(rec); err != nil {
		return err
	}
	r.records[id] = rec
	return nil
}

// ListBySubject returns the subject's records in upload order.
func (r *Repo) ListBySubject(ctx context.Context, subjectID string) []model.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Record
	for _, id := range r.order {
		if rec := r.records[id]; rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Repo) persist(rec model.Record) error {
	if r.kv == nil {
		return nil
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.kv.Write([]byte(recordPrefix+rec.ID), encoded)
}
