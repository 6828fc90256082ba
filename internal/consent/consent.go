// Package consent manages the lifecycle of access-consent requests
// between a subject and a requester.
//
// Stored status only ever transitions pending->approved or
// pending->denied, and each transition is serialized per manager, so
// an Approve/Deny race cannot both succeed. Expiry is lazy: it is
// derived at read time from resolvedAt + expiryHours and never stored,
// keeping "stored approved" and "currently granted" distinct.
package consent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medledger/medledger/internal/kvstore"
	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
)

const requestPrefix = "consent:"

// ManagerConfig configures a Manager. All fields are optional.
type ManagerConfig struct {
	Clock  Clock
	KV     *kvstore.Store // nil disables persistence
	Logger *logrus.Logger
}

// Manager holds consent requests and guards their transitions.
type Manager struct {
	mu       sync.RWMutex
	requests map[string]model.ConsentRequest
	order    []string
	clock    Clock
	kv       *kvstore.Store
	log      *logrus.Logger
}

// NewManager builds a Manager and, when persistence is configured,
// restores previously stored requests.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	m := &Manager{
		requests: make(map[string]model.ConsentRequest),
		clock:    cfg.Clock,
		kv:       cfg.KV,
		log:      cfg.Logger,
	}

	if m.kv != nil {
		err := m.kv.ScanPrefix([]byte(requestPrefix), func(_, value []byte) error {
			var req model.ConsentRequest
			if err := json.Unmarshal(value, &req); err != nil {
				return err
			}
			m.requests[req.ID] = req
			m.order = append(m.order, req.ID)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("restoring consent requests: %w", err)
		}
	}

	return m, nil
}

// CreateRequest files a new pending request.
func (m *Manager) CreateRequest(
	ctx context.Context,
	subjectID, requesterID, requesterType, recordID string,
	expiryHours int,
) (model.ConsentRequest, error) {
	switch {
	case subjectID == "":
		return model.ConsentRequest{}, &faults.ValidationError{Field: "subjectId", Reason: "must not be empty"}
	case requesterID == "":
		return model.ConsentRequest{}, &faults.ValidationError{Field: "requesterId", Reason: "must not be empty"}
	case recordID == "":
		return model.ConsentRequest{}, &faults.ValidationError{Field: "recordId", Reason: "must not be empty"}
	case expiryHours <= 0:
		return model.ConsentRequest{}, &faults.ValidationError{Field: "expiryHours", Reason: "must be positive"}
	}

	req := model.ConsentRequest{
		ID:            uuid.NewString(),
		SubjectID:     subjectID,
		RequesterID:   requesterID,
		RequesterType: requesterType,
		RecordID:      recordID,
		Status:        model.ConsentPending,
		RequestedAt:   m.clock.Now().UTC(),
		ExpiryHours:   expiryHours,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persist(req); err != nil {
		return model.ConsentRequest{}, err
	}
	m.requests[req.ID] = req
	m.order = append(m.order, req.ID)

	m.log.WithFields(logrus.Fields{
		"requestId": req.ID,
		"subjectId": subjectID,
		"recordId":  recordID,
	}).Info("consent request created")

	return req, nil
}

// Approve transitions a pending request to approved.
func (m *Manager) Approve(ctx context.Context, requestID string) (model.ConsentRequest, error) {
	return m.resolve(requestID, model.ConsentApproved)
}

// Deny transitions a pending request to denied.
func (m *Manager) Deny(ctx context.Context, requestID string) (model.ConsentRequest, error) {
	return m.resolve(requestID, model.ConsentDenied)
}

// resolve performs the guarded transition. The manager lock makes the
// check-then-set atomic; a second resolution always fails.
func (m *Manager) resolve(requestID string, to model.ConsentStatus) (model.ConsentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestID]
	if !ok {
		return model.ConsentRequest{}, &faults.NotFoundError{Kind: "consent request", ID: requestID}
	}

	if req.Status != model.ConsentPending {
		return model.ConsentRequest{}, &faults.StateError{
			RequestID: requestID,
			From:      string(req.Status),
			To:        string(to),
		}
	}

	now := m.clock.Now().UTC()
	req.Status = to
	req.ResolvedAt = &now

	if err := m.persist(req); err != nil {
		return model.ConsentRequest{}, err
	}
	m.requests[requestID] = req

	m.log.WithFields(logrus.Fields{
		"requestId": requestID,
		"status":    string(to),
	}).Info("consent request resolved")

	return req, nil
}

// GetRequest returns a request by id.
func (m *Manager) GetRequest(ctx context.Context, requestID string) (model.ConsentRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[requestID]
	if !ok {
		return model.ConsentRequest{}, &faults.NotFoundError{Kind: "consent request", ID: requestID}
	}
	return req, nil
}

// ListForSubject returns the subject's requests in creation order.
func (m *Manager) ListForSubject(ctx context.Context, subjectID string) []model.ConsentRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ConsentRequest
	for _, id := range m.order {
		if req := m.requests[id]; req.SubjectID == subjectID {
			out = append(out, req)
		}
	}
	return out
}

// IsGranted reports whether some request for (subject, record) is
// approved and still inside its expiry window. This is an advisory
// read, not an enforcement gate.
func (m *Manager) IsGranted(subjectID, recordID string) bool {
	now := m.clock.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, req := range m.requests {
		if req.SubjectID == subjectID && req.RecordID == recordID && req.GrantsAccess(now) {
			return true
		}
	}
	return false
}

func (m *Manager) persist(req model.ConsentRequest) error {
	if m.kv == nil {
		return nil
	}
	encoded, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return m.kv.Write([]byte(requestPrefix+req.ID), encoded)
}
