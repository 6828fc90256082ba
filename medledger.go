// Package medledger is a consent-gated integrity and audit vault for
// encrypted records. A custodian registers an encrypted record for a
// subject, its integrity proof is anchored in an immutable ledger, and
// a third party can request and verify the record subject to the
// subject's consent. Every access attempt is permanently logged.
//
// The facade wires the components together; storage and ledger
// backends are pluggable and default to Badger on disk or pure
// in-memory when no data path is configured.
package medledger

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medledger/medledger/internal/audit"
	"github.com/medledger/medledger/internal/consent"
	"github.com/medledger/medledger/internal/contentstore"
	"github.com/medledger/medledger/internal/crypt"
	"github.com/medledger/medledger/internal/kvstore"
	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/records"
	"github.com/medledger/medledger/internal/retry"
	"github.com/medledger/medledger/internal/verify"
	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
	"github.com/medledger/medledger/pkg/session"
)

const gcInterval = 5 * time.Minute

// MedLedger is one vault instance.
type MedLedger struct {
	config   Config
	log      *logrus.Logger
	kv       *kvstore.Store // nil in memory mode
	store    contentstore.Store
	chain    ledger.Ledger
	consents *consent.Manager
	trail    *audit.Trail
	records  *records.Repo
	verifier *verify.Engine
	key      []byte
	stopGC   chan struct{}
}

// New builds a vault from config.
func New(config Config) (*MedLedger, error) {
	log := config.logger()

	key, err := resolveKey(config.EncryptionKey)
	if err != nil {
		return nil, err
	}

	var addresser contentstore.Addresser = contentstore.ContentAddresser{}
	if config.Addressing == "random" {
		addresser = contentstore.RandomAddresser{}
	}

	m := &MedLedger{
		config: config,
		log:    log,
		key:    key,
		stopGC: make(chan struct{}),
	}

	if len(config.Paths) > 0 {
		kv, err := kvstore.NewStore(kvstore.StoreConfig{
			Paths:         config.Paths,
			MinimumFreeGB: config.MinimumFreeGB,
			Logger:        log,
		})
		if err != nil {
			return nil, err
		}
		m.kv = kv
		m.store = contentstore.NewBadgerStore(kv, addresser, log)
		m.chain = ledger.NewBadgerLedger(kv)
		kv.StartGCLoop(gcInterval, m.stopGC)
	} else {
		m.store = contentstore.NewMemoryStore(addresser)
		m.chain = ledger.NewMemoryLedger()
	}

	m.consents, err = consent.NewManager(consent.ManagerConfig{KV: m.kv, Logger: log})
	if err != nil {
		return nil, err
	}
	m.trail, err = audit.NewTrail(audit.TrailConfig{KV: m.kv, Logger: log})
	if err != nil {
		return nil, err
	}
	m.records, err = records.NewRepo(m.kv)
	if err != nil {
		return nil, err
	}

	mode := verify.ModeAdvisory
	if config.ConsentMode == "enforcing" {
		mode = verify.ModeEnforcing
	}
	m.verifier = verify.NewEngine(verify.Config{
		Records:  m.records,
		Ledger:   m.chain,
		Store:    m.store,
		Consents: m.consents,
		Audit:    m.trail,
		Mode:     mode,
		Logger:   log,
	})

	return m, nil
}

// Close stops background work and releases the on-disk store.
func (m *MedLedger) Close() error {
	close(m.stopGC)
	if m.kv != nil {
		return m.kv.Close()
	}
	return nil
}

func resolveKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return crypt.NewKey()
	}
	key, err := hex.DecodeString(encoded)
	if err != nil || len(key) != crypt.KeySize {
		return nil, &faults.ValidationError{
			Field:  "encryptionKey",
			Reason: "must be 64 hex characters",
		}
	}
	return key, nil
}

// fallbackActor resolves a missing actor argument: a context-carried
// identity wins, otherwise the named default is assumed.
func fallbackActor(ctx context.Context, id, typ string) session.Actor {
	if a, ok := session.FromContext(ctx); ok {
		return a
	}
	return session.Actor{ID: id, Type: typ}
}

// UploadParams carries the inputs for UploadRecord. RequesterID is
// optional; when set, a consent request for that requester is filed
// automatically alongside the upload.
type UploadParams struct {
	SubjectID     string
	Type          string
	Title         string
	CustodianID   string
	Content       []byte
	RequesterID   string
	RequesterType string
	ExpiryHours   int
}

func (p *UploadParams) validate() error {
	switch {
	case p.SubjectID == "":
		return &faults.ValidationError{Field: "subjectId", Reason: "must not be empty"}
	case p.CustodianID == "":
		return &faults.ValidationError{Field: "custodianId", Reason: "must not be empty"}
	case p.Title == "":
		return &faults.ValidationError{Field: "title", Reason: "must not be empty"}
	case len(p.Content) == 0:
		return &faults.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	return nil
}

// UploadRecord encrypts, stores and anchors new record content, files
// the optional consent request and appends the UPLOAD audit entry.
// Storage and ledger failures on this path propagate: no record exists
// half-anchored.
func (m *MedLedger) UploadRecord(ctx context.Context, actor session.Actor, p UploadParams) (model.Record, error) {
	if err := p.validate(); err != nil {
		return model.Record{}, err
	}
	if actor.IsZero() {
		actor = fallbackActor(ctx, p.CustodianID, "custodian")
	}

	ciphertext, iv, err := crypt.Encrypt(p.Content, m.key)
	if err != nil {
		return model.Record{}, err
	}

	var addr contentstore.Address
	err = retry.Do(ctx, retry.DefaultPolicy(), func() error {
		var err error
		addr, err = m.store.Put(ctx, ciphertext)
		return err
	})
	if err != nil {
		return model.Record{}, err
	}

	recordID := uuid.NewString()
	digest := crypt.HashBytes(ciphertext)

	err = retry.Do(ctx, retry.DefaultPolicy(), func() error {
		_, err := m.chain.Anchor(ctx, recordID, string(addr), digest.Hex())
		if faults.IsAlreadyAnchored(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return model.Record{}, err
	}

	rec := model.Record{
		ID:           recordID,
		SubjectID:    p.SubjectID,
		Type:         p.Type,
		Title:        p.Title,
		CustodianID:  p.CustodianID,
		CreatedAt:    time.Now().UTC(),
		Address:      string(addr),
		ContentHash:  digest.Hex(),
		EncryptionIV: hex.EncodeToString(iv),
		Status:       model.RecordVerified,
	}
	if err := m.records.Save(ctx, rec); err != nil {
		return model.Record{}, err
	}

	if p.RequesterID != "" {
		expiry := p.ExpiryHours
		if expiry <= 0 {
			expiry = m.config.expiryHours()
		}
		if _, err := m.consents.CreateRequest(
			ctx, p.SubjectID, p.RequesterID, p.RequesterType, recordID, expiry,
		); err != nil {
			return model.Record{}, err
		}
	}

	if _, err := m.trail.Append(ctx, model.AuditLogEntry{
		SubjectID:    p.SubjectID,
		RecordID:     recordID,
		AccessorID:   actor.ID,
		AccessorType: actor.Type,
		Action:       model.ActionUpload,
		Verified:     true,
	}); err != nil {
		return model.Record{}, err
	}

	m.log.WithFields(logrus.Fields{
		"recordId": recordID,
		"subject":  p.SubjectID,
		"address":  string(addr),
	}).Info("record uploaded and anchored")

	return rec, nil
}

// CreateConsentRequest files an explicit consent request.
func (m *MedLedger) CreateConsentRequest(
	ctx context.Context,
	subjectID, requesterID, requesterType, recordID string,
	expiryHours int,
) (model.ConsentRequest, error) {
	if expiryHours <= 0 {
		expiryHours = m.config.expiryHours()
	}
	return m.consents.CreateRequest(ctx, subjectID, requesterID, requesterType, recordID, expiryHours)
}

// Decision is a consent resolution.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// ResolveConsent applies the subject's decision to a pending request
// and appends the matching APPROVE/DENY audit entry.
func (m *MedLedger) ResolveConsent(ctx context.Context, actor session.Actor, requestID string, decision Decision) (model.ConsentRequest, error) {
	var (
		req    model.ConsentRequest
		err    error
		action model.AuditAction
	)

	switch decision {
	case DecisionApprove:
		req, err = m.consents.Approve(ctx, requestID)
		action = model.ActionApprove
	case DecisionDeny:
		req, err = m.consents.Deny(ctx, requestID)
		action = model.ActionDeny
	default:
		return model.ConsentRequest{}, &faults.ValidationError{
			Field:  "decision",
			Reason: "must be approve or deny",
		}
	}
	if err != nil {
		return model.ConsentRequest{}, err
	}

	if actor.IsZero() {
		actor = fallbackActor(ctx, req.SubjectID, "patient")
	}

	if _, err := m.trail.Append(ctx, model.AuditLogEntry{
		SubjectID:    req.SubjectID,
		RecordID:     req.RecordID,
		AccessorID:   actor.ID,
		AccessorType: actor.Type,
		Action:       action,
		Verified:     decision == DecisionApprove,
		Detail: map[string]string{
			model.DetailConsentState: string(req.Status),
		},
	}); err != nil {
		return model.ConsentRequest{}, err
	}

	return req, nil
}

// VerifyRecord runs the verification algorithm for requester against
// recordID. Exactly one VIEW audit entry is appended per call.
func (m *MedLedger) VerifyRecord(ctx context.Context, requester session.Actor, recordID string) (model.VerificationResult, error) {
	return m.verifier.Verify(ctx, recordID, requester)
}

// OpenRecord verifies the record and, when its integrity holds,
// decrypts and returns the plaintext. The verification's VIEW entry is
// the audit trace of the access.
func (m *MedLedger) OpenRecord(ctx context.Context, requester session.Actor, recordID string) ([]byte, error) {
	result, err := m.VerifyRecord(ctx, requester, recordID)
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		return nil, &faults.StateError{
			Reason: "record " + recordID + " failed integrity verification",
		}
	}

	rec, err := m.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(rec.EncryptionIV)
	if err != nil {
		return nil, &faults.CryptoError{Op: "decrypt", Err: err}
	}

	ciphertext, err := m.store.Get(ctx, contentstore.Address(rec.Address))
	if err != nil {
		return nil, err
	}
	return crypt.Decrypt(ciphertext, m.key, iv)
}

// GetRecord returns a registered record.
func (m *MedLedger) GetRecord(ctx context.Context, recordID string) (model.Record, error) {
	return m.records.Get(ctx, recordID)
}

// ListRecords returns a subject's records in upload order.
func (m *MedLedger) ListRecords(ctx context.Context, subjectID string) []model.Record {
	return m.records.ListBySubject(ctx, subjectID)
}

// GetAnchor returns the ledger entry for a record.
func (m *MedLedger) GetAnchor(ctx context.Context, recordID string) (model.AnchorEntry, error) {
	return m.chain.Get(ctx, recordID)
}

// GetConsentRequest returns a consent request by id.
func (m *MedLedger) GetConsentRequest(ctx context.Context, requestID string) (model.ConsentRequest, error) {
	return m.consents.GetRequest(ctx, requestID)
}

// ListConsentRequests returns a subject's consent requests in
// creation order.
func (m *MedLedger) ListConsentRequests(ctx context.Context, subjectID string) []model.ConsentRequest {
	return m.consents.ListForSubject(ctx, subjectID)
}

// IsConsentGranted reports whether an active approval covers the
// (subject, record) pair. Advisory read.
func (m *MedLedger) IsConsentGranted(subjectID, recordID string) bool {
	return m.consents.IsGranted(subjectID, recordID)
}

// AuditFilter selects audit entries; empty fields match everything.
type AuditFilter = audit.Filter

// GetAuditTrail returns matching audit entries, most recent first.
func (m *MedLedger) GetAuditTrail(ctx context.Context, filter AuditFilter) []model.AuditLogEntry {
	return m.trail.Query(ctx, filter)
}
