// Package verify orchestrates record verification: load the record
// and its anchor, check consent, re-fetch and re-hash the ciphertext,
// compare against the on-chain hash and append exactly one audit
// entry — whatever the outcome.
//
// Backend unavailability during verification is downgraded to a
// negative result with a recorded error detail; it is never silently
// swallowed and never skips the audit entry. Transient store/ledger
// calls are retried with bounded backoff; deterministic steps are not.
package verify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medledger/medledger/internal/contentstore"
	"github.com/medledger/medledger/internal/crypt"
	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/retry"
	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
	"github.com/medledger/medledger/pkg/session"
)

// Mode selects how a failed consent check is handled.
type Mode string

const (
	// ModeAdvisory records missing consent but does not block access.
	// This mirrors the original log-everything behavior.
	ModeAdvisory Mode = "advisory"
	// ModeEnforcing fails the call after auditing it.
	ModeEnforcing Mode = "enforcing"
)

// RecordSource is the slice of the record repository the engine needs.
type RecordSource interface {
	Get(ctx context.Context, id string) (model.Record, error)
	SetStatus(ctx context.Context, id string, status model.RecordStatus) error
}

// ConsentChecker is the advisory consent read.
type ConsentChecker interface {
	IsGranted(subjectID, recordID string) bool
}

// AuditSink receives the mandatory per-verification entry.
type AuditSink interface {
	Append(ctx context.Context, entry model.AuditLogEntry) (model.AuditLogEntry, error)
}

// Config wires an Engine.
type Config struct {
	Records  RecordSource
	Ledger   ledger.Ledger
	Store    contentstore.Store
	Consents ConsentChecker
	Audit    AuditSink
	Mode     Mode
	Retry    retry.Policy
	Logger   *logrus.Logger
}

// Engine runs the verification algorithm.
type Engine struct {
	records  RecordSource
	ledger   ledger.Ledger
	store    contentstore.Store
	consents ConsentChecker
	audit    AuditSink
	mode     Mode
	retry    retry.Policy
	log      *logrus.Logger
}

// NewEngine builds an Engine. Mode defaults to advisory.
func NewEngine(cfg Config) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = ModeAdvisory
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Engine{
		records:  cfg.Records,
		ledger:   cfg.Ledger,
		store:    cfg.Store,
		consents: cfg.Consents,
		audit:    cfg.Audit,
		mode:     cfg.Mode,
		retry:    cfg.Retry,
		log:      cfg.Logger,
	}
}

// Verify runs one verification for requester against recordID. Every
// call appends exactly one VIEW audit entry, including failed lookups.
func (e *Engine) Verify(ctx context.Context, recordID string, requester session.Actor) (model.VerificationResult, error) {
	result := model.VerificationResult{
		RecordID:   recordID,
		VerifiedAt: time.Now().UTC(),
	}
	detail := map[string]string{}

	rec, err := e.records.Get(ctx, recordID)
	if err != nil {
		detail[model.DetailError] = "record not found"
		e.appendAudit(ctx, "", recordID, requester, result, detail)
		return result, err
	}

	anchor, anchorErr := e.loadAnchor(ctx, recordID)
	if anchorErr != nil && faults.IsNotFound(anchorErr) {
		detail[model.DetailError] = "anchor not found"
		e.appendAudit(ctx, rec.SubjectID, recordID, requester, result, detail)
		return result, anchorErr
	}
	if anchorErr != nil {
		// Ledger unreachable: degrade, audit, do not propagate.
		detail[model.DetailError] = "ledger unreachable"
	} else {
		result.OnChainHash = anchor.ContentHash
		result.BlockRef = anchor.ChainRef.BlockRef
	}

	// Advisory read; absence of consent does not abort verification.
	result.ConsentGranted = e.consents.IsGranted(rec.SubjectID, recordID)
	if result.ConsentGranted {
		detail[model.DetailConsentState] = "granted"
	} else {
		detail[model.DetailConsentState] = "not granted"
	}

	payload, payloadErr := e.loadPayload(ctx, rec.Address)
	switch {
	case payloadErr != nil && faults.IsNotFound(payloadErr):
		detail[model.DetailError] = "content missing"
	case payloadErr != nil:
		detail[model.DetailError] = "content store unreachable"
	}

	if payloadErr == nil && anchorErr == nil {
		result.LocalHash = crypt.HashBytes(payload).Hex()
		result.IsValid = result.LocalHash == result.OnChainHash

		status := model.RecordVerified
		if !result.IsValid {
			status = model.RecordTampered
			detail[model.DetailHashMismatch] = "true"
		}
		if err := e.records.SetStatus(ctx, recordID, status); err != nil {
			e.log.Warnf("could not update record status for %s: %v", recordID, err)
		}
	}

	e.appendAudit(ctx, rec.SubjectID, recordID, requester, result, detail)

	if e.mode == ModeEnforcing && !result.ConsentGranted {
		return result, &faults.StateError{
			Reason: "access to record " + recordID + " is not covered by an active consent",
		}
	}

	return result, nil
}

func (e *Engine) loadAnchor(ctx context.Context, recordID string) (model.AnchorEntry, error) {
	var anchor model.AnchorEntry
	err := retry.Do(ctx, e.retry, func() error {
		var err error
		anchor, err = e.ledger.Get(ctx, recordID)
		if err != nil && faults.IsNotFound(err) {
			return retry.Permanent(err)
		}
		return err
	})
	return anchor, err
}

func (e *Engine) loadPayload(ctx context.Context, address string) ([]byte, error) {
	var payload []byte
	err := retry.Do(ctx, e.retry, func() error {
		var err error
		payload, err = e.store.Get(ctx, contentstore.Address(address))
		if err != nil && faults.IsNotFound(err) {
			return retry.Permanent(err)
		}
		return err
	})
	return payload, err
}

func (e *Engine) appendAudit(
	ctx context.Context,
	subjectID, recordID string,
	requester session.Actor,
	result model.VerificationResult,
	detail map[string]string,
) {
	entry := model.AuditLogEntry{
		SubjectID:    subjectID,
		RecordID:     recordID,
		AccessorID:   requester.ID,
		AccessorType: requester.Type,
		Action:       model.ActionView,
		Verified:     result.IsValid,
		Detail:       detail,
	}
	if _, err := e.audit.Append(ctx, entry); err != nil {
		// The trail is local; a failed append is a serious defect
		// worth surfacing loudly, but it must not mask the result.
		e.log.Errorf("audit append failed for record %s: %v", recordID, err)
	}
}
