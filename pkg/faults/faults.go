// Package faults defines the typed error taxonomy shared across the
// vault: validation, not-found, illegal state transitions, crypto
// failures, storage/ledger backend failures and duplicate anchors.
//
// All types support errors.Is / errors.As matching; wrapping is done
// with %w at the call sites.
package faults

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown record, address, anchor or request.
type NotFoundError struct {
	Kind string // "record", "address", "anchor", "consent request"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// StateError reports an illegal consent-request transition or, in
// enforcing mode, a blocked access.
type StateError struct {
	RequestID string
	From      string
	To        string
	Reason    string
}

func (e *StateError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("state: %s", e.Reason)
	}
	return fmt.Sprintf(
		"state: request %s cannot transition %s -> %s",
		e.RequestID, e.From, e.To,
	)
}

// CryptoError reports an encryption or decryption failure, including
// authentication failures on tampered ciphertext.
type CryptoError struct {
	Op  string // "encrypt", "decrypt"
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// StorageError reports an unreachable or corrupt content store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// LedgerError reports an anchor write or read failure.
type LedgerError struct {
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// AlreadyAnchoredError reports a duplicate anchor attempt with
// conflicting content for a record that is already anchored.
type AlreadyAnchoredError struct {
	RecordID string
}

func (e *AlreadyAnchoredError) Error() string {
	return fmt.Sprintf("record %s is already anchored", e.RecordID)
}

// IsNotFound reports whether err is a NotFoundError anywhere in its
// chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsState reports whether err is a StateError anywhere in its chain.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsAlreadyAnchored reports whether err is an AlreadyAnchoredError.
func IsAlreadyAnchored(err error) bool {
	var aa *AlreadyAnchoredError
	return errors.As(err, &aa)
}
