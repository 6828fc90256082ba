// Package model holds the persisted document types of the vault. Every
// type here is a flat, JSON-serializable document keyed by an opaque
// string id; additive fields are the only schema evolution allowed.
package model

import "time"

// RecordStatus is the integrity state of a record as last observed by
// the verification engine.
type RecordStatus string

const (
	RecordVerified RecordStatus = "verified"
	RecordTampered RecordStatus = "tampered"
	RecordUnknown  RecordStatus = "unknown"
)

// Record is a registered encrypted document. Immutable after upload
// except Status, which only the verification engine may set.
type Record struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subjectId"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	CustodianID string    `json:"custodianId"`
	CreatedAt   time.Time `json:"createdAt"`
	Address     string    `json:"address"`
	ContentHash string    `json:"contentHash"`
	// EncryptionIV is the hex-encoded nonce the content was sealed with.
	EncryptionIV string       `json:"encryptionIv"`
	Status       RecordStatus `json:"status"`
}
