package model

import "time"

// AuditAction is the kind of event an audit entry records.
type AuditAction string

const (
	ActionUpload  AuditAction = "UPLOAD"
	ActionView    AuditAction = "VIEW"
	ActionApprove AuditAction = "APPROVE"
	ActionDeny    AuditAction = "DENY"
)

// Audit detail keys. Values are short strings so the entry stays a
// flat JSON document.
const (
	DetailConsentState = "consentState"
	DetailHashMismatch = "hashMismatch"
	DetailError        = "error"
)

// AuditLogEntry is one append-only access/resolution event. Entries
// are never mutated or deleted once appended.
type AuditLogEntry struct {
	ID           string            `json:"id"`
	SubjectID    string            `json:"subjectId"`
	RecordID     string            `json:"recordId"`
	AccessorID   string            `json:"accessorId"`
	AccessorType string            `json:"accessorType"`
	Action       AuditAction       `json:"action"`
	Timestamp    time.Time         `json:"timestamp"`
	Verified     bool              `json:"verified"`
	Detail       map[string]string `json:"detail,omitempty"`
}
