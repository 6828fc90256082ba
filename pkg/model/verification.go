package model

import "time"

// VerificationResult is the ephemeral outcome of one verification run.
// It is returned to the caller and partially captured into an audit
// entry; it is never persisted itself.
type VerificationResult struct {
	RecordID       string    `json:"recordId"`
	IsValid        bool      `json:"isValid"`
	LocalHash      string    `json:"localHash"`
	OnChainHash    string    `json:"onChainHash"`
	ConsentGranted bool      `json:"consentGranted"`
	BlockRef       string    `json:"blockRef"`
	VerifiedAt     time.Time `json:"verifiedAt"`
}
