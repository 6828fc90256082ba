package model

import "time"

// ChainRef points at the simulated (or real) chain transaction that
// carries an anchor.
type ChainRef struct {
	TxRef    string `json:"txRef"`
	BlockRef string `json:"blockRef"`
}

// AnchorEntry binds a record's storage address and content hash to a
// point in time. One-to-one with Record, written once, never mutated.
type AnchorEntry struct {
	RecordID    string    `json:"recordId"`
	Address     string    `json:"address"`
	ContentHash string    `json:"contentHash"`
	AnchoredAt  time.Time `json:"anchoredAt"`
	ChainRef    ChainRef  `json:"chainRef"`
}
