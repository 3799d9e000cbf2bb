package models

import "time"

// EventKind identifies the domain meaning of a classified ledger event
type EventKind string

const (
	EventKindPayment           EventKind = "payment"
	EventKindTokenTransfer     EventKind = "token_transfer"
	EventKindNftTransfer       EventKind = "nft_transfer"
	EventKindContractExecution EventKind = "contract_execution"
	EventKindAccountCreated    EventKind = "account_created"
	EventKindTrustlineCreated  EventKind = "trustline_created"
)

// EventKinds lists every kind the classifier can produce
var EventKinds = []EventKind{
	EventKindPayment,
	EventKindTokenTransfer,
	EventKindNftTransfer,
	EventKindContractExecution,
	EventKindAccountCreated,
	EventKindTrustlineCreated,
}

// LedgerEvent is a classified, normalized record derived from a raw ledger
// operation. Identity is the source operation ID; events are immutable once
// classified and are never persisted.
type LedgerEvent struct {
	// Identification
	ID      string    `json:"id"` // Source operation ID, unique per record
	Kind    EventKind `json:"kind"`
	Account string    `json:"account"` // Watched account this event was observed for

	// Ledger context
	TxHash    string    `json:"tx_hash"`
	Timestamp time.Time `json:"timestamp"`

	// Kind-specific normalized fields (from/to/amount/asset, funder, trustor, ...)
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// EventBatch is an ordered, sealed group of events delivered as one unit.
// A batch is flushed exactly once and never split or merged after sealing.
type EventBatch struct {
	Events   []LedgerEvent `json:"events"`
	SealedAt time.Time     `json:"sealed_at"`
}

// Size returns the number of events in the batch
func (b EventBatch) Size() int {
	return len(b.Events)
}
