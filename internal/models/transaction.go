package models

import "time"

// TransactionStatus is the confirmation state of a synced transaction
type TransactionStatus string

const (
	TxStatusConfirmed TransactionStatus = "confirmed"
	TxStatusPending   TransactionStatus = "pending"
	TxStatusFailed    TransactionStatus = "failed"
)

// TransactionRecord is a durable local copy of a remote ledger transaction.
// Re-syncing the same ID replaces the existing record (last write wins).
type TransactionRecord struct {
	// Identification
	ID   string `json:"id"` // Transaction hash, primary key
	Type string `json:"type"`

	// Value
	Amount string `json:"amount,omitempty"`
	Asset  string `json:"asset"`
	Fee    int64  `json:"fee,omitempty"`

	// Parties
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Memo string `json:"memo,omitempty"`

	// Ledger context
	Timestamp      time.Time         `json:"timestamp"`
	Status         TransactionStatus `json:"status"`
	LedgerSequence int32             `json:"ledger_sequence,omitempty"`

	// Cursor position of the source record, used for incremental sync
	PagingToken string `json:"paging_token"`

	SyncedAt time.Time `json:"synced_at"`
}

// SyncStatus is the current phase of the sync engine state machine
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// SyncState is a snapshot of the sync engine, pushed to listeners on every
// transition. TotalSynced counts records persisted since the last initial
// sync; incremental runs add to it, an initial sync rebases it.
type SyncState struct {
	Status       SyncStatus `json:"status"`
	LastSyncTime time.Time  `json:"last_sync_time,omitzero"`
	TotalSynced  int        `json:"total_synced"`
	Err          string     `json:"error,omitempty"`
}
