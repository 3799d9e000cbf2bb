package storage

import (
	"context"
	"errors"
	"time"

	"walletwatch/internal/models"
)

// ErrNoTransactions is returned by GetLatest when the store is empty
var ErrNoTransactions = errors.New("no transactions stored")

// Repository defines the interface for transaction storage operations.
// Writes are keyed by transaction hash: re-putting an existing ID replaces
// the record.
type Repository interface {
	// Writes
	Put(ctx context.Context, record models.TransactionRecord) error
	// PutMany persists all records atomically: either every record lands or
	// none do
	PutMany(ctx context.Context, records []models.TransactionRecord) error

	// Reads
	Get(ctx context.Context, id string) (*models.TransactionRecord, error)
	GetAll(ctx context.Context) ([]models.TransactionRecord, error)
	GetByType(ctx context.Context, txType string) ([]models.TransactionRecord, error)
	GetByAsset(ctx context.Context, asset string) ([]models.TransactionRecord, error)
	GetByStatus(ctx context.Context, status models.TransactionStatus) ([]models.TransactionRecord, error)
	// GetByDateRange returns records with from <= timestamp <= to, both ends
	// inclusive
	GetByDateRange(ctx context.Context, from, to time.Time) ([]models.TransactionRecord, error)
	// GetLatest returns the most recent record by paging token, or
	// ErrNoTransactions when empty
	GetLatest(ctx context.Context) (*models.TransactionRecord, error)
	// GetLatestCursor returns the highest paging token, or "" when empty
	GetLatestCursor(ctx context.Context) (string, error)
	Count(ctx context.Context) (int, error)

	// Maintenance
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore persists small opaque JSON documents (preferences, notification
// history) keyed by name. A missing key returns (nil, nil).
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
	SetBlob(ctx context.Context, key string, value []byte) error
}
