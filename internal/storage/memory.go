package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"walletwatch/internal/models"
)

// MemoryStore is an in-memory Repository and BlobStore. It backs tests and
// the --ephemeral mode where no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.TransactionRecord
	blobs   map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.TransactionRecord),
		blobs:   make(map[string][]byte),
	}
}

// Put upserts a single record
func (s *MemoryStore) Put(_ context.Context, record models.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

// PutMany upserts all records. The map is only touched once every record has
// been validated, so a failure leaves the store unchanged.
func (s *MemoryStore) PutMany(_ context.Context, records []models.TransactionRecord) error {
	for _, record := range records {
		if record.ID == "" {
			return fmt.Errorf("record with empty id rejected")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		s.records[record.ID] = record
	}
	return nil
}

// Get retrieves one record by transaction hash
func (s *MemoryStore) Get(_ context.Context, id string) (*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	return &record, nil
}

// GetAll returns every record, newest first
func (s *MemoryStore) GetAll(_ context.Context) ([]models.TransactionRecord, error) {
	return s.filter(func(models.TransactionRecord) bool { return true }), nil
}

// GetByType returns records of one transaction type, newest first
func (s *MemoryStore) GetByType(_ context.Context, txType string) ([]models.TransactionRecord, error) {
	return s.filter(func(r models.TransactionRecord) bool { return r.Type == txType }), nil
}

// GetByAsset returns records involving one asset, newest first
func (s *MemoryStore) GetByAsset(_ context.Context, asset string) ([]models.TransactionRecord, error) {
	return s.filter(func(r models.TransactionRecord) bool { return r.Asset == asset }), nil
}

// GetByStatus returns records in one confirmation state, newest first
func (s *MemoryStore) GetByStatus(_ context.Context, status models.TransactionStatus) ([]models.TransactionRecord, error) {
	return s.filter(func(r models.TransactionRecord) bool { return r.Status == status }), nil
}

// GetByDateRange returns records with from <= timestamp <= to, newest first
func (s *MemoryStore) GetByDateRange(_ context.Context, from, to time.Time) ([]models.TransactionRecord, error) {
	return s.filter(func(r models.TransactionRecord) bool {
		return !r.Timestamp.Before(from) && !r.Timestamp.After(to)
	}), nil
}

// GetLatest returns the record with the highest paging token
func (s *MemoryStore) GetLatest(_ context.Context) (*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.TransactionRecord
	for _, record := range s.records {
		record := record
		if latest == nil || tokenLess(latest.PagingToken, record.PagingToken) {
			latest = &record
		}
	}
	if latest == nil {
		return nil, ErrNoTransactions
	}
	return latest, nil
}

// GetLatestCursor returns the highest paging token, or "" for an empty store
func (s *MemoryStore) GetLatestCursor(ctx context.Context) (string, error) {
	latest, err := s.GetLatest(ctx)
	if err == ErrNoTransactions {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return latest.PagingToken, nil
}

// Count returns the number of stored records
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear removes every stored record
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.TransactionRecord)
	return nil
}

// GetBlob retrieves a named blob, (nil, nil) when the key does not exist
func (s *MemoryStore) GetBlob(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blobs[key], nil
}

// SetBlob upserts a named blob
func (s *MemoryStore) SetBlob(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), value...)
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) filter(keep func(models.TransactionRecord) bool) []models.TransactionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TransactionRecord
	for _, record := range s.records {
		if keep(record) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// tokenLess compares paging tokens as the decimal integers they encode:
// a shorter token is always smaller, equal lengths compare lexicographically
func tokenLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
