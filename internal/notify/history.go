package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"walletwatch/internal/models"
)

const historyBlobKey = "notification_history"

// History is the bounded, newest-first notification log. When the limit is
// reached the oldest record is evicted.
type History struct {
	store BlobStore
	limit int

	mu      sync.Mutex
	records []models.NotificationRecord
}

// NewHistory creates a history bounded to limit records
func NewHistory(store BlobStore, limit int) *History {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}
	return &History{store: store, limit: limit}
}

// Load restores the persisted history
func (h *History) Load(ctx context.Context) error {
	raw, err := h.store.GetBlob(ctx, historyBlobKey)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if raw == nil {
		return nil
	}

	var records []models.NotificationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}

	h.mu.Lock()
	h.records = records
	if len(h.records) > h.limit {
		h.records = h.records[:h.limit]
	}
	h.mu.Unlock()
	return nil
}

// Append records a dispatched notification and persists the history
func (h *History) Append(ctx context.Context, rec models.NotificationRecord) error {
	h.mu.Lock()
	h.records = append([]models.NotificationRecord{rec}, h.records...)
	if len(h.records) > h.limit {
		h.records = h.records[:h.limit]
	}
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	return h.persist(ctx, snapshot)
}

// List returns the history, newest first
func (h *History) List() []models.NotificationRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Clear empties the history and persists the empty state
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	h.records = nil
	h.mu.Unlock()

	return h.persist(ctx, []models.NotificationRecord{})
}

func (h *History) snapshotLocked() []models.NotificationRecord {
	out := make([]models.NotificationRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *History) persist(ctx context.Context, records []models.NotificationRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := h.store.SetBlob(ctx, historyBlobKey, raw); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}
