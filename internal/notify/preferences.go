package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"walletwatch/internal/models"
)

const preferencesBlobKey = "notification_preferences"

// BlobStore persists small keyed JSON blobs. A missing key returns (nil, nil).
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, error)
	SetBlob(ctx context.Context, key string, value []byte) error
}

// PreferencesStore holds the process-wide notification preferences, writing
// every mutation through to the blob store
type PreferencesStore struct {
	store BlobStore

	mu    sync.RWMutex
	prefs models.NotificationPreferences
}

// NewPreferencesStore creates a store seeded with defaults
func NewPreferencesStore(store BlobStore) *PreferencesStore {
	return &PreferencesStore{
		store: store,
		prefs: models.DefaultPreferences(),
	}
}

// Load replaces the in-memory preferences with the persisted blob, keeping
// defaults when nothing was persisted yet
func (p *PreferencesStore) Load(ctx context.Context) error {
	raw, err := p.store.GetBlob(ctx, preferencesBlobKey)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if raw == nil {
		return nil
	}

	prefs := models.DefaultPreferences()
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return fmt.Errorf("decode preferences: %w", err)
	}

	p.mu.Lock()
	p.prefs = prefs
	p.mu.Unlock()
	return nil
}

// Get returns a copy of the current preferences
func (p *PreferencesStore) Get() models.NotificationPreferences {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyPrefs(p.prefs)
}

// Set applies a partial update and persists the result
func (p *PreferencesStore) Set(ctx context.Context, patch models.PreferencesPatch) error {
	p.mu.Lock()
	if patch.Enabled != nil {
		p.prefs.Enabled = *patch.Enabled
	}
	if patch.Sound != nil {
		p.prefs.Sound = *patch.Sound
	}
	if patch.ThrottleMs != nil {
		p.prefs.ThrottleMs = *patch.ThrottleMs
	}
	for kind, enabled := range patch.Kinds {
		p.prefs.Kinds[kind] = enabled
	}
	updated := copyPrefs(p.prefs)
	p.mu.Unlock()

	raw, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := p.store.SetBlob(ctx, preferencesBlobKey, raw); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}
	return nil
}

func copyPrefs(prefs models.NotificationPreferences) models.NotificationPreferences {
	kinds := make(map[models.EventKind]bool, len(prefs.Kinds))
	for k, v := range prefs.Kinds {
		kinds[k] = v
	}
	prefs.Kinds = kinds
	return prefs
}
