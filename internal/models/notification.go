package models

import "time"

// DefaultThrottleMs is the minimum silence interval per event kind
const DefaultThrottleMs = 3000

// DefaultHistoryLimit bounds the notification history ring
const DefaultHistoryLimit = 100

// NotificationPreferences is the process-wide notification configuration.
// Defaults apply until the first explicit set; mutations are persisted as a
// keyed blob.
type NotificationPreferences struct {
	Enabled    bool `json:"enabled"`
	Sound      bool `json:"sound"`
	ThrottleMs int  `json:"throttle_ms"`

	// Per-kind enable flags
	Kinds map[EventKind]bool `json:"kinds"`
}

// DefaultPreferences returns preferences with every kind enabled
func DefaultPreferences() NotificationPreferences {
	kinds := make(map[EventKind]bool, len(EventKinds))
	for _, k := range EventKinds {
		kinds[k] = true
	}
	return NotificationPreferences{
		Enabled:    true,
		Sound:      true,
		ThrottleMs: DefaultThrottleMs,
		Kinds:      kinds,
	}
}

// KindEnabled reports whether notifications for the given kind may fire
func (p NotificationPreferences) KindEnabled(kind EventKind) bool {
	if !p.Enabled {
		return false
	}
	enabled, ok := p.Kinds[kind]
	return ok && enabled
}

// PreferencesPatch is a partial preferences update; nil fields are left as-is
type PreferencesPatch struct {
	Enabled    *bool              `json:"enabled,omitempty"`
	Sound      *bool              `json:"sound,omitempty"`
	ThrottleMs *int               `json:"throttle_ms,omitempty"`
	Kinds      map[EventKind]bool `json:"kinds,omitempty"`
}

// NotificationRecord is one entry of the bounded notification history
type NotificationRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}
