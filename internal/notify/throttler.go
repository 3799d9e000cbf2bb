package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"walletwatch/internal/metrics"
	"walletwatch/internal/models"
)

// Throttler turns individual events into user-facing notifications, enforcing
// a minimum silence interval per event kind. Kinds never cross-throttle: a
// burst of payments does not suppress a trustline alert.
type Throttler struct {
	prefs    *PreferencesStore
	history  *History
	notifier Notifier

	mu       sync.Mutex
	limiters map[models.EventKind]*limiterEntry

	// Injectable for tests
	nowFn func() time.Time
}

// limiterEntry is rebuilt when the configured throttle interval changes
type limiterEntry struct {
	limiter    *rate.Limiter
	intervalMs int
}

// NewThrottler wires the throttler to its preferences, history and sink
func NewThrottler(prefs *PreferencesStore, history *History, notifier Notifier) *Throttler {
	return &Throttler{
		prefs:    prefs,
		history:  history,
		notifier: notifier,
		limiters: make(map[models.EventKind]*limiterEntry),
		nowFn:    time.Now,
	}
}

// Handle decides whether the event produces a notification and dispatches it.
// Suppressed events leave no trace beyond a metric: no notification, no
// history entry, and no consumed throttle budget.
func (t *Throttler) Handle(ctx context.Context, event models.LedgerEvent) {
	prefs := t.prefs.Get()
	if !prefs.KindEnabled(event.Kind) {
		metrics.NotificationsSuppressed.WithLabelValues(string(event.Kind), "disabled").Inc()
		return
	}

	now := t.nowFn()
	if !t.limiterFor(event.Kind, prefs.ThrottleMs).AllowN(now, 1) {
		metrics.NotificationsSuppressed.WithLabelValues(string(event.Kind), "throttled").Inc()
		slog.Debug("Notification throttled", "kind", event.Kind, "event_id", event.ID)
		return
	}

	rec := renderNotification(event, now)
	if err := t.notifier.Send(ctx, rec, prefs.Sound); err != nil {
		slog.Warn("Notification dispatch failed", "kind", event.Kind, "error", err)
	}
	if err := t.history.Append(ctx, rec); err != nil {
		slog.Warn("Notification history write failed", "error", err)
	}
	metrics.NotificationsSent.WithLabelValues(string(event.Kind)).Inc()
}

// limiterFor returns the kind's limiter, rebuilding it when the configured
// interval changed. The map lock is held for the lookup only; AllowN runs on
// the per-kind limiter so unrelated kinds never serialize.
func (t *Throttler) limiterFor(kind models.EventKind, throttleMs int) *rate.Limiter {
	if throttleMs <= 0 {
		throttleMs = models.DefaultThrottleMs
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.limiters[kind]
	if !ok || entry.intervalMs != throttleMs {
		entry = &limiterEntry{
			limiter:    rate.NewLimiter(rate.Every(time.Duration(throttleMs)*time.Millisecond), 1),
			intervalMs: throttleMs,
		}
		t.limiters[kind] = entry
	}
	return entry.limiter
}
