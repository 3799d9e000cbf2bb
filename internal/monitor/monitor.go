package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/strkey"

	"walletwatch/internal/classify"
	"walletwatch/internal/ledger"
	"walletwatch/internal/metrics"
	"walletwatch/internal/models"
	"walletwatch/internal/stream"
)

// dedupeCapacity bounds the recently-seen event ID window. Payments appear on
// both the payments and operations streams, so every event passes through
// this window once per stream.
const dedupeCapacity = 1024

// Listener receives classified events synchronously, in registration order
type Listener func(event models.LedgerEvent)

type listenerEntry struct {
	id int
	fn Listener
}

// Monitor owns one pair of stream subscriptions per watched account, applies
// the classifier and fans classified events out to registered listeners.
type Monitor struct {
	streamer  ledger.Streamer
	opts      stream.Options
	onDormant stream.ErrorHandler

	mu       sync.Mutex
	accounts map[string][]*stream.Subscription

	lmu    sync.RWMutex
	nextID int
	byKind map[models.EventKind][]listenerEntry
	all    []listenerEntry

	seen *dedupeWindow
}

// New creates a monitor. onDormant is invoked when a subscription exhausts
// its reconnect budget; it may be nil.
func New(streamer ledger.Streamer, opts stream.Options, onDormant stream.ErrorHandler) *Monitor {
	return &Monitor{
		streamer:  streamer,
		opts:      opts,
		onDormant: onDormant,
		accounts:  make(map[string][]*stream.Subscription),
		byKind:    make(map[models.EventKind][]listenerEntry),
		seen:      newDedupeWindow(dedupeCapacity),
	}
}

// StartMonitoring opens the payments and operations streams for the account,
// positioned at the present. Calling it again for an account already being
// monitored is a no-op.
func (m *Monitor) StartMonitoring(ctx context.Context, account string) error {
	if !strkey.IsValidEd25519PublicKey(account) {
		return fmt.Errorf("invalid account id: %s", account)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account]; exists {
		return nil
	}

	handler := func(op operations.Operation) {
		m.handle(account, op)
	}

	subs := []*stream.Subscription{
		stream.New(account, stream.CategoryPayments, m.streamer.StreamPayments, handler, m.onDormant, m.opts),
		stream.New(account, stream.CategoryOperations, m.streamer.StreamOperations, handler, m.onDormant, m.opts),
	}
	for _, sub := range subs {
		sub.Start(ctx)
	}
	m.accounts[account] = subs

	slog.Info("Monitoring started", "account", account, "streams", len(subs))
	return nil
}

// StopMonitoring closes all streams for the account. Idempotent.
func (m *Monitor) StopMonitoring(account string) {
	m.mu.Lock()
	subs, exists := m.accounts[account]
	delete(m.accounts, account)
	m.mu.Unlock()

	if !exists {
		return
	}
	for _, sub := range subs {
		sub.Stop()
	}
	slog.Info("Monitoring stopped", "account", account)
}

// StopAll closes every stream for every monitored account
func (m *Monitor) StopAll() {
	m.mu.Lock()
	accounts := make([]string, 0, len(m.accounts))
	for account := range m.accounts {
		accounts = append(accounts, account)
	}
	m.mu.Unlock()

	for _, account := range accounts {
		m.StopMonitoring(account)
	}
}

// On registers a listener for one event kind and returns its unsubscribe
func (m *Monitor) On(kind models.EventKind, fn Listener) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	m.nextID++
	id := m.nextID
	m.byKind[kind] = append(m.byKind[kind], listenerEntry{id: id, fn: fn})

	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		m.byKind[kind] = removeListener(m.byKind[kind], id)
	}
}

// OnAll registers a listener for every event kind
func (m *Monitor) OnAll(fn Listener) func() {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	m.nextID++
	id := m.nextID
	m.all = append(m.all, listenerEntry{id: id, fn: fn})

	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		m.all = removeListener(m.all, id)
	}
}

func (m *Monitor) handle(account string, op operations.Operation) {
	event, ok := classify.Classify(account, op)
	if !ok {
		metrics.EventsDropped.Inc()
		return
	}

	// Payments arrive on both streams for the same account
	if m.seen.markSeen(event.ID) {
		return
	}

	metrics.EventsClassified.WithLabelValues(string(event.Kind)).Inc()
	m.emit(event)
}

// emit delivers synchronously to kind listeners then catch-all listeners, in
// registration order. A panicking listener must not starve the rest.
func (m *Monitor) emit(event models.LedgerEvent) {
	m.lmu.RLock()
	entries := make([]listenerEntry, 0, len(m.byKind[event.Kind])+len(m.all))
	entries = append(entries, m.byKind[event.Kind]...)
	entries = append(entries, m.all...)
	m.lmu.RUnlock()

	for _, entry := range entries {
		deliver(entry.fn, event)
	}
}

func deliver(fn Listener, event models.LedgerEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event listener panicked", "event_id", event.ID, "kind", event.Kind, "panic", r)
		}
	}()
	fn(event)
}

func removeListener(entries []listenerEntry, id int) []listenerEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}
