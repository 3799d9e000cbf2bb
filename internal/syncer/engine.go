package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"walletwatch/internal/ledger"
	"walletwatch/internal/metrics"
	"walletwatch/internal/models"
)

// Defaults for sync page sizes
const (
	DefaultInitialPageSize     = 100
	DefaultIncrementalPageSize = 50
)

// ErrSyncInProgress is returned when a sync is requested while one is running
var ErrSyncInProgress = errors.New("sync already in progress")

// Store is the slice of the transaction store the engine needs
type Store interface {
	PutMany(ctx context.Context, records []models.TransactionRecord) error
	Count(ctx context.Context) (int, error)
	// GetLatestCursor returns the paging token of the most recent record, or
	// "" when the store is empty
	GetLatestCursor(ctx context.Context) (string, error)
}

// StateListener receives a snapshot of the sync state on every transition
type StateListener func(state models.SyncState)

// Engine reconciles the local transaction store against the remote ledger
// using a monotonically advancing cursor. It is re-entrant: any terminal
// state transitions back through Syncing on the next call.
type Engine struct {
	source ledger.HistorySource
	store  Store

	initialPageSize     int
	incrementalPageSize int

	mu      sync.Mutex
	state   models.SyncState
	syncing bool

	lmu       sync.RWMutex
	nextID    int
	listeners map[int]StateListener

	// Injectable for tests
	nowFn func() time.Time
}

// Options tunes the engine's page sizes
type Options struct {
	InitialPageSize     int
	IncrementalPageSize int
}

// New creates an idle engine
func New(source ledger.HistorySource, store Store, opts Options) *Engine {
	if opts.InitialPageSize <= 0 {
		opts.InitialPageSize = DefaultInitialPageSize
	}
	if opts.IncrementalPageSize <= 0 {
		opts.IncrementalPageSize = DefaultIncrementalPageSize
	}
	return &Engine{
		source:              source,
		store:               store,
		initialPageSize:     opts.InitialPageSize,
		incrementalPageSize: opts.IncrementalPageSize,
		state:               models.SyncState{Status: models.SyncStatusIdle},
		listeners:           make(map[int]StateListener),
		nowFn:               time.Now,
	}
}

// State returns the current sync state snapshot
func (e *Engine) State() models.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// OnStateChange registers a listener for state transitions and returns its
// unsubscribe handle
func (e *Engine) OnStateChange(fn StateListener) func() {
	e.lmu.Lock()
	defer e.lmu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners[id] = fn

	return func() {
		e.lmu.Lock()
		defer e.lmu.Unlock()
		delete(e.listeners, id)
	}
}

// InitialSync bulk-fetches the most recent transactions and persists them
func (e *Engine) InitialSync(ctx context.Context, account string) error {
	if err := e.begin(); err != nil {
		return err
	}

	records, err := e.source.RecentHistory(ctx, account, e.initialPageSize)
	if err != nil {
		return e.fail(fmt.Errorf("initial sync fetch: %w", err))
	}
	stamped := e.stamp(records)
	if err := e.store.PutMany(ctx, stamped); err != nil {
		return e.fail(fmt.Errorf("initial sync persist: %w", err))
	}

	e.succeed(len(stamped), true)
	slog.Info("Initial sync complete", "account", account, "records", len(stamped))
	return nil
}

// IncrementalSync fetches only records newer than the latest persisted one.
// Zero new records is a successful outcome. The engine never retries
// internally; retry policy belongs to the caller or the auto-sync schedule.
func (e *Engine) IncrementalSync(ctx context.Context, account string) error {
	if err := e.begin(); err != nil {
		return err
	}

	cursor, err := e.store.GetLatestCursor(ctx)
	if err != nil {
		return e.fail(fmt.Errorf("read sync cursor: %w", err))
	}

	records, err := e.source.HistoryAfter(ctx, account, cursor, e.incrementalPageSize)
	if err != nil {
		return e.fail(fmt.Errorf("incremental sync fetch: %w", err))
	}
	stamped := e.stamp(records)
	if len(stamped) > 0 {
		if err := e.store.PutMany(ctx, stamped); err != nil {
			return e.fail(fmt.Errorf("incremental sync persist: %w", err))
		}
	}

	e.succeed(len(stamped), false)
	slog.Debug("Incremental sync complete", "account", account, "new_records", len(stamped))
	return nil
}

// SyncOnConnect picks the cheap path: initial sync for an empty store,
// incremental otherwise, so a reconnect never repeats the bulk fetch
func (e *Engine) SyncOnConnect(ctx context.Context, account string) error {
	count, err := e.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count local records: %w", err)
	}
	if count == 0 {
		return e.InitialSync(ctx, account)
	}
	return e.IncrementalSync(ctx, account)
}

// StartAutoSync runs IncrementalSync on a fixed interval until the returned
// cancel func is called or the context ends. Per-tick errors are logged and
// swallowed so one failed tick never kills the schedule.
func (e *Engine) StartAutoSync(ctx context.Context, account string, interval time.Duration) func() {
	runCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := e.IncrementalSync(runCtx, account); err != nil {
					slog.Warn("Auto-sync tick failed", "account", account, "error", err)
				}
			}
		}
	}()

	return cancel
}

// begin transitions Idle/Success/Error -> Syncing
func (e *Engine) begin() error {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return ErrSyncInProgress
	}
	e.syncing = true
	e.state.Status = models.SyncStatusSyncing
	e.state.Err = ""
	snapshot := e.state
	e.mu.Unlock()

	e.notify(snapshot)
	return nil
}

// succeed finishes a run. An initial sync rebases TotalSynced to the page it
// just persisted; incremental runs accumulate on top of it.
func (e *Engine) succeed(synced int, rebase bool) {
	e.mu.Lock()
	e.syncing = false
	e.state.Status = models.SyncStatusSuccess
	e.state.LastSyncTime = e.nowFn()
	if rebase {
		e.state.TotalSynced = synced
	} else {
		e.state.TotalSynced += synced
	}
	snapshot := e.state
	e.mu.Unlock()

	metrics.SyncRuns.WithLabelValues("success").Inc()
	metrics.TransactionsSynced.Add(float64(synced))
	e.notify(snapshot)
}

func (e *Engine) fail(err error) error {
	e.mu.Lock()
	e.syncing = false
	e.state.Status = models.SyncStatusError
	e.state.Err = err.Error()
	snapshot := e.state
	e.mu.Unlock()

	metrics.SyncRuns.WithLabelValues("error").Inc()
	e.notify(snapshot)
	return err
}

func (e *Engine) notify(state models.SyncState) {
	e.lmu.RLock()
	listeners := make([]StateListener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.lmu.RUnlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (e *Engine) stamp(records []models.TransactionRecord) []models.TransactionRecord {
	now := e.nowFn()
	for i := range records {
		records[i].SyncedAt = now
	}
	return records
}
