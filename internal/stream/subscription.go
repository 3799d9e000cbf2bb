package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stellar/go/protocols/horizon/operations"

	"walletwatch/internal/ledger"
	"walletwatch/internal/metrics"
)

// State is the connection phase of a subscription
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDormant      State = "dormant" // reconnect budget exhausted, restart required
	StateStopped      State = "stopped"
)

// Category selects which record stream a subscription consumes
type Category string

const (
	CategoryPayments   Category = "payments"
	CategoryOperations Category = "operations"
)

// Defaults for the reconnect policy
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 2 * time.Second
)

// ErrorHandler is invoked when a subscription goes dormant after exhausting
// its reconnect budget
type ErrorHandler func(account string, category Category, err error)

// StreamFunc opens the underlying record stream; it blocks until the context
// is cancelled or the transport fails
type StreamFunc func(ctx context.Context, account, cursor string, handler ledger.OperationHandler) error

// Options tunes a subscription's reconnect policy
type Options struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

// Subscription is one long-lived cursor-based stream for a single
// (account, category) pair. Each subscription reconnects independently; there
// is no shared cursor or attempt counter across accounts.
type Subscription struct {
	account  string
	category Category
	streamFn StreamFunc
	handler  ledger.OperationHandler
	onError  ErrorHandler

	maxReconnectAttempts int
	reconnectDelay       time.Duration

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
	cursor   string
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}

	// Injectable for tests
	sleepFn func(ctx context.Context, d time.Duration) error
}

// New creates a subscription positioned at the present ( no backfill )
func New(account string, category Category, streamFn StreamFunc, handler ledger.OperationHandler, onError ErrorHandler, opts Options) *Subscription {
	if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	return &Subscription{
		account:              account,
		category:             category,
		streamFn:             streamFn,
		handler:              handler,
		onError:              onError,
		maxReconnectAttempts: opts.MaxReconnectAttempts,
		reconnectDelay:       opts.ReconnectDelay,
		state:                StateDisconnected,
		cursor:               ledger.CursorNow,
		done:                 make(chan struct{}),
		sleepFn:              sleepCtx,
	}
}

// Start opens the stream in a background goroutine
func (s *Subscription) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()
	go s.run(runCtx)
}

// Stop closes the stream. It is idempotent and safe to call concurrently
// with an in-flight reconnect attempt; the attempt will not re-arm.
func (s *Subscription) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.state = StateStopped
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	metrics.ActiveSubscriptions.Dec()
}

// Done is closed when the run loop exits
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// State returns the current connection phase
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the number of reconnect attempts made so far
func (s *Subscription) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// LastErr returns the most recent transport error
func (s *Subscription) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	for {
		if !s.transition(StateConnecting) {
			return
		}

		err := s.streamFn(ctx, s.account, s.currentCursor(), s.onRecord)

		// A clean exit only happens on cancellation
		if ctx.Err() != nil {
			s.transition(StateStopped)
			return
		}

		s.mu.Lock()
		s.lastErr = err
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if s.attempts >= s.maxReconnectAttempts {
			s.state = StateDormant
			s.mu.Unlock()

			metrics.StreamsDormant.Inc()
			slog.Error("Stream reconnect budget exhausted, going dormant",
				"account", s.account,
				"category", s.category,
				"attempts", s.attempts,
				"error", err,
			)
			if s.onError != nil {
				s.onError(s.account, s.category, err)
			}
			return
		}
		s.attempts++
		attempt := s.attempts
		s.state = StateReconnecting
		s.mu.Unlock()

		delay := s.reconnectDelay * time.Duration(attempt)
		metrics.StreamReconnects.Inc()
		slog.Warn("Stream disconnected, scheduling reconnect",
			"account", s.account,
			"category", s.category,
			"attempt", attempt,
			"max_attempts", s.maxReconnectAttempts,
			"delay", delay,
			"error", err,
		)

		if err := s.sleepFn(ctx, delay); err != nil {
			s.transition(StateStopped)
			return
		}
	}
}

// onRecord delivers a record and advances the cursor so a reconnect resumes
// where the stream left off instead of re-reading or skipping records
func (s *Subscription) onRecord(op operations.Operation) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.state = StateConnected
	if pt := op.PagingToken(); pt != "" {
		s.cursor = pt
	}
	s.mu.Unlock()

	s.handler(op)
}

// transition moves to next unless the subscription has been stopped.
// Returns false when stopped, so callers can bail out of the run loop.
func (s *Subscription) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.state = next
	return true
}

func (s *Subscription) currentCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
