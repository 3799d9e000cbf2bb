package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"walletwatch/internal/metrics"
	"walletwatch/internal/models"
)

// Defaults for batch sealing
const (
	DefaultMaxBatchSize = 10
	DefaultMaxBatchAge  = time.Second
)

// flushTimeout bounds one sink delivery attempt
const flushTimeout = 5 * time.Second

// Sink receives sealed batches. Delivery is at most once: a failed flush is
// logged and dropped, never requeued, since batches are ephemeral.
type Sink interface {
	Flush(ctx context.Context, batch models.EventBatch) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, batch models.EventBatch) error

// Flush calls f
func (f SinkFunc) Flush(ctx context.Context, batch models.EventBatch) error {
	return f(ctx, batch)
}

// Batcher buffers classified events and flushes them as one sealed batch when
// either the size threshold is reached or the age timer fires, whichever
// comes first.
type Batcher struct {
	sink    Sink
	maxSize int
	maxAge  time.Duration

	mu      sync.Mutex
	pending []models.LedgerEvent
	closed  bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	nowFn func() time.Time
}

// New creates a batcher. Zero thresholds fall back to the defaults.
func New(sink Sink, maxSize int, maxAge time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxBatchSize
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxBatchAge
	}
	return &Batcher{
		sink:    sink,
		maxSize: maxSize,
		maxAge:  maxAge,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		nowFn:   time.Now,
	}
}

// Start launches the age timer loop
func (b *Batcher) Start() {
	go b.run()
}

// Add appends an event to the pending batch, sealing and flushing it when the
// size threshold is reached
func (b *Batcher) Add(event models.LedgerEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, event)
	var sealed models.EventBatch
	if len(b.pending) >= b.maxSize {
		sealed = b.sealLocked()
	}
	b.mu.Unlock()

	if sealed.Size() > 0 {
		b.flush(sealed)
	}
}

// Close stops the timer loop and flushes any remaining partial batch so no
// event is silently dropped on shutdown. Safe to call more than once.
func (b *Batcher) Close() {
	b.stopOnce.Do(func() {
		close(b.stop)
		<-b.done

		b.mu.Lock()
		b.closed = true
		sealed := b.sealLocked()
		b.mu.Unlock()

		if sealed.Size() > 0 {
			b.flush(sealed)
		}
	})
}

func (b *Batcher) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.maxAge)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			sealed := b.sealLocked()
			b.mu.Unlock()

			if sealed.Size() > 0 {
				b.flush(sealed)
			}
		}
	}
}

// sealLocked takes ownership of the pending events; caller holds b.mu
func (b *Batcher) sealLocked() models.EventBatch {
	if len(b.pending) == 0 {
		return models.EventBatch{}
	}
	sealed := models.EventBatch{Events: b.pending, SealedAt: b.nowFn()}
	b.pending = nil
	return sealed
}

func (b *Batcher) flush(batch models.EventBatch) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := b.sink.Flush(ctx, batch); err != nil {
		metrics.BatchFlushErrors.Inc()
		slog.Error("Batch flush failed, dropping batch", "size", batch.Size(), "error", err)
		return
	}
	metrics.BatchesFlushed.Inc()
	metrics.BatchSize.Observe(float64(batch.Size()))
	slog.Debug("Batch flushed", "size", batch.Size())
}
