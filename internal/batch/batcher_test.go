package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletwatch/internal/models"
)

type captureSink struct {
	mu      sync.Mutex
	batches []models.EventBatch
	err     error
}

func (s *captureSink) Flush(_ context.Context, batch models.EventBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *captureSink) snapshot() []models.EventBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventBatch, len(s.batches))
	copy(out, s.batches)
	return out
}

func event(i int) models.LedgerEvent {
	return models.LedgerEvent{ID: fmt.Sprintf("ev-%d", i), Kind: models.EventKindPayment}
}

func TestSizeTriggeredFlushPartitionsInOrder(t *testing.T) {
	sink := &captureSink{}
	b := New(sink, 10, time.Hour) // age timer effectively disabled
	b.Start()
	defer b.Close()

	for i := 0; i < 30; i++ {
		b.Add(event(i))
	}

	batches := sink.snapshot()
	require.Len(t, batches, 3, "30 events at size 10 must seal exactly 3 batches")

	next := 0
	for _, batch := range batches {
		assert.Equal(t, 10, batch.Size())
		for _, ev := range batch.Events {
			assert.Equal(t, fmt.Sprintf("ev-%d", next), ev.ID, "order must be preserved, nothing dropped or duplicated")
			next++
		}
	}
	assert.Equal(t, 30, next)
}

func TestTimerFlushesPartialBatchExactlyOnce(t *testing.T) {
	sink := &captureSink{}
	b := New(sink, 10, 20*time.Millisecond)
	b.Start()
	defer b.Close()

	b.Add(event(0))
	b.Add(event(1))
	b.Add(event(2))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	// Further ticks with an empty buffer must not produce empty batches
	time.Sleep(60 * time.Millisecond)
	batches := sink.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, 3, batches[0].Size())
}

func TestCloseFlushesRemainingPartialBatch(t *testing.T) {
	sink := &captureSink{}
	b := New(sink, 10, time.Hour)
	b.Start()

	// 25 events back to back, no timer: 2 full batches now, 5 pending
	for i := 0; i < 25; i++ {
		b.Add(event(i))
	}
	require.Len(t, sink.snapshot(), 2)

	b.Close()

	batches := sink.snapshot()
	require.Len(t, batches, 3)
	assert.Equal(t, 10, batches[0].Size())
	assert.Equal(t, 10, batches[1].Size())
	assert.Equal(t, 5, batches[2].Size())

	// Adds after close are discarded, and Close stays idempotent
	b.Add(event(99))
	b.Close()
	assert.Len(t, sink.snapshot(), 3)
}

func TestSinkFailureDropsBatchWithoutRequeue(t *testing.T) {
	sink := &captureSink{err: errors.New("sink unavailable")}
	b := New(sink, 2, time.Hour)
	b.Start()
	defer b.Close()

	b.Add(event(0))
	b.Add(event(1))

	// Sink recovers; the failed batch must not reappear
	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	b.Add(event(2))
	b.Add(event(3))

	batches := sink.snapshot()
	require.Len(t, batches, 1, "failed batch is dropped, not requeued")
	assert.Equal(t, "ev-2", batches[0].Events[0].ID)
}

func TestDefaultsApplied(t *testing.T) {
	b := New(&captureSink{}, 0, 0)
	assert.Equal(t, DefaultMaxBatchSize, b.maxSize)
	assert.Equal(t, DefaultMaxBatchAge, b.maxAge)
}
