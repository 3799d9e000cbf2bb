package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func countingFetcher(calls *atomic.Int64, values map[string]map[string]interface{}) Fetcher {
	return func(_ context.Context, key string) (map[string]interface{}, error) {
		n := calls.Add(1)
		if values != nil {
			if v, ok := values[key]; ok {
				return v, nil
			}
		}
		return map[string]interface{}{"key": key, "fetch": n}, nil
	}
}

func TestGetWithinTTLFetchesOnce(t *testing.T) {
	var calls atomic.Int64
	clock := newFakeClock()
	c := New(countingFetcher(&calls, nil), time.Minute)
	c.nowFn = clock.Now
	ctx := context.Background()

	first, err := c.Get(ctx, "GACC")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	second, err := c.Get(ctx, "GACC")
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "a fresh entry must not refetch")
	assert.Equal(t, first, second)
}

func TestGetAfterTTLRefetches(t *testing.T) {
	var calls atomic.Int64
	clock := newFakeClock()
	c := New(countingFetcher(&calls, nil), time.Minute)
	c.nowFn = clock.Now
	ctx := context.Background()

	_, err := c.Get(ctx, "GACC")
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	refreshed, err := c.Get(ctx, "GACC")
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, int64(2), refreshed["fetch"], "the returned value must reflect the second fetch")
}

func TestFetchErrorKeepsStaleEntry(t *testing.T) {
	clock := newFakeClock()
	failing := errors.New("horizon unavailable")
	var fail atomic.Bool

	fetcher := func(_ context.Context, key string) (map[string]interface{}, error) {
		if fail.Load() {
			return nil, failing
		}
		return map[string]interface{}{"balance": "10"}, nil
	}
	c := New(fetcher, time.Minute)
	c.nowFn = clock.Now
	ctx := context.Background()

	_, err := c.Get(ctx, "GACC")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	fail.Store(true)

	_, err = c.Get(ctx, "GACC")
	require.ErrorIs(t, err, failing, "fetch errors propagate to the caller")

	stale, ok := c.Peek("GACC")
	require.True(t, ok, "a failed refresh must not discard the stale entry")
	assert.Equal(t, "10", stale["balance"])
}

func TestOnChangePublishesRefetchedValue(t *testing.T) {
	var calls atomic.Int64
	clock := newFakeClock()
	c := New(countingFetcher(&calls, nil), time.Minute)
	c.nowFn = clock.Now
	ctx := context.Background()

	var (
		mu       sync.Mutex
		received []map[string]interface{}
	)
	unsubscribe := c.OnChange("GACC", func(value map[string]interface{}) {
		mu.Lock()
		received = append(received, value)
		mu.Unlock()
	})

	_, err := c.Get(ctx, "GACC")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = c.Get(ctx, "GACC")
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, received, 2, "every fetch publishes to key subscribers")
	mu.Unlock()

	unsubscribe()
	clock.Advance(2 * time.Minute)
	_, err = c.Get(ctx, "GACC")
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, received, 2, "unsubscribed listeners receive nothing")
	mu.Unlock()
}

func TestOnChangeIsKeyScoped(t *testing.T) {
	var calls atomic.Int64
	c := New(countingFetcher(&calls, nil), time.Minute)
	ctx := context.Background()

	var notified atomic.Int64
	c.OnChange("GOTHER", func(map[string]interface{}) {
		notified.Add(1)
	})

	_, err := c.Get(ctx, "GACC")
	require.NoError(t, err)
	assert.Zero(t, notified.Load())
}

func TestEvictForcesRefetch(t *testing.T) {
	var calls atomic.Int64
	c := New(countingFetcher(&calls, nil), time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "GACC")
	require.NoError(t, err)
	c.Evict("GACC")

	_, err = c.Get(ctx, "GACC")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestClearRemovesEverything(t *testing.T) {
	var calls atomic.Int64
	c := New(countingFetcher(&calls, nil), time.Minute)
	ctx := context.Background()

	_, err := c.Get(ctx, "GA")
	require.NoError(t, err)
	_, err = c.Get(ctx, "GB")
	require.NoError(t, err)

	c.Clear()
	_, ok := c.Peek("GA")
	assert.False(t, ok)
	_, ok = c.Peek("GB")
	assert.False(t, ok)
}

func TestConcurrentStaleGetsIssueSingleFetch(t *testing.T) {
	var calls atomic.Int64
	slow := func(_ context.Context, key string) (map[string]interface{}, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return map[string]interface{}{"ok": true}, nil
	}
	c := New(slow, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(ctx, "GACC")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "the per-key lock collapses concurrent misses")
}
