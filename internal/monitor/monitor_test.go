package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/strkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletwatch/internal/ledger"
	"walletwatch/internal/models"
	"walletwatch/internal/stream"
)

func testAccount(t *testing.T, fill byte) string {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = fill
	}
	account, err := strkey.Encode(strkey.VersionByteAccountID, seed)
	require.NoError(t, err)
	return account
}

// fakeStreamer pushes queued records to the handler then blocks until cancel
type fakeStreamer struct {
	mu         sync.Mutex
	payments   []operations.Operation
	operations []operations.Operation
}

func (f *fakeStreamer) StreamPayments(ctx context.Context, account, cursor string, handler ledger.OperationHandler) error {
	f.mu.Lock()
	records := f.payments
	f.mu.Unlock()
	for _, op := range records {
		handler(op)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeStreamer) StreamOperations(ctx context.Context, account, cursor string, handler ledger.OperationHandler) error {
	f.mu.Lock()
	records := f.operations
	f.mu.Unlock()
	for _, op := range records {
		handler(op)
	}
	<-ctx.Done()
	return ctx.Err()
}

func payment(id string) operations.Payment {
	return operations.Payment{
		Base:   operations.Base{ID: id, PT: id, TransactionHash: "tx-" + id, LedgerCloseTime: time.Now()},
		Asset:  base.Asset{Type: "native"},
		From:   "GFROM",
		To:     "GTO",
		Amount: "5",
	}
}

func collect(events *[]models.LedgerEvent, mu *sync.Mutex) Listener {
	return func(e models.LedgerEvent) {
		mu.Lock()
		*events = append(*events, e)
		mu.Unlock()
	}
}

func TestStartMonitoringRejectsInvalidAccount(t *testing.T) {
	m := New(&fakeStreamer{}, stream.Options{}, nil)
	err := m.StartMonitoring(context.Background(), "not-an-account")
	require.Error(t, err)
}

func TestEventsDeduplicatedAcrossStreams(t *testing.T) {
	// The same payment arrives on both the payments and operations streams
	fs := &fakeStreamer{
		payments:   []operations.Operation{payment("42")},
		operations: []operations.Operation{payment("42")},
	}
	m := New(fs, stream.Options{MaxReconnectAttempts: 1, ReconnectDelay: time.Millisecond}, nil)

	var (
		mu     sync.Mutex
		events []models.LedgerEvent
	)
	m.On(models.EventKindPayment, collect(&events, &mu))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartMonitoring(ctx, testAccount(t, 1)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	m.StopAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, events, 1, "duplicate record IDs must emit once")
	assert.Equal(t, "42", events[0].ID)
}

func TestListenersCalledInRegistrationOrder(t *testing.T) {
	fs := &fakeStreamer{payments: []operations.Operation{payment("1")}}
	m := New(fs, stream.Options{MaxReconnectAttempts: 1, ReconnectDelay: time.Millisecond}, nil)

	var (
		mu    sync.Mutex
		order []string
	)
	m.On(models.EventKindPayment, func(models.LedgerEvent) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	m.On(models.EventKindPayment, func(models.LedgerEvent) {
		panic("listener bug")
	})
	m.On(models.EventKindPayment, func(models.LedgerEvent) {
		mu.Lock()
		order = append(order, "third")
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartMonitoring(ctx, testAccount(t, 2)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 5*time.Millisecond)
	m.StopAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "third"}, order,
		"a panicking listener must not block later listeners")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	fs := &fakeStreamer{payments: []operations.Operation{payment("9")}}
	m := New(fs, stream.Options{MaxReconnectAttempts: 1, ReconnectDelay: time.Millisecond}, nil)

	var (
		mu     sync.Mutex
		events []models.LedgerEvent
	)
	unsubscribe := m.On(models.EventKindPayment, collect(&events, &mu))
	unsubscribe()

	var (
		amu sync.Mutex
		all []models.LedgerEvent
	)
	m.OnAll(collect(&all, &amu))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartMonitoring(ctx, testAccount(t, 3)))

	require.Eventually(t, func() bool {
		amu.Lock()
		defer amu.Unlock()
		return len(all) == 1
	}, time.Second, 5*time.Millisecond)
	m.StopAll()

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, events, "unsubscribed listener must not be invoked")
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	fs := &fakeStreamer{}
	m := New(fs, stream.Options{MaxReconnectAttempts: 1, ReconnectDelay: time.Millisecond}, nil)
	account := testAccount(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartMonitoring(ctx, account))
	require.NoError(t, m.StartMonitoring(ctx, account))

	m.mu.Lock()
	assert.Len(t, m.accounts[account], 2, "restart must not duplicate streams")
	m.mu.Unlock()

	m.StopMonitoring(account)
	m.StopMonitoring(account)
	m.StopMonitoring("never-started")
}
