package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event pipeline metrics - Track classification and delivery volume
var (
	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_events_classified_total",
			Help: "Total number of ledger records classified into events, by kind",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_events_dropped_total",
		Help: "Total number of ledger records dropped as unrecognized",
	})

	BatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_batches_flushed_total",
		Help: "Total number of event batches flushed to the sink",
	})

	BatchFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_batch_flush_errors_total",
		Help: "Total number of batch flushes rejected by the sink",
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletwatch_batch_size",
		Help:    "Number of events in each flushed batch",
		Buckets: []float64{1, 2, 5, 10, 20, 50},
	})
)

// Notification metrics
var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_notifications_sent_total",
			Help: "Total number of notifications dispatched, by kind",
		},
		[]string{"kind"},
	)

	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_notifications_suppressed_total",
			Help: "Total number of notifications suppressed, by kind and reason",
		},
		[]string{"kind", "reason"},
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_cache_hits_total",
		Help: "Total number of cache reads served from a fresh entry",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_cache_misses_total",
		Help: "Total number of cache reads that triggered a fetch",
	})

	CacheFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_cache_fetch_errors_total",
		Help: "Total number of cache refresh fetches that failed",
	})
)

// Sync metrics
var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_sync_runs_total",
			Help: "Total number of sync runs, by result",
		},
		[]string{"result"},
	)

	TransactionsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_transactions_synced_total",
		Help: "Total number of transactions persisted by the sync engine",
	})
)

// Stream metrics - Track subscription health
var (
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_stream_reconnects_total",
		Help: "Total number of stream reconnect attempts",
	})

	StreamsDormant = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletwatch_streams_dormant_total",
		Help: "Total number of streams that exhausted their reconnect budget",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "walletwatch_active_subscriptions",
		Help: "Number of currently open stream subscriptions",
	})
)
