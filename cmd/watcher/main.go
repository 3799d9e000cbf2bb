package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"walletwatch/internal/batch"
	"walletwatch/internal/cache"
	"walletwatch/internal/config"
	"walletwatch/internal/ledger"
	"walletwatch/internal/models"
	"walletwatch/internal/monitor"
	"walletwatch/internal/notify"
	"walletwatch/internal/storage"
	"walletwatch/internal/stream"
	"walletwatch/internal/syncer"
)

const batchStreamName = "walletwatch:batches"

func main() {
	fmt.Println("🌟 Starting Wallet Watcher...")

	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"horizon", cfg.HorizonURL,
		"accounts", len(cfg.WatchedAccounts),
		"log_level", cfg.LogLevel,
	)

	// 3. Initialize database connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer repository.Close()
	slog.Info("Database connected successfully")

	// 4. Create Horizon client
	client := ledger.NewClient(cfg.HorizonURL)

	// 5. Batch sink: Redis stream when configured, structured log otherwise
	var sink batch.Sink = batch.LogSink{}
	if cfg.RedisURL != "" {
		redisSink, err := batch.NewRedisStreamSink(ctx, cfg.RedisURL, batchStreamName)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisSink.Close()
		sink = redisSink
		slog.Info("Redis batch sink connected", "stream", batchStreamName)
	}

	batcher := batch.New(sink, cfg.MaxBatchSize, cfg.MaxBatchAge)
	batcher.Start()

	// 6. Account state cache
	stateCache := cache.New(ledger.AccountStateFetcher(client), cfg.CacheTTL)
	for _, account := range cfg.WatchedAccounts {
		account := account
		stateCache.OnChange(account, func(state map[string]interface{}) {
			slog.Debug("Account state refreshed", "account", account, "sequence", state["sequence"])
		})
	}

	// 7. Notification pipeline
	prefs := notify.NewPreferencesStore(repository)
	if err := prefs.Load(ctx); err != nil {
		slog.Warn("Failed to load notification preferences, using defaults", "error", err)
	}
	history := notify.NewHistory(repository, models.DefaultHistoryLimit)
	if err := history.Load(ctx); err != nil {
		slog.Warn("Failed to load notification history", "error", err)
	}

	notifier := notify.MultiNotifier{notify.LogNotifier{}}
	if cfg.NotifyWebhookURL != "" {
		notifier = append(notifier, notify.NewWebhookNotifier(cfg.NotifyWebhookURL))
	}
	throttler := notify.NewThrottler(prefs, history, notifier)

	// 8. Sync engine
	engine := syncer.New(client, repository, syncer.Options{
		InitialPageSize:     cfg.InitialPageSize,
		IncrementalPageSize: cfg.IncrementalPageSize,
	})
	engine.OnStateChange(func(state models.SyncState) {
		slog.Debug("Sync state changed", "status", state.Status, "total_synced", state.TotalSynced)
	})

	// 9. Event monitor
	onDormant := func(account string, category stream.Category, err error) {
		slog.Error("Stream went dormant, manual restart required",
			"account", account,
			"category", category,
			"error", err,
		)
	}
	mon := monitor.New(client, stream.Options{
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectDelay:       cfg.ReconnectDelay,
	}, onDormant)

	mon.OnAll(batcher.Add)
	mon.OnAll(func(event models.LedgerEvent) {
		throttler.Handle(ctx, event)
	})
	// A balance-moving event invalidates the cached account state
	mon.OnAll(func(event models.LedgerEvent) {
		stateCache.Evict(event.Account)
		if _, err := stateCache.Get(ctx, event.Account); err != nil {
			slog.Warn("Account state refresh failed", "account", event.Account, "error", err)
		}
	})

	// 10. Reconcile history one account at a time; the engine runs a single
	// sync at once, so concurrent startup syncs would reject each other
	for _, account := range cfg.WatchedAccounts {
		if err := engine.SyncOnConnect(ctx, account); err != nil {
			slog.Warn("Startup sync failed, streaming anyway", "account", account, "error", err)
		}
	}

	// Then bring the streams online in parallel. The subscriptions bind to
	// the app context, not the group's, which is canceled once Wait returns.
	var group errgroup.Group
	for _, account := range cfg.WatchedAccounts {
		account := account
		group.Go(func() error {
			return mon.StartMonitoring(ctx, account)
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatalf("❌ Failed to start monitoring: %v", err)
	}

	stopAutoSync := make([]func(), 0, len(cfg.WatchedAccounts))
	for _, account := range cfg.WatchedAccounts {
		stopAutoSync = append(stopAutoSync, engine.StartAutoSync(ctx, account, cfg.AutoSyncInterval))
	}

	// 11. Metrics endpoint
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		slog.Info("Metrics endpoint listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	// 12. Wait for interrupt
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")

	for _, stop := range stopAutoSync {
		stop()
	}
	mon.StopAll()
	// Close after the streams stop so the final partial batch still flushes
	batcher.Close()
	metricsServer.Close()
	cancel()

	slog.Info("Wallet watcher stopped")
}
