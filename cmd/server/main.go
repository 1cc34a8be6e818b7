package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinsignal/config"
	"coinsignal/internal/api"
	"coinsignal/internal/gateway"
	"coinsignal/internal/kafka"
	"coinsignal/internal/logger"
	"coinsignal/internal/metrics"
	"coinsignal/internal/model"
	"coinsignal/internal/notification"
	"coinsignal/internal/scheduler"
	redisstore "coinsignal/internal/store/redis"
	sqlitestore "coinsignal/internal/store/sqlite"
	"coinsignal/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.Init("coinsignal", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting", "http", cfg.HTTPAddr, "metrics", cfg.MetricsAddr, "window", cfg.WindowSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()

	// ---- SQLite (required) ----
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("sqlite open failed", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Redis (optional, guarded by the breaker) ----
	rdb, err := redisstore.NewClient(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		slog.Warn("redis unavailable, running degraded", "error", err)
	}
	health.SetRedisConnected(err == nil)
	defer rdb.Close()

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
		}
		slog.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}
	cache := redisstore.NewCache(rdb, cb, cfg.CacheTTL)
	publisher := redisstore.NewPublisher(rdb, cb)
	publisher.OnBuffer = m.RedisUpdatesHeld.Inc

	// ---- Tracker & sinks ----
	tr, err := tracker.New(tracker.Config{
		WindowSize: cfg.WindowSize,
		Params:     cfg.Indicators,
		Thresholds: cfg.Thresholds,
	}, m)
	if err != nil {
		slog.Error("tracker init failed", "error", err)
		os.Exit(1)
	}

	signalLogCh := make(chan model.SignalUpdate, 1000)
	go store.Run(ctx, signalLogCh)
	tr.AddSink("sqlite", model.SignalSinkFunc(func(_ context.Context, u model.SignalUpdate) error {
		select {
		case signalLogCh <- u:
		default:
			slog.Warn("signal log channel full, dropping update", "symbol", u.Symbol, "date", u.Date)
		}
		return nil
	}))
	tr.AddSink("redis", publisher)

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, cfg.KafkaTopic)
		defer producer.Close()
		tr.AddSink("kafka", producer)
		health.SetKafkaEnabled(true)
		slog.Info("kafka producer enabled", "brokers", brokers, "topic", cfg.KafkaTopic)
	}

	hub := gateway.NewHub(m)
	defer hub.Close()
	tr.AddSink("websocket", hub)

	notifiers := notification.MultiNotifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	tr.AddSink("alerts", notification.NewAlertSink(notifiers))

	// ---- Warm windows from stored history ----
	seedTracker(ctx, store, tr, cfg.WindowSize)
	health.SetTrackedSymbols(len(tr.Symbols()))

	// ---- Scheduled rescans ----
	sched := scheduler.New(ctx, scheduler.Config{Spec: cfg.RescanCron, Lookback: cfg.WindowSize}, store, tr, m, health)
	if err := sched.Register(); err != nil {
		slog.Error("scheduler init failed", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// ---- Servers ----
	health.StartLivenessChecker(ctx, rdb, store.DB(), 15*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	handler := api.NewHandler(api.Deps{
		Store:      store,
		Signals:    store,
		Cache:      cache,
		Tracker:    tr,
		Hub:        hub,
		Metrics:    m,
		TOTPSecret: cfg.AdminTOTPSecret,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	cancel()
	slog.Info("stopped", "pending_redis_updates", publisher.Pending())
}

// seedTracker loads each stored symbol's recent window without emitting signals.
func seedTracker(ctx context.Context, store model.PriceReader, tr *tracker.Tracker, window int) {
	symbols, err := store.Symbols(ctx)
	if err != nil {
		slog.Warn("seed: list symbols failed", "error", err)
		return
	}
	for _, sym := range symbols {
		prices, err := store.ReadPrices(ctx, sym, window)
		if err != nil {
			slog.Warn("seed: read prices failed", "symbol", sym, "error", err)
			continue
		}
		tr.Seed(sym, prices)
	}
	slog.Info("tracker seeded", "symbols", len(symbols))
}
