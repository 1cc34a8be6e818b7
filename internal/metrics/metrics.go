package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal service.
type Metrics struct {
	// Indicator computation
	ComputeDur   prometheus.Histogram
	BundlesTotal prometheus.Counter
	SignalsTotal *prometheus.CounterVec // labels: indicator, signal

	// Ingest
	PricesIngested prometheus.Counter

	// Cache
	CacheLookups *prometheus.CounterVec // labels: result=hit|miss|error

	// Live tracker
	WindowEvictions prometheus.Counter

	// Fan-out
	SinkErrors *prometheus.CounterVec // labels: sink

	// HTTP surface
	HTTPRequests *prometheus.CounterVec // labels: route, method, code
	HTTPDuration *prometheus.HistogramVec
	WSClients    prometheus.Gauge

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisUpdatesHeld         prometheus.Counter

	// Scheduled rescans
	RescanRuns prometheus.Counter
	RescanDur  prometheus.Histogram
}

// NewMetrics registers and returns all metrics on reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinsignal_compute_duration_seconds",
			Help:    "Indicator bundle + signal computation latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		BundlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinsignal_bundles_computed_total",
			Help: "Total indicator bundles computed",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsignal_signals_total",
			Help: "Signals synthesized (by indicator and kind)",
		}, []string{"indicator", "signal"}),

		PricesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinsignal_prices_ingested_total",
			Help: "Price points written to the store",
		}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsignal_cache_lookups_total",
			Help: "Bundle cache lookups (hit, miss, error)",
		}, []string{"result"}),

		WindowEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinsignal_window_evictions_total",
			Help: "Prices dropped from the front of a live tracker window",
		}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsignal_sink_errors_total",
			Help: "Signal fan-out failures per sink",
		}, []string{"sink"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coinsignal_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"route", "method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coinsignal_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinsignal_ws_clients",
			Help: "Connected websocket clients",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coinsignal_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinsignal_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisUpdatesHeld: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinsignal_redis_updates_held_total",
			Help: "Signal updates held back while the Redis breaker was open",
		}),

		RescanRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coinsignal_rescan_runs_total",
			Help: "Scheduled rescans executed",
		}),
		RescanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinsignal_rescan_duration_seconds",
			Help:    "Duration of a full scheduled rescan",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ComputeDur,
		m.BundlesTotal,
		m.SignalsTotal,
		m.PricesIngested,
		m.CacheLookups,
		m.WindowEvictions,
		m.SinkErrors,
		m.HTTPRequests,
		m.HTTPDuration,
		m.WSClients,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisUpdatesHeld,
		m.RescanRuns,
		m.RescanDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	KafkaEnabled   bool      `json:"kafka_enabled"`
	LastRescanAt   time.Time `json:"last_rescan_at"`
	TrackedSymbols int       `json:"tracked_symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetKafkaEnabled(v bool) {
	h.mu.Lock()
	h.KafkaEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastRescan(t time.Time) {
	h.mu.Lock()
	h.LastRescanAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetTrackedSymbols(n int) {
	h.mu.Lock()
	h.TrackedSymbols = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. SQLite is required; Redis only
// degrades the service since the cache and publisher are optional.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	switch {
	case !h.SQLiteOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case !h.RedisConnected:
		overallStatus = "degraded"
	}

	lastRescan := ""
	if !h.LastRescanAt.IsZero() {
		lastRescan = h.LastRescanAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		KafkaEnabled    bool    `json:"kafka_enabled"`
		TrackedSymbols  int     `json:"tracked_symbols"`
		LastRescanAt    string  `json:"last_rescan_at"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		KafkaEnabled:    h.KafkaEnabled,
		TrackedSymbols:  h.TrackedSymbols,
		LastRescanAt:    lastRescan,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. gatherer defaults to the
// Prometheus default gatherer when nil.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the underlying mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
