// Package scheduler periodically rescans every stored symbol: reload its price
// history, recompute the bundle and signals, and fan them out.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"coinsignal/internal/logger"
	"coinsignal/internal/metrics"
	"coinsignal/internal/model"
)

// Evaluator recomputes and fans out signals for one symbol's history.
// *tracker.Tracker satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, prices []model.HistoricalPrice) (model.IndicatorBundle, model.SignalUpdate, error)
}

// Config configures the rescan job.
type Config struct {
	Spec     string // cron spec, e.g. "*/5 * * * *"
	Lookback int    // prices loaded per symbol; <= 0 loads everything
}

// Scheduler manages the rescan cron task.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	store  model.PriceReader
	eval   Evaluator
	m      *metrics.Metrics
	health *metrics.HealthStatus

	mu      sync.Mutex // one rescan at a time
	baseCtx context.Context
}

// New creates a scheduler. m and health may be nil.
func New(ctx context.Context, cfg Config, store model.PriceReader, eval Evaluator, m *metrics.Metrics, health *metrics.HealthStatus) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		cfg:     cfg,
		store:   store,
		eval:    eval,
		m:       m,
		health:  health,
		baseCtx: ctx,
	}
}

// Register adds the rescan job.
func (s *Scheduler) Register() error {
	if _, err := s.cron.AddFunc(s.cfg.Spec, s.tick); err != nil {
		return fmt.Errorf("register rescan %q: %w", s.cfg.Spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "spec", s.cfg.Spec)
}

// Stop stops the scheduler and waits for a running rescan to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.baseCtx); err != nil {
		slog.Error("rescan failed", "error", err)
	}
}

// RunOnce rescans every symbol now and returns how many were evaluated.
// Per-symbol failures are logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	symbols, err := s.store.Symbols(ctx)
	if err != nil {
		return 0, fmt.Errorf("list symbols: %w", err)
	}

	done := 0
	for _, sym := range symbols {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		symCtx := logger.WithTraceID(ctx, logger.GenerateTraceID(sym, time.Now()))

		prices, err := s.store.ReadPrices(symCtx, sym, s.cfg.Lookback)
		if err != nil {
			slog.Warn("rescan read failed", append([]any{"symbol", sym, "error", err}, logger.LogWithTrace(symCtx)...)...)
			continue
		}
		if _, _, err := s.eval.Evaluate(symCtx, sym, prices); err != nil {
			slog.Warn("rescan evaluate failed", append([]any{"symbol", sym, "error", err}, logger.LogWithTrace(symCtx)...)...)
			continue
		}
		done++
	}

	if s.m != nil {
		s.m.RescanRuns.Inc()
		s.m.RescanDur.Observe(time.Since(start).Seconds())
	}
	if s.health != nil {
		s.health.SetLastRescan(time.Now())
		s.health.SetTrackedSymbols(len(symbols))
	}
	slog.Info("rescan complete", "symbols", len(symbols), "evaluated", done, "took", time.Since(start))
	return done, nil
}
