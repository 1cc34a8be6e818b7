// Package tracker keeps a sliding price window per symbol and recomputes the
// indicator bundle and signals whenever a new price arrives, fanning the
// result out to registered sinks.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"coinsignal/internal/indicator"
	"coinsignal/internal/logger"
	"coinsignal/internal/metrics"
	"coinsignal/internal/model"
	"coinsignal/internal/ringbuf"
	"coinsignal/internal/strategy"
)

// ErrInvalidPrice is returned by Observe for a non-finite price or empty date.
var ErrInvalidPrice = errors.New("invalid price")

// Config configures a Tracker.
type Config struct {
	WindowSize int
	Params     indicator.Params
	Thresholds strategy.Thresholds
}

type namedSink struct {
	name string
	sink model.SignalSink
}

type symbolState struct {
	mu     sync.Mutex // serializes recompute + fan-out per symbol
	window *ringbuf.Window
}

// Tracker is safe for concurrent use. Updates for one symbol are delivered to
// sinks in observation order; different symbols proceed in parallel.
type Tracker struct {
	cfg   Config
	synth *strategy.Synthesizer
	m     *metrics.Metrics

	mu      sync.RWMutex
	symbols map[string]*symbolState
	latest  map[string]model.SignalUpdate
	sinks   []namedSink
}

// New creates a tracker. m may be nil.
func New(cfg Config, m *metrics.Metrics) (*Tracker, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("tracker thresholds: %w", err)
	}
	if cfg.WindowSize < cfg.Params.MinPoints() {
		cfg.WindowSize = cfg.Params.MinPoints()
	}
	return &Tracker{
		cfg:     cfg,
		synth:   strategy.NewSynthesizer(cfg.Thresholds),
		m:       m,
		symbols: make(map[string]*symbolState),
		latest:  make(map[string]model.SignalUpdate),
	}, nil
}

// AddSink registers a sink. Sinks are called in registration order.
func (t *Tracker) AddSink(name string, s model.SignalSink) {
	t.mu.Lock()
	t.sinks = append(t.sinks, namedSink{name: name, sink: s})
	t.mu.Unlock()
}

// Compute runs the indicators and synthesizer over prices without touching any
// tracker state or sinks.
func (t *Tracker) Compute(prices []model.HistoricalPrice) (model.IndicatorBundle, []model.TradingSignal, error) {
	start := time.Now()
	bundle, err := indicator.CalculateAllWith(prices, t.cfg.Params)
	if err != nil {
		return bundle, nil, err
	}
	signals := t.synth.Signals(bundle)

	if t.m != nil {
		t.m.ComputeDur.Observe(time.Since(start).Seconds())
		t.m.BundlesTotal.Inc()
		for _, s := range signals {
			t.m.SignalsTotal.WithLabelValues(s.Indicator, string(s.Signal)).Inc()
		}
	}
	return bundle, signals, nil
}

// Signals synthesizes signals for an already computed bundle.
func (t *Tracker) Signals(bundle model.IndicatorBundle) []model.TradingSignal {
	return t.synth.Signals(bundle)
}

// Params returns the indicator parameters in use.
func (t *Tracker) Params() indicator.Params { return t.cfg.Params }

// MinPoints is the window length below which Observe does not recompute.
func (t *Tracker) MinPoints() int {
	if n := t.cfg.Params.MinPoints(); n > indicator.MinBundlePoints {
		return n
	}
	return indicator.MinBundlePoints
}

// Seed replaces symbol's window with the tail of prices without emitting.
func (t *Tracker) Seed(symbol string, prices []model.HistoricalPrice) {
	st := t.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.window = ringbuf.New(t.cfg.WindowSize)
	for _, p := range indicator.Normalize(prices) {
		st.window.Push(p)
	}
}

// Observe appends p to symbol's window (replacing the newest point when the
// date matches) and, once the window holds MinPoints prices, recomputes and
// fans out. It returns nil when there is not enough data yet.
func (t *Tracker) Observe(ctx context.Context, symbol string, p model.HistoricalPrice) (*model.SignalUpdate, error) {
	if p.Date == "" || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return nil, fmt.Errorf("%w: %s@%q=%v", ErrInvalidPrice, symbol, p.Date, p.Price)
	}

	st := t.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	if last, ok := st.window.Last(); ok && last.Date == p.Date {
		st.window.ReplaceLast(p)
	} else if st.window.Push(p) && t.m != nil {
		t.m.WindowEvictions.Inc()
	}

	if st.window.Len() < t.MinPoints() {
		return nil, nil
	}
	update, err := t.evaluate(ctx, symbol, st.window.Snapshot())
	if err != nil {
		return nil, err
	}
	return &update, nil
}

// Evaluate recomputes signals over a full price series for symbol, reseeds its
// window and fans the update out. Used by rescans and bulk ingest.
func (t *Tracker) Evaluate(ctx context.Context, symbol string, prices []model.HistoricalPrice) (model.IndicatorBundle, model.SignalUpdate, error) {
	clean := indicator.Normalize(prices)

	st := t.state(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.window = ringbuf.New(t.cfg.WindowSize)
	for _, p := range clean {
		st.window.Push(p)
	}

	bundle, signals, err := t.Compute(clean)
	if err != nil {
		return bundle, model.SignalUpdate{}, err
	}
	update := model.SignalUpdate{Symbol: symbol, Date: lastDate(clean), Signals: signals}
	t.fanOut(ctx, update)
	return bundle, update, nil
}

// Latest returns the most recent update emitted for symbol.
func (t *Tracker) Latest(symbol string) (model.SignalUpdate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.latest[symbol]
	if !ok {
		return u, false
	}
	return copyUpdate(u), true
}

// Symbols lists tracked symbols, sorted.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.symbols))
	for s := range t.symbols {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Window returns a snapshot of symbol's current window.
func (t *Tracker) Window(symbol string) []model.HistoricalPrice {
	t.mu.RLock()
	st, ok := t.symbols[symbol]
	t.mu.RUnlock()
	if !ok {
		return []model.HistoricalPrice{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.window.Snapshot()
}

func (t *Tracker) evaluate(ctx context.Context, symbol string, prices []model.HistoricalPrice) (model.SignalUpdate, error) {
	_, signals, err := t.Compute(prices)
	if err != nil {
		return model.SignalUpdate{}, err
	}
	update := model.SignalUpdate{Symbol: symbol, Date: lastDate(prices), Signals: signals}
	t.fanOut(ctx, update)
	return update, nil
}

// fanOut records update as latest and hands every sink its own copy. Sink
// errors are logged and counted; they never stop delivery to other sinks.
func (t *Tracker) fanOut(ctx context.Context, update model.SignalUpdate) {
	t.mu.Lock()
	t.latest[update.Symbol] = copyUpdate(update)
	sinks := append([]namedSink(nil), t.sinks...)
	t.mu.Unlock()

	if logger.TraceID(ctx) == "" {
		ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(update.Symbol, time.Now()))
	}
	for _, s := range sinks {
		if err := s.sink.OnSignalChange(ctx, copyUpdate(update)); err != nil {
			slog.Warn("signal sink failed",
				append([]any{"sink", s.name, "symbol", update.Symbol, "error", err}, logger.LogWithTrace(ctx)...)...)
			if t.m != nil {
				t.m.SinkErrors.WithLabelValues(s.name).Inc()
			}
		}
	}
}

func (t *Tracker) state(symbol string) *symbolState {
	t.mu.RLock()
	st, ok := t.symbols[symbol]
	t.mu.RUnlock()
	if ok {
		return st
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok = t.symbols[symbol]; ok {
		return st
	}
	st = &symbolState{window: ringbuf.New(t.cfg.WindowSize)}
	t.symbols[symbol] = st
	return st
}

func copyUpdate(u model.SignalUpdate) model.SignalUpdate {
	u.Signals = append([]model.TradingSignal(nil), u.Signals...)
	return u
}

func lastDate(prices []model.HistoricalPrice) string {
	if len(prices) == 0 {
		return ""
	}
	return prices[len(prices)-1].Date
}
