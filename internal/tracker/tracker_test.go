package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsignal/internal/indicator"
	"coinsignal/internal/metrics"
	"coinsignal/internal/model"
	"coinsignal/internal/strategy"
)

func day(i int) string {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")
}

func newTracker(t *testing.T, window int) *Tracker {
	t.Helper()
	tr, err := New(Config{
		WindowSize: window,
		Params:     indicator.DefaultParams(),
		Thresholds: strategy.DefaultThresholds(),
	}, metrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	return tr
}

type recordingSink struct {
	mu      sync.Mutex
	updates []model.SignalUpdate
	err     error
}

func (r *recordingSink) OnSignalChange(_ context.Context, u model.SignalUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func TestObserve_WaitsForMinPoints(t *testing.T) {
	tr := newTracker(t, 50)
	sink := &recordingSink{}
	tr.AddSink("rec", sink)
	ctx := context.Background()

	for i := 0; i < indicator.MinBundlePoints-1; i++ {
		u, err := tr.Observe(ctx, "BTC", model.HistoricalPrice{Date: day(i), Price: 100 + float64(i%5)})
		require.NoError(t, err)
		assert.Nil(t, u)
	}
	assert.Zero(t, sink.count())
	_, ok := tr.Latest("BTC")
	assert.False(t, ok)

	u, err := tr.Observe(ctx, "BTC", model.HistoricalPrice{Date: day(25), Price: 101})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "BTC", u.Symbol)
	assert.Equal(t, day(25), u.Date)
	require.Len(t, u.Signals, 3)
	assert.Equal(t, model.IndicatorRSI, u.Signals[0].Indicator)
	assert.Equal(t, model.IndicatorMACD, u.Signals[1].Indicator)
	assert.Equal(t, model.IndicatorBollinger, u.Signals[2].Indicator)
	assert.Equal(t, 1, sink.count())

	latest, ok := tr.Latest("BTC")
	require.True(t, ok)
	assert.Equal(t, *u, latest)
}

func TestObserve_SameDateReplacesNewest(t *testing.T) {
	tr := newTracker(t, 30)
	ctx := context.Background()

	_, err := tr.Observe(ctx, "ETH", model.HistoricalPrice{Date: day(0), Price: 10})
	require.NoError(t, err)
	_, err = tr.Observe(ctx, "ETH", model.HistoricalPrice{Date: day(0), Price: 12})
	require.NoError(t, err)

	w := tr.Window("ETH")
	require.Len(t, w, 1)
	assert.Equal(t, 12.0, w[0].Price)
}

func TestObserve_WindowSlides(t *testing.T) {
	tr := newTracker(t, 30)
	ctx := context.Background()
	for i := 0; i < 45; i++ {
		_, err := tr.Observe(ctx, "SOL", model.HistoricalPrice{Date: day(i), Price: float64(i + 1)})
		require.NoError(t, err)
	}
	w := tr.Window("SOL")
	require.Len(t, w, 30)
	assert.Equal(t, day(15), w[0].Date)
	assert.Equal(t, day(44), w[29].Date)
}

func TestObserve_RejectsInvalidPrice(t *testing.T) {
	tr := newTracker(t, 30)
	ctx := context.Background()

	for _, p := range []model.HistoricalPrice{
		{Date: day(0), Price: math.NaN()},
		{Date: day(0), Price: math.Inf(-1)},
		{Date: "", Price: 1},
	} {
		_, err := tr.Observe(ctx, "BTC", p)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}
	assert.Empty(t, tr.Window("BTC"))
}

func TestFanOut_SinkErrorDoesNotStopDelivery(t *testing.T) {
	tr := newTracker(t, 40)
	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}
	tr.AddSink("failing", failing)
	tr.AddSink("ok", ok)

	prices := make([]model.HistoricalPrice, 40)
	for i := range prices {
		prices[i] = model.HistoricalPrice{Date: day(i), Price: 100 + math.Sin(float64(i))}
	}
	_, _, err := tr.Evaluate(context.Background(), "ADA", prices)
	require.NoError(t, err)

	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count())
}

func TestFanOut_SinksReceiveIndependentCopies(t *testing.T) {
	tr := newTracker(t, 40)
	mutator := model.SignalSinkFunc(func(_ context.Context, u model.SignalUpdate) error {
		u.Signals[0].Signal = "tampered"
		return nil
	})
	rec := &recordingSink{}
	tr.AddSink("mutator", mutator)
	tr.AddSink("rec", rec)

	prices := make([]model.HistoricalPrice, 30)
	for i := range prices {
		prices[i] = model.HistoricalPrice{Date: day(i), Price: float64(100 - i)}
	}
	_, update, err := tr.Evaluate(context.Background(), "DOT", prices)
	require.NoError(t, err)

	assert.Equal(t, model.SignalBuy, update.Signals[0].Signal)
	assert.Equal(t, model.SignalBuy, rec.updates[0].Signals[0].Signal)
	latest, _ := tr.Latest("DOT")
	assert.Equal(t, model.SignalBuy, latest.Signals[0].Signal)
}

func TestEvaluate_ReseedsWindowAndReturnsBundle(t *testing.T) {
	tr := newTracker(t, 30)
	prices := make([]model.HistoricalPrice, 0, 60)
	for i := 59; i >= 0; i-- {
		prices = append(prices, model.HistoricalPrice{Date: day(i), Price: 50 + float64(i%7)})
	}

	bundle, update, err := tr.Evaluate(context.Background(), "LTC", prices)
	require.NoError(t, err)
	assert.Len(t, bundle.RSI, 60-indicator.DefaultRSIPeriod)
	assert.Equal(t, day(59), update.Date)

	w := tr.Window("LTC")
	require.Len(t, w, 30)
	assert.Equal(t, day(30), w[0].Date)
	assert.Equal(t, []string{"LTC"}, tr.Symbols())
}

func TestCompute_DoesNotTouchState(t *testing.T) {
	tr := newTracker(t, 30)
	sink := &recordingSink{}
	tr.AddSink("rec", sink)

	bundle, signals, err := tr.Compute([]model.HistoricalPrice{{Date: day(0), Price: 1}})
	require.NoError(t, err)
	assert.True(t, bundle.Empty())
	require.Len(t, signals, 3)
	for _, s := range signals {
		assert.Equal(t, model.SignalNeutral, s.Signal)
	}
	assert.Zero(t, sink.count())
	assert.Empty(t, tr.Symbols())
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	p := indicator.DefaultParams()
	p.MACDFast = 30
	_, err := New(Config{Params: p, Thresholds: strategy.DefaultThresholds()}, nil)
	assert.ErrorIs(t, err, indicator.ErrInvalidParams)

	tr, err := New(Config{WindowSize: 1, Params: indicator.DefaultParams(), Thresholds: strategy.DefaultThresholds()}, nil)
	require.NoError(t, err)
	assert.Equal(t, indicator.MinBundlePoints, tr.cfg.WindowSize)
}

func TestObserve_ConcurrentSymbols(t *testing.T) {
	tr := newTracker(t, 40)
	sink := &recordingSink{}
	tr.AddSink("rec", sink)
	ctx := context.Background()

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				_, err := tr.Observe(ctx, sym, model.HistoricalPrice{Date: day(i), Price: 100 + float64(i%3)})
				assert.NoError(t, err)
			}
		}(fmt.Sprintf("SYM%d", s))
	}
	wg.Wait()

	// 30 observations, updates from the 26th onward: 5 per symbol
	assert.Equal(t, 4*5, sink.count())
	assert.Len(t, tr.Symbols(), 4)
}

func TestObserve_CountsWindowEvictions(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr, err := New(Config{
		WindowSize: 30,
		Params:     indicator.DefaultParams(),
		Thresholds: strategy.DefaultThresholds(),
	}, metrics.NewMetrics(reg))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 45; i++ {
		_, err := tr.Observe(ctx, "SOL", model.HistoricalPrice{Date: day(i), Price: float64(i + 1)})
		require.NoError(t, err)
	}
	// same date replaces instead of evicting
	_, err = tr.Observe(ctx, "SOL", model.HistoricalPrice{Date: day(44), Price: 99})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var evictions float64
	for _, mf := range families {
		if mf.GetName() == "coinsignal_window_evictions_total" {
			evictions = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 15.0, evictions)
}
