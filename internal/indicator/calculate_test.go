package indicator

import (
	"fmt"
	"math"
	"sync"
	"testing"

	talib "github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsignal/internal/model"
)

func series(prices ...float64) []model.HistoricalPrice {
	out := make([]model.HistoricalPrice, len(prices))
	for i, p := range prices {
		out[i] = model.HistoricalPrice{Date: fmt.Sprintf("2024-01-%02d", i+1), Price: p}
	}
	return out
}

// wave is a deterministic non-trivial series: drift plus oscillation.
func wave(n int) []model.HistoricalPrice {
	out := make([]model.HistoricalPrice, n)
	for i := range out {
		out[i] = model.HistoricalPrice{
			Date:  fmt.Sprintf("%d", 1700000000+i*86400),
			Price: 100 + 10*math.Sin(float64(i)/3) + 0.2*float64(i),
		}
	}
	return out
}

func ramp(n int, start, step float64) []model.HistoricalPrice {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + step*float64(i)
	}
	return series(prices...)
}

func TestCalculateRSI_ScenarioA(t *testing.T) {
	prices := series(44, 44.5, 43.5, 44.5, 45, 45.5, 46, 46.5, 47, 47.5, 48, 48.5, 49, 49.5, 50)

	out := CalculateRSI(prices, 14)

	require.Len(t, out, 1)
	assert.Equal(t, prices[14].Date, out[0].Date)
	assert.Greater(t, out[0].Value, 50.0)
	assert.LessOrEqual(t, out[0].Value, 100.0)
	// gains 7.0/14, losses 1.0/14 → RS 7 → 87.5
	assert.InDelta(t, 87.5, out[0].Value, 1e-9)
}

func TestCalculateRSI_Bounds(t *testing.T) {
	for _, in := range [][]model.HistoricalPrice{wave(200), ramp(60, 10, 1), ramp(60, 100, -1), ramp(30, 5, 0)} {
		for _, r := range CalculateRSI(in, 14) {
			assert.GreaterOrEqual(t, r.Value, 0.0)
			assert.LessOrEqual(t, r.Value, 100.0)
			assert.False(t, math.IsNaN(r.Value))
		}
	}
}

func TestCalculateRSI_Monotonic(t *testing.T) {
	up := CalculateRSI(ramp(40, 10, 0.5), 14)
	require.NotEmpty(t, up)
	for _, r := range up {
		assert.Equal(t, 100.0, r.Value)
	}

	down := CalculateRSI(ramp(40, 100, -0.5), 14)
	require.NotEmpty(t, down)
	for _, r := range down {
		assert.Equal(t, 0.0, r.Value)
	}
}

func TestCalculateRSI_ShortInput(t *testing.T) {
	assert.Empty(t, CalculateRSI(ramp(14, 1, 1), 14))
	assert.Empty(t, CalculateRSI(nil, 14))
	assert.Empty(t, CalculateRSI(ramp(30, 1, 1), 0))
	assert.NotNil(t, CalculateRSI(nil, 14), "empty series must be non-nil for JSON rendering")
}

func TestCalculateRSI_AlignedToSuffix(t *testing.T) {
	in := wave(50)
	out := CalculateRSI(in, 14)
	require.Len(t, out, 50-14)
	for i, r := range out {
		assert.Equal(t, in[i+14].Date, r.Date)
	}
}

func TestCalculateMACD_ScenarioC(t *testing.T) {
	assert.Empty(t, CalculateMACD(wave(20), 12, 26, 9))
	assert.Empty(t, CalculateMACDLine(wave(20), 12, 26))
}

func TestCalculateMACD_ProgressiveOutput(t *testing.T) {
	// 26..33 points: the line exists but the signal line does not.
	in := wave(30)
	assert.Empty(t, CalculateMACD(in, 12, 26, 9))
	line := CalculateMACDLine(in, 12, 26)
	require.Len(t, line, 5)
	assert.Equal(t, in[25].Date, line[0].Date)

	full := CalculateMACD(wave(34), 12, 26, 9)
	require.Len(t, full, 1)
	assert.Equal(t, wave(34)[33].Date, full[0].Date)
}

func TestCalculateMACD_HistogramIdentity(t *testing.T) {
	out := CalculateMACD(wave(300), 12, 26, 9)
	require.Len(t, out, 300-33)
	for _, r := range out {
		assert.InDelta(t, r.MACD-r.Signal, r.Histogram, 1e-9)
	}
}

func TestCalculateMACD_MatchesEMADifference(t *testing.T) {
	in := wave(120)
	closes := model.Closes(in)
	fast := talib.Ema(closes, 12)
	slow := talib.Ema(closes, 26)

	line := CalculateMACDLine(in, 12, 26)
	require.Len(t, line, 120-25)
	for i, p := range line {
		idx := i + 25
		assert.InDelta(t, fast[idx]-slow[idx], p.MACD, 1e-6, "index %d", idx)
	}
}

func TestCalculateRSI_MatchesTALib(t *testing.T) {
	in := wave(150)
	want := talib.Rsi(model.Closes(in), 14)

	got := CalculateRSI(in, 14)
	require.Len(t, got, 150-14)
	for i, r := range got {
		assert.InDelta(t, want[i+14], r.Value, 1e-6, "index %d", i+14)
	}
}

func TestCalculateBollinger_MatchesTALib(t *testing.T) {
	in := wave(150)
	upper, middle, lower := talib.BBands(model.Closes(in), 20, 2.0, 2.0, talib.SMA)

	got := CalculateBollingerBands(in, 20, 2)
	require.Len(t, got, 150-19)
	for i, r := range got {
		idx := i + 19
		assert.InDelta(t, middle[idx], r.Middle, 1e-6, "middle %d", idx)
		assert.InDelta(t, upper[idx], r.Upper, 1e-6, "upper %d", idx)
		assert.InDelta(t, lower[idx], r.Lower, 1e-6, "lower %d", idx)
		assert.Equal(t, in[idx].Price, r.Price)
	}
}

func TestCalculateBollinger_Ordering(t *testing.T) {
	for _, r := range CalculateBollingerBands(wave(200), 20, 2) {
		assert.LessOrEqual(t, r.Lower, r.Middle)
		assert.LessOrEqual(t, r.Middle, r.Upper)
	}
}

func TestCalculateBollinger_ScenarioB(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100
	}

	out := CalculateBollingerBands(series(prices...), 20, 2)

	require.Len(t, out, 1)
	assert.Equal(t, model.BollingerRecord{Date: "2024-01-20", Upper: 100, Middle: 100, Lower: 100, Price: 100}, out[0])
}

func TestCalculateBollinger_FlatNonRepresentable(t *testing.T) {
	prices := make([]float64, 45)
	for i := range prices {
		prices[i] = 0.1
	}
	for _, r := range CalculateBollingerBands(series(prices...), 20, 2) {
		assert.Equal(t, 0.1, r.Upper)
		assert.Equal(t, 0.1, r.Middle)
		assert.Equal(t, 0.1, r.Lower)
	}
}

func TestCalculateBollinger_LargeThenSmallKeepsTrueMean(t *testing.T) {
	cases := []struct {
		name  string
		large float64
		unit  float64
	}{
		{"huge", 1e17, 1},
		{"mild", 1.2e8, 0.001},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prices := make([]float64, 0, 40)
			for i := 0; i < 20; i++ {
				prices = append(prices, tc.large+float64(i*7919))
			}
			for i := 1; i <= 20; i++ {
				prices = append(prices, tc.unit*float64(i))
			}

			out := CalculateBollingerBands(series(prices...), 20, 2)
			require.Len(t, out, 21)

			last := out[len(out)-1]
			sigma := tc.unit * math.Sqrt(399.0/12.0)
			assert.InDelta(t, 10.5*tc.unit, last.Middle, 1e-12*tc.unit)
			assert.InDelta(t, last.Middle+2*sigma, last.Upper, 1e-9*tc.unit)
			assert.InDelta(t, last.Middle-2*sigma, last.Lower, 1e-9*tc.unit)
		})
	}
}

func TestCalculateBollinger_ShortInput(t *testing.T) {
	assert.Empty(t, CalculateBollingerBands(wave(19), 20, 2))
	assert.Empty(t, CalculateBollingerBands(wave(40), 20, -1))
	assert.Len(t, CalculateBollingerBands(wave(20), 20, 2), 1)
}

func TestCalculateAll_LengthPreconditions(t *testing.T) {
	b := CalculateAll(wave(25))
	assert.Empty(t, b.MACD)
	assert.Len(t, b.RSI, 25-14)
	assert.Len(t, b.Bollinger, 25-19)

	b = CalculateAll(wave(100))
	assert.Len(t, b.RSI, 86)
	assert.Len(t, b.MACD, 67)
	assert.Len(t, b.Bollinger, 81)
}

func TestCalculateAll_SortsAndSkipsNonFinite(t *testing.T) {
	in := wave(60)
	shuffled := make([]model.HistoricalPrice, 0, len(in)+2)
	for i := len(in) - 1; i >= 0; i-- {
		shuffled = append(shuffled, in[i])
	}
	shuffled = append(shuffled,
		model.HistoricalPrice{Date: "1700000001", Price: math.NaN()},
		model.HistoricalPrice{Date: "1700000002", Price: math.Inf(1)},
	)

	assert.Equal(t, CalculateAll(in), CalculateAll(shuffled))
	// input untouched
	assert.Equal(t, in[len(in)-1], shuffled[0])
}

func TestCalculateAllWith_InvalidParams(t *testing.T) {
	p := DefaultParams()
	p.MACDFast = 30
	b, err := CalculateAllWith(wave(100), p)
	require.ErrorIs(t, err, ErrInvalidParams)
	assert.True(t, b.Empty())
	assert.NotNil(t, b.MACD)
}

func TestCalculateAll_ConcurrentCallers(t *testing.T) {
	in := wave(200)
	want := CalculateAll(in)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, CalculateAll(in))
		}()
	}
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	t.Run("orders ISO dates as time", func(t *testing.T) {
		in := []model.HistoricalPrice{
			{Date: "2024-01-03", Price: 3},
			{Date: "2024-01-01T12:00:00Z", Price: 1},
			{Date: "2024-01-02", Price: 2},
		}
		out := Normalize(in)
		assert.Equal(t, []float64{1, 2, 3}, model.Closes(out))
		assert.Equal(t, "2024-01-03", in[0].Date)
	})

	t.Run("orders unix seconds numerically", func(t *testing.T) {
		in := []model.HistoricalPrice{{Date: "1000", Price: 2}, {Date: "999", Price: 1}}
		assert.Equal(t, []float64{1, 2}, model.Closes(Normalize(in)))
	})

	t.Run("falls back to lexicographic labels", func(t *testing.T) {
		in := []model.HistoricalPrice{{Date: "b", Price: 2}, {Date: "a", Price: 1}, {Date: "c", Price: 3}}
		assert.Equal(t, []float64{1, 2, 3}, model.Closes(Normalize(in)))
	})

	t.Run("stable for equal dates", func(t *testing.T) {
		in := []model.HistoricalPrice{{Date: "2024-01-01", Price: 1}, {Date: "2024-01-01", Price: 2}}
		assert.Equal(t, []float64{1, 2}, model.Closes(Normalize(in)))
	})

	t.Run("drops non-finite prices", func(t *testing.T) {
		in := []model.HistoricalPrice{{Date: "1", Price: math.NaN()}, {Date: "2", Price: 5}, {Date: "3", Price: math.Inf(-1)}}
		out := Normalize(in)
		require.Len(t, out, 1)
		assert.Equal(t, "2", out[0].Date)
	})
}

func TestParams(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, MinBundlePoints, p.MinPoints())

	bad := p
	bad.RSIPeriod = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidParams)

	bad = p
	bad.BollingerK = math.NaN()
	assert.ErrorIs(t, bad.Validate(), ErrInvalidParams)
}
