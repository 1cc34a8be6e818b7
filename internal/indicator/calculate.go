package indicator

import "coinsignal/internal/model"

// CalculateRSI computes Wilder's RSI over prices. The first window points have
// no value and are omitted, so len(out) == max(0, n-window). Inputs shorter than
// window+1 or a non-positive window yield an empty series. Non-finite prices are
// skipped.
func CalculateRSI(prices []model.HistoricalPrice, window int) []model.RSIRecord {
	if window <= 0 {
		return []model.RSIRecord{}
	}
	clean := sanitize(prices)
	if len(clean) < window+1 {
		return []model.RSIRecord{}
	}

	rsi := NewRSI(window)
	out := make([]model.RSIRecord, 0, len(clean)-window)
	for _, p := range clean {
		rsi.Update(p.Price)
		if rsi.Ready() {
			out = append(out, model.RSIRecord{Date: p.Date, Value: rsi.Value()})
		}
	}
	return out
}

// CalculateMACD computes the MACD line, signal line and histogram. Records start
// at the first point where the signal line is defined (index slow+signal-2), so
// every record satisfies Histogram == MACD - Signal. Shorter inputs yield an
// empty series; use CalculateMACDLine for the partial line.
func CalculateMACD(prices []model.HistoricalPrice, fast, slow, signal int) []model.MACDRecord {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return []model.MACDRecord{}
	}
	clean := sanitize(prices)
	first := maxInt(fast, slow) + signal - 1
	if len(clean) < first {
		return []model.MACDRecord{}
	}

	m := NewMACD(fast, slow, signal)
	out := make([]model.MACDRecord, 0, len(clean)-first+1)
	for _, p := range clean {
		m.Update(p.Price)
		if m.Ready() {
			out = append(out, model.MACDRecord{
				Date:      p.Date,
				MACD:      m.Value(),
				Signal:    m.Signal(),
				Histogram: m.Histogram(),
			})
		}
	}
	return out
}

// CalculateMACDLine returns the MACD line (fast EMA - slow EMA) from the first
// point where the slow EMA is defined, regardless of whether the signal line is.
func CalculateMACDLine(prices []model.HistoricalPrice, fast, slow int) []model.MACDLinePoint {
	if fast <= 0 || slow <= 0 {
		return []model.MACDLinePoint{}
	}
	clean := sanitize(prices)
	first := maxInt(fast, slow)
	if len(clean) < first {
		return []model.MACDLinePoint{}
	}

	m := NewMACD(fast, slow, 1)
	out := make([]model.MACDLinePoint, 0, len(clean)-first+1)
	for _, p := range clean {
		m.Update(p.Price)
		if m.LineReady() {
			out = append(out, model.MACDLinePoint{Date: p.Date, MACD: m.Value()})
		}
	}
	return out
}

// CalculateBollingerBands computes a window-period SMA with bands k population
// standard deviations away. The first window-1 points are omitted. A flat
// window gives upper == middle == lower. Inputs shorter than window, a
// non-positive window or a negative k yield an empty series.
func CalculateBollingerBands(prices []model.HistoricalPrice, window int, k float64) []model.BollingerRecord {
	if window <= 0 || k < 0 {
		return []model.BollingerRecord{}
	}
	clean := sanitize(prices)
	if len(clean) < window {
		return []model.BollingerRecord{}
	}

	bb := NewBollinger(window, k)
	out := make([]model.BollingerRecord, 0, len(clean)-window+1)
	for _, p := range clean {
		bb.Update(p.Price)
		if bb.Ready() {
			upper, middle, lower := bb.Bands()
			out = append(out, model.BollingerRecord{
				Date:   p.Date,
				Upper:  upper,
				Middle: middle,
				Lower:  lower,
				Price:  p.Price,
			})
		}
	}
	return out
}

// CalculateAll normalizes prices and runs RSI(14), MACD(12,26,9) and
// Bollinger(20,2) independently. Callers should check len(prices) >=
// MinBundlePoints first; with fewer points the MACD series is empty.
func CalculateAll(prices []model.HistoricalPrice) model.IndicatorBundle {
	b, _ := CalculateAllWith(prices, DefaultParams())
	return b
}

// CalculateAllWith is CalculateAll with explicit windows.
func CalculateAllWith(prices []model.HistoricalPrice, p Params) (model.IndicatorBundle, error) {
	if err := p.Validate(); err != nil {
		return emptyBundle(), err
	}
	series := Normalize(prices)
	return model.IndicatorBundle{
		RSI:       CalculateRSI(series, p.RSIPeriod),
		MACD:      CalculateMACD(series, p.MACDFast, p.MACDSlow, p.MACDSignal),
		Bollinger: CalculateBollingerBands(series, p.BollingerPeriod, p.BollingerK),
	}, nil
}

func emptyBundle() model.IndicatorBundle {
	return model.IndicatorBundle{
		RSI:       []model.RSIRecord{},
		MACD:      []model.MACDRecord{},
		Bollinger: []model.BollingerRecord{},
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
