package indicator

// MACD tracks Moving Average Convergence Divergence: the fast EMA minus the
// slow EMA, an EMA of that line (the signal line), and their difference (the
// histogram). The line is defined once the slow EMA is; the signal line needs
// a further signalPeriod-1 prices.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	line   float64
}

// NewMACD creates a MACD indicator (typically 12, 26, 9).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.slow.Ready() || !m.fast.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.line)
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Ready returns true once the signal line is defined.
func (m *MACD) Ready() bool { return m.signal.Ready() }

// LineReady returns true once the MACD line alone is defined.
func (m *MACD) LineReady() bool { return m.slow.Ready() && m.fast.Ready() }

// Signal returns the signal line (EMA of the MACD line).
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns MACD - Signal.
func (m *MACD) Histogram() float64 { return m.line - m.signal.Value() }

// Reset clears the MACD state for reuse.
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.line = 0
}
