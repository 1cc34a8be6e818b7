package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Average gain and average loss are each an SMMA over the per-step gains and
// losses, so the first value is seeded by their simple mean over period deltas.
// Update is O(1) per price.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   *SMMA
	avgLoss   *SMMA
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period:  period,
		avgGain: NewSMMA(period),
		avgLoss: NewSMMA(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First price: no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.avgGain.Update(gain)
	r.avgLoss.Update(loss)

	if r.avgLoss.Ready() {
		r.current = rsiFromAverages(r.avgGain.Value(), r.avgLoss.Value())
	}
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// rsiFromAverages maps Wilder averages to [0, 100]. A zero average loss yields
// 100, including the flat case where both averages are zero.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	v := 100.0 - (100.0 / (1.0 + rs))
	// Guard rounding at the extremes.
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
