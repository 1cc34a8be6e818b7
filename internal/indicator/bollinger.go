package indicator

// Bollinger tracks Bollinger Bands: an SMA middle band with upper and lower
// bands k population standard deviations away.
type Bollinger struct {
	sma *SMA
	k   float64
}

// NewBollinger creates a Bollinger Bands indicator (typically 20, 2).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return "BB" }

func (b *Bollinger) Update(price float64) { b.sma.Update(price) }

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.Middle() }

func (b *Bollinger) Ready() bool { return b.sma.Ready() }

// Middle returns the simple moving average of the current window. For a flat
// window it is exactly the repeated price.
func (b *Bollinger) Middle() float64 {
	if !b.sma.Ready() {
		return 0
	}
	if b.sma.Flat() {
		return b.sma.buf[0]
	}
	return b.sma.WindowMean()
}

// Bands returns (upper, middle, lower). σ is measured around the same mean
// that is reported as the middle band.
func (b *Bollinger) Bands() (upper, middle, lower float64) {
	middle = b.Middle()
	if !b.sma.Ready() || b.sma.Flat() {
		return middle, middle, middle
	}
	width := b.k * b.sma.stdDevAround(middle)
	return middle + width, middle, middle - width
}

// Reset clears the state for reuse.
func (b *Bollinger) Reset() { b.sma.Reset() }
