package indicator

import "math"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Flat reports whether every value in a full window is identical.
func (s *SMA) Flat() bool {
	if !s.Ready() {
		return false
	}
	for _, v := range s.buf[1:] {
		if v != s.buf[0] {
			return false
		}
	}
	return true
}

// WindowMean returns the mean of the current window summed directly from the
// buffer with Neumaier compensation. Unlike Value it carries no rounding error
// from values that have already left the window.
func (s *SMA) WindowMean() float64 {
	if !s.Ready() {
		return 0
	}
	var sum, c float64
	for _, v := range s.buf {
		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			c += (sum - t) + v
		} else {
			c += (v - t) + sum
		}
		sum = t
	}
	return (sum + c) / float64(s.period)
}

// StdDev returns the population standard deviation (N denominator) of the
// current window around WindowMean. Returns 0 until the window is full and for
// flat windows.
func (s *SMA) StdDev() float64 {
	if !s.Ready() || s.Flat() {
		return 0
	}
	return s.stdDevAround(s.WindowMean())
}

func (s *SMA) stdDevAround(mean float64) float64 {
	var sq float64
	for _, v := range s.buf {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(s.period))
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
