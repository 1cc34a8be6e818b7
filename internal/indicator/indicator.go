// Package indicator provides technical indicator calculations over price series.
//
// Streaming indicators implement the Indicator interface, receiving one price at a
// time and producing float64 values. The batch calculators (CalculateRSI,
// CalculateMACD, CalculateBollingerBands, CalculateAll) are built from the same
// streaming types and are pure: they never mutate their input and keep no state
// between calls, so they are safe for concurrent use.
package indicator

// Indicator is the interface for all streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA", "RSI").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
