package indicator

import (
	"errors"
	"fmt"
	"math"
)

// Default indicator windows.
const (
	DefaultRSIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerPeriod = 20
	DefaultBollingerK      = 2.0

	// MinBundlePoints is the binding minimum for CalculateAll: the slow EMA window.
	MinBundlePoints = DefaultMACDSlow
)

// ErrInvalidParams is returned when indicator parameters fail validation.
var ErrInvalidParams = errors.New("invalid indicator params")

// Params configures the windows used by CalculateAllWith.
type Params struct {
	RSIPeriod       int     `yaml:"rsi_period" json:"rsi_period"`
	MACDFast        int     `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow        int     `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal      int     `yaml:"macd_signal" json:"macd_signal"`
	BollingerPeriod int     `yaml:"bollinger_period" json:"bollinger_period"`
	BollingerK      float64 `yaml:"bollinger_k" json:"bollinger_k"`
}

// DefaultParams returns RSI 14, MACD 12/26/9 and Bollinger 20/2.
func DefaultParams() Params {
	return Params{
		RSIPeriod:       DefaultRSIPeriod,
		MACDFast:        DefaultMACDFast,
		MACDSlow:        DefaultMACDSlow,
		MACDSignal:      DefaultMACDSignal,
		BollingerPeriod: DefaultBollingerPeriod,
		BollingerK:      DefaultBollingerK,
	}
}

// Validate checks windows are positive, fast < slow and k is a finite non-negative number.
func (p Params) Validate() error {
	checks := []struct {
		name string
		v    int
	}{
		{"rsi_period", p.RSIPeriod},
		{"macd_fast", p.MACDFast},
		{"macd_slow", p.MACDSlow},
		{"macd_signal", p.MACDSignal},
		{"bollinger_period", p.BollingerPeriod},
	}
	for _, c := range checks {
		if c.v <= 0 {
			return fmt.Errorf("%w: %s=%d must be positive", ErrInvalidParams, c.name, c.v)
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("%w: macd_fast=%d must be below macd_slow=%d", ErrInvalidParams, p.MACDFast, p.MACDSlow)
	}
	if p.BollingerK < 0 || math.IsNaN(p.BollingerK) || math.IsInf(p.BollingerK, 0) {
		return fmt.Errorf("%w: bollinger_k=%v must be finite and non-negative", ErrInvalidParams, p.BollingerK)
	}
	return nil
}

// MinPoints returns the number of prices needed for every series to be non-empty
// except the MACD signal line: the largest of the RSI, slow EMA and Bollinger windows.
func (p Params) MinPoints() int {
	n := p.RSIPeriod + 1
	if p.MACDSlow > n {
		n = p.MACDSlow
	}
	if p.BollingerPeriod > n {
		n = p.BollingerPeriod
	}
	return n
}
