// Package strategy turns indicator series into discrete trading signals.
//
// The Synthesizer inspects only the latest record of each series and emits one
// signal per indicator, always in the order [RSI, MACD, Bollinger Bands]. The
// signals are independent: no composite verdict or weighting is computed, the
// caller displays them side by side.
package strategy

import (
	"fmt"
	"math"

	"coinsignal/internal/model"
)

// Thresholds tunes the synthesizer.
type Thresholds struct {
	RSIOversold   float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought" json:"rsi_overbought"`

	// MACDLookback is the number of trailing histogram values whose mean
	// absolute value normalizes MACD crossing strength.
	MACDLookback int `yaml:"macd_lookback" json:"macd_lookback"`
}

// DefaultThresholds returns RSI 30/70 and a 20-record MACD lookback.
func DefaultThresholds() Thresholds {
	return Thresholds{RSIOversold: 30, RSIOverbought: 70, MACDLookback: 20}
}

// Validate checks 0 < oversold < overbought < 100 and a positive lookback.
func (t Thresholds) Validate() error {
	if !(t.RSIOversold > 0 && t.RSIOversold < t.RSIOverbought && t.RSIOverbought < 100) {
		return fmt.Errorf("rsi thresholds must satisfy 0 < %v < %v < 100", t.RSIOversold, t.RSIOverbought)
	}
	if t.MACDLookback <= 0 {
		return fmt.Errorf("macd_lookback=%d must be positive", t.MACDLookback)
	}
	return nil
}

// Synthesizer derives signals from an indicator bundle. It holds only its
// thresholds and is safe for concurrent use.
type Synthesizer struct {
	th Thresholds
}

// NewSynthesizer creates a synthesizer. Invalid thresholds fall back to defaults.
func NewSynthesizer(th Thresholds) *Synthesizer {
	if th.Validate() != nil {
		th = DefaultThresholds()
	}
	return &Synthesizer{th: th}
}

// Synthesize runs the default synthesizer.
func Synthesize(b model.IndicatorBundle) []model.TradingSignal {
	return NewSynthesizer(DefaultThresholds()).Signals(b)
}

// Signals returns a freshly allocated [RSI, MACD, Bollinger] slice.
func (s *Synthesizer) Signals(b model.IndicatorBundle) []model.TradingSignal {
	return []model.TradingSignal{
		s.rsiSignal(b.RSI),
		s.macdSignal(b.MACD),
		s.bollingerSignal(b.Bollinger),
	}
}

func (s *Synthesizer) rsiSignal(rsi []model.RSIRecord) model.TradingSignal {
	if len(rsi) == 0 {
		return notEnoughData(model.IndicatorRSI)
	}
	v := rsi[len(rsi)-1].Value
	switch {
	case v < s.th.RSIOversold:
		return model.TradingSignal{
			Indicator: model.IndicatorRSI,
			Signal:    model.SignalBuy,
			Strength:  clampStrength((s.th.RSIOversold - v) / s.th.RSIOversold * 100),
			Reason:    fmt.Sprintf("RSI %.2f is below %.0f (oversold)", v, s.th.RSIOversold),
		}
	case v > s.th.RSIOverbought:
		return model.TradingSignal{
			Indicator: model.IndicatorRSI,
			Signal:    model.SignalSell,
			Strength:  clampStrength((v - s.th.RSIOverbought) / (100 - s.th.RSIOverbought) * 100),
			Reason:    fmt.Sprintf("RSI %.2f is above %.0f (overbought)", v, s.th.RSIOverbought),
		}
	}
	return neutral(model.IndicatorRSI, fmt.Sprintf("RSI %.2f is between %.0f and %.0f", v, s.th.RSIOversold, s.th.RSIOverbought))
}

func (s *Synthesizer) macdSignal(macd []model.MACDRecord) model.TradingSignal {
	if len(macd) == 0 {
		return notEnoughData(model.IndicatorMACD)
	}
	latest := macd[len(macd)-1].Histogram
	if len(macd) < 2 {
		return neutral(model.IndicatorMACD, fmt.Sprintf("MACD histogram %.4f, no prior value to detect a crossover", latest))
	}
	prev := macd[len(macd)-2].Histogram

	var kind model.SignalKind
	var reason string
	switch {
	case prev < 0 && latest >= 0:
		kind = model.SignalBuy
		reason = fmt.Sprintf("MACD histogram crossed above zero (%.4f → %.4f)", prev, latest)
	case prev > 0 && latest <= 0:
		kind = model.SignalSell
		reason = fmt.Sprintf("MACD histogram crossed below zero (%.4f → %.4f)", prev, latest)
	default:
		return neutral(model.IndicatorMACD, fmt.Sprintf("MACD histogram %.4f, no crossover", latest))
	}

	return model.TradingSignal{
		Indicator: model.IndicatorMACD,
		Signal:    kind,
		Strength:  s.macdStrength(macd),
		Reason:    reason,
	}
}

// macdStrength scales the latest |histogram| against the mean |histogram| of the
// trailing lookback window: a value equal to the mean scores 50, twice the mean
// or more scores 100.
func (s *Synthesizer) macdStrength(macd []model.MACDRecord) float64 {
	start := len(macd) - s.th.MACDLookback
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, r := range macd[start:] {
		sum += math.Abs(r.Histogram)
	}
	ref := sum / float64(len(macd)-start)
	if ref == 0 {
		return 0
	}
	return clampStrength(math.Abs(macd[len(macd)-1].Histogram) / ref * 50)
}

func (s *Synthesizer) bollingerSignal(bb []model.BollingerRecord) model.TradingSignal {
	if len(bb) == 0 {
		return notEnoughData(model.IndicatorBollinger)
	}
	r := bb[len(bb)-1]
	width := r.Upper - r.Lower
	if width <= 0 {
		return neutral(model.IndicatorBollinger, fmt.Sprintf("bands have zero width at %.4f", r.Middle))
	}
	percentB := (r.Price - r.Lower) / width

	switch {
	case r.Price <= r.Lower:
		return model.TradingSignal{
			Indicator: model.IndicatorBollinger,
			Signal:    model.SignalBuy,
			Strength:  clampStrength((0.5 - percentB) * 100),
			Reason:    fmt.Sprintf("price %.4f at or below lower band %.4f", r.Price, r.Lower),
		}
	case r.Price >= r.Upper:
		return model.TradingSignal{
			Indicator: model.IndicatorBollinger,
			Signal:    model.SignalSell,
			Strength:  clampStrength((percentB - 0.5) * 100),
			Reason:    fmt.Sprintf("price %.4f at or above upper band %.4f", r.Price, r.Upper),
		}
	}
	return neutral(model.IndicatorBollinger, fmt.Sprintf("price %.4f inside bands (%%b %.2f)", r.Price, percentB))
}

func neutral(indicator, reason string) model.TradingSignal {
	return model.TradingSignal{Indicator: indicator, Signal: model.SignalNeutral, Reason: reason}
}

func notEnoughData(indicator string) model.TradingSignal {
	return neutral(indicator, "not enough data")
}

func clampStrength(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
