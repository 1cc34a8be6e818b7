package model

import "encoding/json"

// SignalKind is the direction of a trading signal.
type SignalKind string

const (
	SignalBuy     SignalKind = "buy"
	SignalSell    SignalKind = "sell"
	SignalNeutral SignalKind = "neutral"
)

// Indicator names used in TradingSignal.Indicator.
const (
	IndicatorRSI       = "RSI"
	IndicatorMACD      = "MACD"
	IndicatorBollinger = "Bollinger Bands"
)

// TradingSignal is a derived, ephemeral judgment over the latest indicator values.
// Strength is 0 for neutral signals.
type TradingSignal struct {
	Indicator string     `json:"indicator"`
	Signal    SignalKind `json:"signal"`
	Strength  float64    `json:"strength"`
	Reason    string     `json:"reason"`
}

// Actionable reports whether the signal is a buy or a sell.
func (s TradingSignal) Actionable() bool {
	return s.Signal == SignalBuy || s.Signal == SignalSell
}

// SignalUpdate is the envelope fanned out to sinks each time a symbol's signals are recomputed.
type SignalUpdate struct {
	Symbol  string          `json:"symbol"`
	Date    string          `json:"date"` // date of the latest price that produced the signals
	Signals []TradingSignal `json:"signals"`
}

// JSON returns the JSON-encoded update.
func (u *SignalUpdate) JSON() []byte {
	b, _ := json.Marshal(u)
	return b
}
