package model

import "encoding/json"

// RSIRecord is one point of a Relative Strength Index series. Value is in [0, 100].
type RSIRecord struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// MACDRecord is one point of a MACD series. Histogram = MACD - Signal.
type MACDRecord struct {
	Date      string  `json:"date"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACDLinePoint is a MACD line value before the signal line is defined.
type MACDLinePoint struct {
	Date string  `json:"date"`
	MACD float64 `json:"macd"`
}

// BollingerRecord is one point of a Bollinger Bands series.
// Lower <= Middle <= Upper; Price is the contemporaneous raw price.
type BollingerRecord struct {
	Date   string  `json:"date"`
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Price  float64 `json:"price"`
}

// IndicatorBundle groups the three indicator series computed over one price series.
// Each series is aligned to a suffix of the input and keyed by date.
type IndicatorBundle struct {
	RSI       []RSIRecord       `json:"rsi"`
	MACD      []MACDRecord      `json:"macd"`
	Bollinger []BollingerRecord `json:"bollinger"`
}

// Empty reports whether no series produced any record.
func (b *IndicatorBundle) Empty() bool {
	return len(b.RSI) == 0 && len(b.MACD) == 0 && len(b.Bollinger) == 0
}

// JSON returns the JSON-encoded bundle.
func (b *IndicatorBundle) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}
