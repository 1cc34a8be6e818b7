package model

import "encoding/json"

// HistoricalPrice is one observation of an asset's closing price.
// Date ordering is significant: series are expected ascending.
// Volume and OHLC fields are optional and ignored by the indicator math.
type HistoricalPrice struct {
	Date   string  `json:"date"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume,omitempty"`
	Open   float64 `json:"open,omitempty"`
	High   float64 `json:"high,omitempty"`
	Low    float64 `json:"low,omitempty"`
}

// JSON returns the JSON-encoded price point.
func (p *HistoricalPrice) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// Closes extracts the price column of a series.
func Closes(prices []HistoricalPrice) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p.Price
	}
	return out
}
