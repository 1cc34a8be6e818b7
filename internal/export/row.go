// Package export writes per-date indicator rows to JSON, CSV or Parquet files.
package export

import (
	"coinsignal/internal/indicator"
	"coinsignal/internal/model"
)

// Row is one date of a price series with whichever indicator values exist for
// it. Nil fields mean the indicator had no value at that date.
type Row struct {
	Date          string   `json:"date" parquet:"date"`
	Price         float64  `json:"price" parquet:"price"`
	RSI           *float64 `json:"rsi,omitempty" parquet:"rsi,optional"`
	MACD          *float64 `json:"macd,omitempty" parquet:"macd,optional"`
	MACDSignal    *float64 `json:"macd_signal,omitempty" parquet:"macd_signal,optional"`
	MACDHistogram *float64 `json:"macd_histogram,omitempty" parquet:"macd_histogram,optional"`
	BBUpper       *float64 `json:"bb_upper,omitempty" parquet:"bb_upper,optional"`
	BBMiddle      *float64 `json:"bb_middle,omitempty" parquet:"bb_middle,optional"`
	BBLower       *float64 `json:"bb_lower,omitempty" parquet:"bb_lower,optional"`
}

// Rows joins bundle onto the normalized prices by date.
func Rows(prices []model.HistoricalPrice, bundle model.IndicatorBundle) []Row {
	clean := indicator.Normalize(prices)
	out := make([]Row, len(clean))
	index := make(map[string]int, len(clean))
	for i, p := range clean {
		out[i] = Row{Date: p.Date, Price: p.Price}
		index[p.Date] = i
	}

	for _, r := range bundle.RSI {
		if i, ok := index[r.Date]; ok {
			out[i].RSI = ptr(r.Value)
		}
	}
	for _, r := range bundle.MACD {
		if i, ok := index[r.Date]; ok {
			out[i].MACD = ptr(r.MACD)
			out[i].MACDSignal = ptr(r.Signal)
			out[i].MACDHistogram = ptr(r.Histogram)
		}
	}
	for _, r := range bundle.Bollinger {
		if i, ok := index[r.Date]; ok {
			out[i].BBUpper = ptr(r.Upper)
			out[i].BBMiddle = ptr(r.Middle)
			out[i].BBLower = ptr(r.Lower)
		}
	}
	return out
}

func ptr(v float64) *float64 { return &v }
