package indicator

import (
	"math"
	"sort"
	"strconv"
	"time"

	"coinsignal/internal/model"
)

// dateLayouts are tried in order when ordering a series by date.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize returns a copy of prices in ascending date order with every
// non-finite price removed. The input is not modified.
//
// Dates are compared as timestamps when every date parses (RFC3339, ISO date,
// ISO datetime or unix seconds/milliseconds); otherwise they are compared as
// strings. The sort is stable, so equal dates keep their input order.
func Normalize(prices []model.HistoricalPrice) []model.HistoricalPrice {
	out := sanitize(prices)
	if len(out) < 2 {
		return out
	}

	keys := make([]int64, len(out))
	byTime := true
	for i, p := range out {
		t, ok := parseDate(p.Date)
		if !ok {
			byTime = false
			break
		}
		keys[i] = t
	}

	if byTime {
		idx := make([]int, len(out))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })
		sorted := make([]model.HistoricalPrice, len(out))
		for i, j := range idx {
			sorted[i] = out[j]
		}
		return sorted
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].Date < out[b].Date })
	return out
}

// sanitize copies prices, skipping points whose price is NaN or ±Inf.
func sanitize(prices []model.HistoricalPrice) []model.HistoricalPrice {
	out := make([]model.HistoricalPrice, 0, len(prices))
	for _, p := range prices {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// DateKey returns the numeric ordering key Normalize uses for date: unix
// nanoseconds. ok is false when the date is in none of the accepted forms.
func DateKey(date string) (key int64, ok bool) {
	return parseDate(date)
}

// parseDate returns the date as unix nanoseconds.
func parseDate(s string) (int64, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixNano(), true
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	// Treat 13+ digit values as milliseconds.
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(n).UnixNano(), true
	}
	return time.Unix(n, 0).UnixNano(), true
}
