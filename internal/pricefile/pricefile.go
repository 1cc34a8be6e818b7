// Package pricefile loads price histories from CSV or JSON files.
//
// CSV rows are date,price[,volume] with an optional header row. JSON is either
// an array of {"date","price","volume"} objects or {"prices":[...]}. Prices may
// be JSON numbers or strings; both are parsed as decimals so values such as
// "0.1" survive unchanged until the final float conversion.
package pricefile

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"coinsignal/internal/model"
)

// ErrUnsupportedFormat is returned for extensions other than .csv and .json.
var ErrUnsupportedFormat = errors.New("unsupported price file format")

type jsonPrice struct {
	Date   string           `json:"date"`
	Price  decimal.Decimal  `json:"price"`
	Volume *decimal.Decimal `json:"volume,omitempty"`
}

// Load reads path, choosing the parser from its extension.
func Load(path string) ([]model.HistoricalPrice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".json":
		return ReadJSON(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadCSV parses date,price[,volume] rows. A first row whose price column is
// not a number is treated as a header.
func ReadCSV(r io.Reader) ([]model.HistoricalPrice, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	out := []model.HistoricalPrice{}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("csv line %d: want date,price[,volume], got %d fields", line, len(rec))
		}

		price, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("csv line %d: price %q: %w", line, rec[1], err)
		}
		p := model.HistoricalPrice{Date: strings.TrimSpace(rec[0]), Price: price.InexactFloat64()}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			vol, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
			if err != nil {
				return nil, fmt.Errorf("csv line %d: volume %q: %w", line, rec[2], err)
			}
			p.Volume = vol.InexactFloat64()
		}
		out = append(out, p)
	}
	return out, nil
}

// ReadJSON parses an array of prices or an object with a "prices" array.
func ReadJSON(r io.Reader) ([]model.HistoricalPrice, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	raw = bytes.TrimSpace(raw)

	var rows []jsonPrice
	if len(raw) > 0 && raw[0] == '{' {
		var wrapped struct {
			Prices []jsonPrice `json:"prices"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode json prices: %w", err)
		}
		rows = wrapped.Prices
	} else if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode json prices: %w", err)
	}

	out := make([]model.HistoricalPrice, 0, len(rows))
	for _, jp := range rows {
		p := model.HistoricalPrice{Date: jp.Date, Price: jp.Price.InexactFloat64()}
		if jp.Volume != nil {
			p.Volume = jp.Volume.InexactFloat64()
		}
		out = append(out, p)
	}
	return out, nil
}
