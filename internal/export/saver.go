package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Saver writes rows to a file.
type Saver interface {
	Save(rows []Row, path string) error
	Extension() string
}

// NewSaver returns the saver for format (csv, parquet, json), or nil.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// SaveFile picks the saver from path's extension.
func SaveFile(rows []Row, path string) error {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	s := NewSaver(ext)
	if s == nil {
		return fmt.Errorf("export: unsupported format %q (use csv, parquet, json)", ext)
	}
	if err := s.Save(rows, path); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}

// JSONSaver writes an indented JSON array.
type JSONSaver struct{}

func (JSONSaver) Extension() string { return "json" }

func (JSONSaver) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// ParquetSaver writes a Parquet file with optional indicator columns.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(rows []Row, path string) error {
	return parquet.WriteFile(path, rows)
}

// CSVSaver writes a header plus one line per row; missing values are empty.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

var csvHeader = []string{"date", "price", "rsi", "macd", "macd_signal", "macd_histogram", "bb_upper", "bb_middle", "bb_lower"}

func (CSVSaver) Save(rows []Row, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date, formatFloat(r.Price),
			formatOpt(r.RSI), formatOpt(r.MACD), formatOpt(r.MACDSignal), formatOpt(r.MACDHistogram),
			formatOpt(r.BBUpper), formatOpt(r.BBMiddle), formatOpt(r.BBLower),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatOpt(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
