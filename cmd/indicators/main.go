// cmd/indicators computes RSI, MACD and Bollinger Bands over a price file or
// a stored symbol and prints the latest values and synthesized signals.
//
// Usage:
//
//	go run ./cmd/indicators --file=btc.csv
//	go run ./cmd/indicators --db=data/prices.db --symbol=BTC --limit=365 --out=btc.parquet
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"coinsignal/config"
	"coinsignal/internal/export"
	"coinsignal/internal/indicator"
	"coinsignal/internal/logger"
	"coinsignal/internal/model"
	"coinsignal/internal/pricefile"
	sqlitestore "coinsignal/internal/store/sqlite"
	"coinsignal/internal/strategy"
)

func main() {
	file := flag.String("file", "", "Price file to read (.csv or .json)")
	dbPath := flag.String("db", "", "SQLite database to read from instead of --file")
	symbol := flag.String("symbol", "", "Symbol to load from --db")
	limit := flag.Int("limit", 0, "Use only the most recent N prices (0=all)")
	out := flag.String("out", "", "Write the joined price/indicator rows to this file (.json, .csv or .parquet)")
	store := flag.Bool("store", false, "With --file and --db, also upsert the file's prices under --symbol")
	flag.Parse()

	logger.Init("indicators", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		fatal("config load failed", err)
	}

	prices, err := loadPrices(*file, *dbPath, *symbol, *limit, *store)
	if err != nil {
		fatal("load prices failed", err)
	}
	prices = indicator.Normalize(prices)
	if *limit > 0 && len(prices) > *limit {
		prices = prices[len(prices)-*limit:]
	}

	bundle, err := indicator.CalculateAllWith(prices, cfg.Indicators)
	if err != nil {
		fatal("compute failed", err)
	}
	signals := strategy.NewSynthesizer(cfg.Thresholds).Signals(bundle)

	printSummary(prices, bundle, signals)

	if *out != "" {
		if err := export.SaveFile(export.Rows(prices, bundle), *out); err != nil {
			fatal("export failed", err)
		}
		slog.Info("exported", "path", *out, "rows", len(prices))
	}
}

func loadPrices(file, dbPath, symbol string, limit int, upsert bool) ([]model.HistoricalPrice, error) {
	ctx := context.Background()
	switch {
	case file != "":
		prices, err := pricefile.Load(file)
		if err != nil {
			return nil, err
		}
		if upsert {
			if dbPath == "" || symbol == "" {
				return nil, fmt.Errorf("--store needs --db and --symbol")
			}
			st, err := sqlitestore.Open(dbPath)
			if err != nil {
				return nil, err
			}
			defer st.Close()
			if err := st.InsertPrices(ctx, symbol, indicator.Normalize(prices)); err != nil {
				return nil, err
			}
			slog.Info("stored prices", "symbol", symbol, "count", len(prices))
		}
		return prices, nil

	case dbPath != "":
		if symbol == "" {
			return nil, fmt.Errorf("--db needs --symbol")
		}
		reader, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		prices, err := reader.ReadPrices(ctx, symbol, limit)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			return nil, fmt.Errorf("no prices stored for %s", symbol)
		}
		return prices, nil
	}
	return nil, fmt.Errorf("one of --file or --db is required")
}

func printSummary(prices []model.HistoricalPrice, b model.IndicatorBundle, signals []model.TradingSignal) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "points\t%d\n", len(prices))
	if n := len(prices); n > 0 {
		fmt.Fprintf(w, "latest\t%s\t%.4f\n", prices[n-1].Date, prices[n-1].Price)
	}
	if n := len(b.RSI); n > 0 {
		fmt.Fprintf(w, "RSI\t%s\t%.2f\n", b.RSI[n-1].Date, b.RSI[n-1].Value)
	}
	if n := len(b.MACD); n > 0 {
		r := b.MACD[n-1]
		fmt.Fprintf(w, "MACD\t%s\tmacd=%.4f signal=%.4f hist=%.4f\n", r.Date, r.MACD, r.Signal, r.Histogram)
	}
	if n := len(b.Bollinger); n > 0 {
		r := b.Bollinger[n-1]
		fmt.Fprintf(w, "Bollinger\t%s\tlower=%.4f middle=%.4f upper=%.4f\n", r.Date, r.Lower, r.Middle, r.Upper)
	}
	fmt.Fprintln(w)
	for _, s := range signals {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\n", s.Indicator, s.Signal, s.Strength, s.Reason)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
