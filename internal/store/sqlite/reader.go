package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"coinsignal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored prices and the signal log.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// ReadPrices returns the most recent limit prices for symbol, ascending by date.
// limit <= 0 returns the full history. Rows are ordered by the parsed date key,
// so unix seconds, unix milliseconds and ISO dates compare chronologically.
func (r *Reader) ReadPrices(ctx context.Context, symbol string, limit int) ([]model.HistoricalPrice, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, price, volume FROM (
			SELECT date, price, volume, sort_key FROM prices
			WHERE symbol = ?
			ORDER BY sort_key DESC, date DESC
			LIMIT ?
		) ORDER BY sort_key ASC, date ASC
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query prices: %w", err)
	}
	defer rows.Close()

	prices := []model.HistoricalPrice{}
	for rows.Next() {
		var p model.HistoricalPrice
		if err := rows.Scan(&p.Date, &p.Price, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan prices: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// Symbols lists every symbol with stored prices, sorted.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// RecentSignals returns the last limit signal updates for symbol, newest first.
func (r *Reader) RecentSignals(ctx context.Context, symbol string, limit int) ([]model.SignalUpdate, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT update_id, date, indicator, signal, strength, reason
		FROM signals
		WHERE symbol = ? AND update_id IN (
			SELECT DISTINCT update_id FROM signals WHERE symbol = ?
			ORDER BY update_id DESC LIMIT ?
		)
		ORDER BY update_id DESC, id ASC
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	updates := []model.SignalUpdate{}
	lastID := int64(-1)
	for rows.Next() {
		var (
			id   int64
			date string
			s    model.TradingSignal
			kind string
		)
		if err := rows.Scan(&id, &date, &s.Indicator, &kind, &s.Strength, &s.Reason); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		s.Signal = model.SignalKind(kind)
		if id != lastID {
			updates = append(updates, model.SignalUpdate{Symbol: symbol, Date: date})
			lastID = id
		}
		cur := &updates[len(updates)-1]
		cur.Signals = append(cur.Signals, s)
	}
	return updates, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
