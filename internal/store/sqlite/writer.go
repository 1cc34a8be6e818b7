package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"coinsignal/internal/indicator"
	"coinsignal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/prices.db"
}

// Writer is the single-connection SQLite writer for prices and the signal log.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite opened", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			price  REAL NOT NULL,
			volume REAL NOT NULL DEFAULT 0,
			-- unix nanoseconds of date; 0 when the date does not parse
			sort_key INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, date)
		);

		CREATE TABLE IF NOT EXISTS signals (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			update_id  INTEGER NOT NULL,
			symbol     TEXT    NOT NULL,
			date       TEXT    NOT NULL,
			indicator  TEXT    NOT NULL,
			signal     TEXT    NOT NULL,
			strength   REAL    NOT NULL,
			reason     TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals (symbol, update_id);
	`)
	if err != nil {
		return err
	}
	if err := migrateSortKey(db); err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_prices_sort ON prices (symbol, sort_key)`)
	return err
}

// migrateSortKey adds and backfills prices.sort_key on databases created
// before the column existed.
func migrateSortKey(db *sql.DB) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('prices') WHERE name = 'sort_key'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect prices columns: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE prices ADD COLUMN sort_key INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("add sort_key: %w", err)
	}

	rows, err := db.Query(`SELECT DISTINCT date FROM prices`)
	if err != nil {
		return fmt.Errorf("read dates: %w", err)
	}
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return err
		}
		dates = append(dates, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, d := range dates {
		if _, err := tx.Exec(`UPDATE prices SET sort_key = ? WHERE date = ?`, sortKey(d), d); err != nil {
			tx.Rollback()
			return fmt.Errorf("backfill sort_key: %w", err)
		}
	}
	slog.Info("sqlite backfilled price sort keys", "dates", len(dates))
	return tx.Commit()
}

// sortKey orders stored prices the way indicator.Normalize orders a series.
func sortKey(date string) int64 {
	k, ok := indicator.DateKey(date)
	if !ok {
		return 0
	}
	return k
}

// InsertPrices upserts prices for symbol in a single transaction. Points with a
// non-finite price or an empty date are skipped.
func (w *Writer) InsertPrices(ctx context.Context, symbol string, prices []model.HistoricalPrice) error {
	if len(prices) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO prices (symbol, date, price, volume, sort_key) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET price = excluded.price, volume = excluded.volume
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare prices: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if p.Date == "" || math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, symbol, p.Date, p.Price, p.Volume, sortKey(p.Date)); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert price %s@%s: %w", symbol, p.Date, err)
		}
	}

	return tx.Commit()
}

// SaveSignals appends one signal update to the log.
func (w *Writer) SaveSignals(ctx context.Context, update model.SignalUpdate) error {
	return w.insertBatch(ctx, []model.SignalUpdate{update})
}

// Run drains updates and writes them in batched transactions.
// Flushes every batchSize updates OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or updates is closed.
func (w *Writer) Run(ctx context.Context, updates <-chan model.SignalUpdate) {
	batch := make([]model.SignalUpdate, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// the parent ctx may already be cancelled on shutdown
		if err := w.insertBatch(context.Background(), batch); err != nil {
			slog.Error("sqlite signal batch insert failed", "error", err, "updates", len(batch))
		} else {
			slog.Debug("sqlite committed signal updates", "updates", len(batch), "took", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case u, ok := <-updates:
			if !ok {
				flush()
				return
			}
			batch = append(batch, u)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch writes signal updates in a single transaction. Each update gets
// its own update_id so RecentSignals can regroup rows.
func (w *Writer) insertBatch(ctx context.Context, updates []model.SignalUpdate) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(update_id), 0) + 1 FROM signals`).Scan(&next); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite next update id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals (update_id, symbol, date, indicator, signal, strength, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare signals: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, u := range updates {
		for _, s := range u.Signals {
			_, err := stmt.ExecContext(ctx, next+int64(i), u.Symbol, u.Date, s.Indicator, string(s.Signal), s.Strength, s.Reason, now)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("sqlite insert signal: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
