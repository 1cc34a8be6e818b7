package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the service from concrete storage and transport
// implementations (SQLite, Redis, Kafka, websocket).

// PriceReader reads stored price history.
type PriceReader interface {
	// ReadPrices returns the most recent limit prices for symbol in ascending
	// date order. limit <= 0 means all.
	ReadPrices(ctx context.Context, symbol string, limit int) ([]HistoricalPrice, error)

	// Symbols lists every symbol with stored history.
	Symbols(ctx context.Context) ([]string, error)
}

// PriceWriter persists price history.
type PriceWriter interface {
	// InsertPrices upserts prices for symbol in a single batch.
	InsertPrices(ctx context.Context, symbol string, prices []HistoricalPrice) error
}

// SignalLog records and lists synthesized signals.
type SignalLog interface {
	SaveSignals(ctx context.Context, update SignalUpdate) error
	RecentSignals(ctx context.Context, symbol string, limit int) ([]SignalUpdate, error)
}

// BundleCache caches computed bundles keyed by symbol and an input fingerprint.
type BundleCache interface {
	// GetBundle returns (nil, nil) on a miss.
	GetBundle(ctx context.Context, symbol, fingerprint string) (*IndicatorBundle, error)
	PutBundle(ctx context.Context, symbol, fingerprint string, bundle *IndicatorBundle) error
}

// SignalSink receives every freshly computed signal update.
type SignalSink interface {
	OnSignalChange(ctx context.Context, update SignalUpdate) error
}

// SignalSinkFunc adapts a function to SignalSink.
type SignalSinkFunc func(ctx context.Context, update SignalUpdate) error

// OnSignalChange calls f.
func (f SignalSinkFunc) OnSignalChange(ctx context.Context, update SignalUpdate) error {
	return f(ctx, update)
}
