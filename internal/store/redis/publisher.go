package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	goredis "github.com/go-redis/redis/v8"

	"coinsignal/internal/model"
)

// Publisher pushes signal updates to Redis: PUBLISH on signals:{symbol} and
// SET signals:latest:{symbol}. While the breaker is open the newest update per
// symbol is held back and replayed once the breaker closes.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker

	mu      sync.Mutex
	pending map[string]model.SignalUpdate

	// OnBuffer is called when an update is held back (for metrics).
	OnBuffer func()
}

// NewPublisher creates a publisher and hooks replay onto the breaker closing.
func NewPublisher(client *goredis.Client, cb *CircuitBreaker) *Publisher {
	p := &Publisher{
		client:  client,
		cb:      cb,
		pending: make(map[string]model.SignalUpdate),
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go p.flush()
		}
	}
	return p
}

// ChannelKey is the pub/sub channel for symbol.
func ChannelKey(symbol string) string { return "signals:" + symbol }

// LatestKey holds the most recent update for symbol.
func LatestKey(symbol string) string { return "signals:latest:" + symbol }

// OnSignalChange implements model.SignalSink.
func (p *Publisher) OnSignalChange(ctx context.Context, update model.SignalUpdate) error {
	return p.PublishSignals(ctx, update)
}

// PublishSignals writes update through the breaker. An open breaker is not an
// error: the update is buffered.
func (p *Publisher) PublishSignals(ctx context.Context, update model.SignalUpdate) error {
	err := p.cb.Execute(func() error {
		return p.write(ctx, update)
	})
	if errors.Is(err, ErrCircuitOpen) {
		p.hold(update)
		return nil
	}
	return err
}

// Pending returns the number of held-back updates.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Publisher) write(ctx context.Context, update model.SignalUpdate) error {
	payload := update.JSON()
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, LatestKey(update.Symbol), payload, 0)
	pipe.Publish(ctx, ChannelKey(update.Symbol), payload)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Publisher) hold(update model.SignalUpdate) {
	p.mu.Lock()
	p.pending[update.Symbol] = update
	p.mu.Unlock()
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays held-back updates; failures are re-held.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.pending
	p.pending = make(map[string]model.SignalUpdate)
	p.mu.Unlock()

	ctx := context.Background()
	for _, u := range toFlush {
		if err := p.PublishSignals(ctx, u); err != nil {
			slog.Warn("redis replay failed", "symbol", u.Symbol, "error", err)
			p.hold(u)
		}
	}
	slog.Info("redis replayed buffered signal updates", "count", len(toFlush))
}
