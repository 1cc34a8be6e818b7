// Package notification delivers signal alerts to external channels
// (log, Telegram, generic webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"coinsignal/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// strongSignal is the strength at which a signal alert escalates to WARNING.
const strongSignal = 50.0

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Symbol  string     `json:"symbol,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts through slog.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("alert", "level", alert.Level, "symbol", alert.Symbol, "title", alert.Title, "message", alert.Message)
	return nil
}

// MultiNotifier sends to every backend and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlerts converts the actionable signals of an update into alerts.
// Neutral signals produce nothing.
func SignalAlerts(update model.SignalUpdate) []Alert {
	var alerts []Alert
	for _, s := range update.Signals {
		if !s.Actionable() {
			continue
		}
		level := AlertInfo
		if s.Strength >= strongSignal {
			level = AlertWarning
		}
		alerts = append(alerts, Alert{
			Level:   level,
			Symbol:  update.Symbol,
			Title:   fmt.Sprintf("%s %s %s", update.Symbol, s.Indicator, s.Signal),
			Message: fmt.Sprintf("%s (strength %.0f, %s)", s.Reason, s.Strength, update.Date),
		})
	}
	return alerts
}

// AlertSink is a model.SignalSink that alerts only when a symbol's signal
// kinds change, so a steady oversold reading is reported once.
type AlertSink struct {
	n Notifier

	mu   sync.Mutex
	last map[string]string
}

// NewAlertSink wraps n.
func NewAlertSink(n Notifier) *AlertSink {
	return &AlertSink{n: n, last: make(map[string]string)}
}

// OnSignalChange implements model.SignalSink.
func (a *AlertSink) OnSignalChange(ctx context.Context, update model.SignalUpdate) error {
	key := kindsKey(update.Signals)
	a.mu.Lock()
	prev, seen := a.last[update.Symbol]
	a.last[update.Symbol] = key
	a.mu.Unlock()
	if seen && prev == key {
		return nil
	}

	var errs []error
	for _, alert := range SignalAlerts(update) {
		if err := a.n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func kindsKey(signals []model.TradingSignal) string {
	b := make([]byte, 0, len(signals)*8)
	for _, s := range signals {
		b = append(b, s.Signal...)
		b = append(b, '|')
	}
	return string(b)
}
