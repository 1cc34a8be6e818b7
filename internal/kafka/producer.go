// Package kafka publishes signal updates as keyed events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"coinsignal/internal/model"
)

// EventSignalsUpdated is the event type written for every recomputation.
const EventSignalsUpdated = "SIGNALS_UPDATED"

// SignalEvent is the message value.
type SignalEvent struct {
	EventType string                `json:"event_type"`
	Symbol    string                `json:"symbol"`
	Date      string                `json:"date"`
	Signals   []model.TradingSignal `json:"signals"`
	Timestamp time.Time             `json:"timestamp"`
}

// MessageWriter is the subset of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing signal events to Kafka.
type Producer struct {
	writer MessageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a producer writing to topic on brokers.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return newProducer(writer, topic)
}

func newProducer(w MessageWriter, topic string) *Producer {
	return &Producer{writer: w, topic: topic, now: time.Now}
}

// OnSignalChange implements model.SignalSink.
func (p *Producer) OnSignalChange(ctx context.Context, update model.SignalUpdate) error {
	return p.PublishSignals(ctx, update)
}

// PublishSignals writes one SIGNALS_UPDATED event keyed by symbol, so all
// updates for a symbol land on the same partition in order.
func (p *Producer) PublishSignals(ctx context.Context, update model.SignalUpdate) error {
	event := SignalEvent{
		EventType: EventSignalsUpdated,
		Symbol:    update.Symbol,
		Date:      update.Date,
		Signals:   update.Signals,
		Timestamp: p.now().UTC(),
	}
	return p.publish(ctx, update.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event SignalEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
