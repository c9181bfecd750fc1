// Package events publishes pipeline milestones to Kafka. Publishing is
// strictly best-effort: the learning loop never blocks or fails because a
// broker is down, and with no brokers configured the publisher is a no-op.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Event types emitted on the topic.
const (
	TypePredictionCreated = "prediction_created"
	TypeOutcomeEvaluated  = "outcome_evaluated"
	TypeChampionChanged   = "champion_changed"
	TypeCycleCompleted    = "cycle_completed"
)

// Event is the wire envelope. Payload is event-type specific.
type Event struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Publisher wraps a kafka writer keyed by symbol.
type Publisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewPublisher builds a publisher for the comma-separated broker list. An
// empty broker list returns a disabled publisher.
func NewPublisher(brokers, topic string) *Publisher {
	p := &Publisher{logger: log.With().Str("component", "event_publisher").Logger()}
	if strings.TrimSpace(brokers) == "" {
		return p
	}

	var brokerList []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	if len(brokerList) == 0 {
		return p
	}

	p.writer = &kafka.Writer{
		Addr:     kafka.TCP(brokerList...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return p
}

// Enabled reports whether events will actually be written.
func (p *Publisher) Enabled() bool { return p.writer != nil }

// Publish emits one event. Failures are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, eventType, symbol string, payload interface{}) {
	if p.writer == nil {
		return
	}

	event := Event{
		Type:      eventType,
		Symbol:    symbol,
		Timestamp: time.Now().Format(time.RFC3339),
		Payload:   payload,
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("type", eventType).Msg("event encode failed")
		return
	}

	message := kafka.Message{
		Key:   []byte(symbol),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.Warn().Err(err).Str("type", eventType).Msg("event publish failed")
	}
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
