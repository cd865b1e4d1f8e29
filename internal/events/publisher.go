// Package events mirrors processing-log appends onto a Kafka topic so
// downstream consumers can follow pipeline progress without polling
// the database. Publishing is best effort: it sits behind the log
// store's notify hook and is never on the durability path.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/clipforge-media/clipforge/internal/monitoring"
	"github.com/clipforge-media/clipforge/internal/store"
)

// StepEvent is the wire envelope for one processing-log entry.
type StepEvent struct {
	VideoID   string `json:"video_id"`
	Step      string `json:"step"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Publisher writes step events to Kafka. With no brokers configured it
// runs in log-only mode and every publish is a cheap no-op.
type Publisher struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	log     zerolog.Logger
}

// NewPublisher creates a Publisher for the given brokers and topic. An
// empty broker list disables Kafka without disabling the caller.
func NewPublisher(brokers []string, topic string) *Publisher {
	logger := monitoring.Logger.With().Str("component", "events").Logger()

	if len(brokers) == 0 {
		logger.Info().Msg("kafka disabled, step events are log-only")
		return &Publisher{topic: topic, log: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	logger.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka publisher initialized")
	return &Publisher{writer: writer, topic: topic, enabled: true, log: logger}
}

// LogAppended is the store.LogStore notify hook. Failures are logged
// and swallowed; a broker outage must not stall the pipeline.
func (p *Publisher) LogAppended(e store.LogEntry) {
	event := StepEvent{
		VideoID:   e.VideoID,
		Step:      e.Step,
		Status:    string(e.Status),
		Message:   e.Message,
		Timestamp: e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("video_id", e.VideoID).Msg("marshal step event")
		return
	}

	p.log.Debug().Str("topic", p.topic).RawJSON("event", payload).Msg("step event")
	if !p.enabled {
		return
	}

	msg := kafka.Message{
		// Keyed by video so one video's events stay ordered within a
		// partition.
		Key:   []byte(e.VideoID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Str("video_id", e.VideoID).Msg("write step event")
	}
}

// Close flushes and closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
