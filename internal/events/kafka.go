package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/terra-clan/progression-engine/internal/metrics"
)

// messageWriter is the part of kafka.Writer used for publishing
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic, keyed by user so a user's
// events stay ordered within a partition
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for topic on brokers
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}}
}

// Publish encodes and writes events in one batch
func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
		}
		key := e.UserID
		if key == "" {
			key = e.ChallengeID
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}
	metrics.RecordEventsPublished("kafka", len(msgs))
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
