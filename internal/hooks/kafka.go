package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the Kafka handler needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter builds a writer publishing to topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    10,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// NewKafkaHandler publishes each event as a JSON message keyed by user id,
// so one user's events stay ordered within a partition.
func NewKafkaHandler(w MessageWriter) Handler {
	return func(ctx context.Context, evt Event) error {
		payload, err := MarshalEvent(evt)
		if err != nil {
			return fmt.Errorf("hooks: marshal event: %w", err)
		}
		msg := kafka.Message{
			Key:   []byte(evt.UserID),
			Value: payload,
			Time:  evt.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(evt.Type)},
			},
		}
		if err := w.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("hooks: publish %s: %w", evt.Type, err)
		}
		return nil
	}
}
