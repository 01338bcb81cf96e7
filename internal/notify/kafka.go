package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stocksense/stocksense/internal/config"
)

// KafkaNotifier publishes alert events to one topic and job events to
// another.
type KafkaNotifier struct {
	alerts *kafka.Writer
	jobs   *kafka.Writer
}

// NewKafkaNotifier creates writers for the configured topics.
func NewKafkaNotifier(cfg config.KafkaConfig) *KafkaNotifier {
	return &KafkaNotifier{
		alerts: NewWriter(cfg.Brokers, cfg.AlertTopic),
		jobs:   NewWriter(cfg.Brokers, cfg.JobTopic),
	}
}

// NewWriter creates a synchronous writer that waits for one ack.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// Notify publishes ev as JSON keyed by ev.Key.
func (n *KafkaNotifier) Notify(ctx context.Context, ev Event) error {
	msg, err := NewMessage(ev)
	if err != nil {
		return err
	}

	w := n.jobs
	if ev.IsAlertEvent() {
		w = n.alerts
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", ev.Type, w.Topic, err)
	}
	return nil
}

// Close flushes and closes both writers.
func (n *KafkaNotifier) Close() error {
	return errors.Join(n.alerts.Close(), n.jobs.Close())
}

// NewMessage encodes ev as a Kafka message.
func NewMessage(ev Event) (kafka.Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(ev.Key),
		Value: body,
		Time:  ev.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}

// ParseMessageJSON decodes a message value into T.
func ParseMessageJSON[T any](msg kafka.Message) (T, error) {
	var payload T
	err := json.Unmarshal(msg.Value, &payload)
	return payload, err
}
