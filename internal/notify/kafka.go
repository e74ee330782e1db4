package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"spot-price-alerts/internal/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes alerts to a topic, keyed by instrument.
type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
		MaxAttempts:  3,
	}}, nil
}

func (k *KafkaNotifier) Send(ctx context.Context, event types.AlertEvent) error {
	msg, err := kafkaMessage(event)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "kafka: publish")
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

func kafkaMessage(event types.AlertEvent) (kafka.Message, error) {
	data, err := json.Marshal(NewPayload(event))
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "kafka: marshal")
	}
	return kafka.Message{
		Key:   []byte(event.Instrument),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "kind", Value: []byte(event.Kind)},
		},
		Time: event.FiredAt,
	}, nil
}
