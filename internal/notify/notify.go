// Package notify delivers alert events to external channels.
package notify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"spot-price-alerts/internal/types"
)

// Notifier is implemented by every delivery backend.
type Notifier interface {
	Send(ctx context.Context, event types.AlertEvent) error
}

// Payload is the JSON form of an event for webhooks and Kafka.
type Payload struct {
	ID            string   `json:"id"`
	Instrument    string   `json:"instrument"`
	Kind          string   `json:"kind"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	Price         float64  `json:"price"`
	Threshold     *float64 `json:"threshold,omitempty"`
	ChangePercent *float64 `json:"change_percent_24h,omitempty"`
	Timestamp     string   `json:"ts"`
}

func NewPayload(event types.AlertEvent) Payload {
	return Payload{
		ID:            event.ID,
		Instrument:    event.Instrument,
		Kind:          string(event.Kind),
		Title:         event.Title,
		Body:          event.Body,
		Price:         event.Price,
		Threshold:     event.Threshold,
		ChangePercent: event.ChangePercent,
		Timestamp:     event.FiredAt.UTC().Format(time.RFC3339Nano),
	}
}

// LogNotifier writes alerts to the log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, event types.AlertEvent) error {
	log.WithFields(log.Fields{
		"id":         event.ID,
		"instrument": event.Instrument,
		"kind":       event.Kind,
	}).Warnf("%s: %s", event.Title, event.Body)
	return nil
}

// Multi sends every event to all of its notifiers.
type Multi []Notifier

// Send tries every notifier and joins their failures.
func (m Multi) Send(ctx context.Context, event types.AlertEvent) error {
	var errs error
	for _, n := range m {
		errs = multierr.Append(errs, n.Send(ctx, event))
	}
	return errs
}
