// Package events publishes domain events to Kafka for downstream consumers,
// most importantly the payment-gateway integration that picks up new
// payments. Publishing is best-effort: a checkout never fails because the
// broker is down.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Topic is the Kafka topic all market events are published to.
const Topic = "market.events"

// Event types consumed downstream.
const (
	TypePaymentCreated  = "payment.created"
	TypePaymentSettled  = "payment.settled"
	TypePaymentCanceled = "payment.canceled"
)

// Event is the wire format for published events.
type Event struct {
	EventID   string         `json:"event_id"`
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	PaymentID string         `json:"payment_id"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher writes events to Kafka. A Publisher built from an empty broker
// list is disabled: Publish becomes a no-op so callers need no branching.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Publisher for the given comma-separated broker
// list. An empty list yields a disabled publisher.
func NewPublisher(brokersCSV string) *Publisher {
	var brokers []string
	for _, b := range strings.Split(brokersCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return &Publisher{}
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: publishTimeout,
		},
	}
}

// Enabled reports whether events are actually published.
func (p *Publisher) Enabled() bool {
	return p.writer != nil
}

// publishTimeout bounds how long a best-effort publish may hold up the
// request that triggered it when the broker is slow or down.
const publishTimeout = 2 * time.Second

// publishContext detaches the publish from the request's cancellation (the
// event is still worth sending after the response is written) while capping
// it at publishTimeout so a dead broker cannot stall the caller.
func publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
}

// Publish sends one event keyed by payment ID, so events for the same
// payment preserve order within a partition. The write is bounded by
// publishTimeout regardless of the caller's context.
func (p *Publisher) Publish(ctx context.Context, typ, userID, paymentID string, payload map[string]any) error {
	if p.writer == nil {
		return nil
	}

	ev := Event{
		EventID:   uuid.New().String(),
		Type:      typ,
		UserID:    userID,
		PaymentID: paymentID,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	writeCtx, cancel := publishContext(ctx)
	defer cancel()

	return p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(paymentID),
		Value: data,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
