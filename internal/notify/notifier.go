// Package notify publishes fire-and-forget notification events.
// Delivery is out of scope for the credit core; a publish failure is
// logged and never rolls back the credit mutation that preceded it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event kinds consumed by the notification service.
const (
	EventTransferInvite   = "transfer.invite"
	EventTransferAccepted = "transfer.accepted"
	EventCreditsGranted   = "credits.granted"
)

// Event is the payload published for downstream delivery (email/push).
type Event struct {
	Kind           string    `json:"kind"`
	UserID         string    `json:"userId,omitempty"`
	RecipientEmail string    `json:"recipientEmail,omitempty"`
	TransferCode   string    `json:"transferCode,omitempty"`
	Message        string    `json:"message,omitempty"`
	Credits        int       `json:"credits,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Notifier publishes events best-effort.
type Notifier interface {
	Publish(ctx context.Context, event Event)
}

// AMQPNotifier publishes events to a fanout exchange.
type AMQPNotifier struct {
	channel  *amqp.Channel
	conn     *amqp.Connection
	exchange string
}

// NewAMQPNotifier connects to the broker and declares the exchange.
func NewAMQPNotifier(amqpURL, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPNotifier{channel: ch, conn: conn, exchange: exchange}, nil
}

// Publish sends the event and only logs on failure.
func (n *AMQPNotifier) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal notification", "kind", event.Kind, "error", err)
		return
	}

	err = n.channel.PublishWithContext(ctx, n.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   event.OccurredAt,
	})
	if err != nil {
		slog.Error("publish notification", "kind", event.Kind, "error", err)
	}
}

// Close shuts down the channel and connection.
func (n *AMQPNotifier) Close() {
	n.channel.Close()
	n.conn.Close()
}

// LogNotifier is the fallback when no broker is configured; events are
// logged and dropped.
type LogNotifier struct{}

// Publish logs the event.
func (LogNotifier) Publish(ctx context.Context, event Event) {
	slog.Info("notification (no broker configured)",
		"kind", event.Kind, "user", event.UserID, "email", event.RecipientEmail)
}
