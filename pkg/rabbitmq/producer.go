/**
 * @description
 * This package provides the producer that fans account lifecycle events out
 * to RabbitMQ for internal consumers (billing exports, analytics). The broker
 * is optional at bootstrap: when it is unavailable the service runs with the
 * no-op fallback and only the webhook notification path remains.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// AccountEventsExchange is the durable topic exchange all account events go to.
const AccountEventsExchange = "account.events"

// Routing keys published on the account events exchange.
const (
	RoutingKeyAccountCreated       = "account.created"
	RoutingKeyAccountDeleted       = "account.deleted"
	RoutingKeyAccountStatusChanged = "account.status_changed"
)

// AccountEvent is the message body published for every account lifecycle
// transition.
type AccountEvent struct {
	EventType string    `json:"event_type"`
	AccountID int64     `json:"account_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the interface implemented by types that can publish account events.
type Publisher interface {
	PublishAccountEvent(ctx context.Context, routingKey string, event AccountEvent) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *slog.Logger
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is
// unavailable at startup.
type EventProducerFallback struct {
	Logger *slog.Logger
}

func (p *EventProducerFallback) PublishAccountEvent(ctx context.Context, routingKey string, event AccountEvent) error {
	if p.Logger != nil {
		p.Logger.Warn("account event publish skipped, broker unavailable", "routing_key", routingKey, "account_id", event.AccountID)
	}
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from the first
	// occurrence of amqp.
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer connects to RabbitMQ and declares the account events
// exchange. Startup uses a bounded dial timeout so a dead broker cannot hang
// the boot sequence.
func NewEventProducer(amqpURL string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(AccountEventsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, logger: logger}, nil
}

// PublishAccountEvent sends one event to the account events exchange. A
// failed publish reopens the channel and retries once.
func (p *EventProducer) PublishAccountEvent(ctx context.Context, routingKey string, event AccountEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}

	err = p.channel.PublishWithContext(ctx, AccountEventsExchange, routingKey, false, false, publishing)
	if err == nil {
		return nil
	}

	p.logger.Warn("account event publish failed, reopening channel", "routing_key", routingKey, "error", err)
	if p.conn == nil {
		return err
	}
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	if exErr := p.channel.ExchangeDeclare(AccountEventsExchange, "topic", true, false, false, false, nil); exErr != nil {
		return exErr
	}
	return p.channel.PublishWithContext(ctx, AccountEventsExchange, routingKey, false, false, publishing)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
