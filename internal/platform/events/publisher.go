// Package events publishes ledger domain events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange ledger events are published to.
const DefaultExchange = "ledger_events"

// Publisher emits JSON events under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close()
}

// AMQPPublisher holds the RabbitMQ connection and channel for publishing.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *slog.Logger
}

// LogPublisher is the fallback used when no broker is configured. It only
// logs what would have been published.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher builds the fallback publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the routing key and skips delivery.
func (p *LogPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.logger.DebugContext(ctx, "event publish skipped", slog.String("routing_key", routingKey))
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() {}

// SanitizeURL trims quotes and stray prefixes and checks the scheme.
func SanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("events: AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// Dial connects to RabbitMQ and declares the durable topic exchange.
func Dial(amqpURL, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	cleanURL, err := SanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}
	p := &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}
	if err := p.reopen(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// Connect returns an AMQP publisher, or the log fallback when amqpURL is
// empty or the broker is unreachable at startup.
func Connect(amqpURL, exchange string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(amqpURL) == "" {
		return NewLogPublisher(logger)
	}
	p, err := Dial(amqpURL, exchange, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable, events will be dropped", slog.Any("error", err))
		return NewLogPublisher(logger)
	}
	return p
}

func (p *AMQPPublisher) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("events: declare exchange: %w", err)
	}
	p.channel = ch
	return nil
}

// Publish sends payload as persistent JSON. A failed publish reopens the
// channel and retries once.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", routingKey, err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	p.logger.WarnContext(ctx, "publish failed, reopening channel", slog.String("routing_key", routingKey), slog.Any("error", err))
	if reopenErr := p.reopen(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
