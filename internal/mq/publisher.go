package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/septivank/solarlog-reader/internal/ingress"
	"github.com/septivank/solarlog-reader/internal/reading"
)

// Publisher fans readings out to a topic exchange
type Publisher struct {
	conn       *Connection
	exchange   string
	routingKey string
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewPublisher creates a new RabbitMQ publisher. The exchange is declared on
// first publish.
func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) *Publisher {
	return &Publisher{
		conn:       conn,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
		now:        time.Now,
	}
}

// ReadingEvent is the message published for every normalized reading
type ReadingEvent struct {
	EventID     string          `json:"event_id"`
	DeviceType  string          `json:"device_type"`
	PublishedAt string          `json:"published_at"`
	Reading     reading.Reading `json:"reading"`
}

// NewReadingEvent wraps r in an event envelope
func NewReadingEvent(r reading.Reading, at time.Time) ReadingEvent {
	return ReadingEvent{
		EventID:     uuid.New().String(),
		DeviceType:  ingress.DeviceType,
		PublishedAt: at.UTC().Format(time.RFC3339),
		Reading:     r,
	}
}

// Name identifies the sink in logs and metrics
func (p *Publisher) Name() string {
	return "amqp"
}

// Forward publishes r as a ReadingEvent
func (p *Publisher) Forward(ctx context.Context, r reading.Reading) error {
	event := NewReadingEvent(r, p.now())
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.ensureChannel(ctx)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
		},
	)
	if err != nil {
		p.resetChannel()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published reading event",
		zap.String("routing_key", p.routingKey),
		zap.String("event_id", event.EventID),
		zap.String("date", r.Date),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		err := p.channel.Close()
		p.channel = nil
		return err
	}
	return nil
}

func (p *Publisher) ensureChannel(ctx context.Context) (*amqp.Channel, error) {
	if p.channel != nil {
		return p.channel, nil
	}

	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.channel = ch
	return ch, nil
}

func (p *Publisher) resetChannel() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
}
