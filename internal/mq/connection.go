package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 30 * time.Second
	defaultHeartbeat   = 10 * time.Second
)

// DialFunc opens a broker connection, giving up on connect and handshake after timeout
type DialFunc func(url string, timeout time.Duration) (*amqp.Connection, error)

func dialWithTimeout(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Connection wraps a RabbitMQ connection that is dialled on first use and
// redialled after the broker drops it. The reader must start without a broker.
type Connection struct {
	url    string
	dial   DialFunc
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConnection creates a lazily dialled RabbitMQ connection
func NewConnection(lc fx.Lifecycle, logger *zap.Logger, url string) *Connection {
	c := &Connection{
		url:    url,
		dial:   dialWithTimeout,
		logger: logger,
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := c.Close(); err != nil {
				logger.Error("failed to close rabbitmq connection", zap.Error(err))
				return err
			}
			logger.Info("rabbitmq connection closed")
			return nil
		},
	})

	return c
}

// Channel opens a channel, dialling the broker first if needed. The dial
// gives up at the ctx deadline.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		timeout := defaultDialTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cannot connect to RabbitMQ: %w", err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("cannot connect to RabbitMQ: %w", context.DeadlineExceeded)
		}

		c.logger.Info("attempting to connect to RabbitMQ...", zap.Duration("timeout", timeout))
		conn, err := c.dial(c.url, timeout)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to RabbitMQ: %w", err)
		}
		c.conn = conn
		c.logger.Info("rabbitmq connection established successfully")
	}

	return c.conn.Channel()
}

// Close closes the underlying connection if one was opened
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
