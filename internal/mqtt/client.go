package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/septivank/solarlog-reader/internal/config"
	"github.com/septivank/solarlog-reader/internal/reading"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"

	defaultPublishTimeout = 5 * time.Second
)

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("solarlog_reader_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

// Client publishes readings as retained state messages
type Client struct {
	client    mqtt.Client
	baseTopic string
	logger    *zap.Logger
}

func NewClient(cfg *config.Config, opts *mqtt.ClientOptions, logger *zap.Logger) *Client {
	c := &Client{
		baseTopic: cfg.MQTT.BaseTopic,
		logger:    logger,
	}
	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}
	c.client = mqtt.NewClient(opts)
	return c
}

func (c *Client) BridgeStateTopic() string {
	return bridgeStateTopic(c.baseTopic)
}

func (c *Client) ReadingStateTopic() string {
	return fmt.Sprintf("%s/reading/state", c.baseTopic)
}

func (c *Client) Name() string {
	return "mqtt"
}

// Forward publishes r retained on the reading state topic and waits for the
// broker until ctx expires.
func (c *Client) Forward(ctx context.Context, r reading.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	return c.publish(ctx, c.ReadingStateTopic(), payload)
}

// Connect starts connecting in the background. With connect retry enabled the
// token only completes once the broker is reachable.
func (c *Client) Connect() {
	token := c.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.logger.Error("mqtt connect failed", zap.Error(err))
		}
	}()
}

// Disconnect announces the bridge offline and closes the connection
func (c *Client) Disconnect(timeout time.Duration) {
	if c.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := c.publish(ctx, c.BridgeStateTopic(), []byte(MQTT_PAYLOAD_OFFLINE)); err != nil {
			c.logger.Warn("failed to publish offline state", zap.Error(err))
		}
	}
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("mqtt connected", zap.String("base_topic", c.baseTopic))
	token := client.Publish(c.BridgeStateTopic(), 0, true, MQTT_PAYLOAD_ONLINE)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			c.logger.Warn("mqtt online state publish timed out")
		} else if err := token.Error(); err != nil {
			c.logger.Warn("failed to publish online state", zap.Error(err))
		}
	}()
}

func (c *Client) publish(ctx context.Context, topic string, payload []byte) error {
	timeout := defaultPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := c.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(timeout) {
		return errors.New("MQTT publish timed out")
	}
	return token.Error()
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
