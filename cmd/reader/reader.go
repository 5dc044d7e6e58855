package main

import (
	"context"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/solarlog-reader/internal/config"
	"github.com/septivank/solarlog-reader/internal/ingress"
	"github.com/septivank/solarlog-reader/internal/metrics"
	"github.com/septivank/solarlog-reader/internal/mq"
	"github.com/septivank/solarlog-reader/internal/mqtt"
	"github.com/septivank/solarlog-reader/internal/reading"
	"github.com/septivank/solarlog-reader/internal/server"
	"github.com/septivank/solarlog-reader/internal/service"
	"github.com/septivank/solarlog-reader/internal/solarlog"
)

const mqttDisconnectTimeout = 2 * time.Second

func startReader(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	reader *service.ReaderService,
	device *solarlog.Client,
	publisher *ingress.Client,
) {
	// Create context for the poll loop that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting solarlog reader",
				zap.String("version", versioninfo.Short()),
				zap.String("device_endpoint", device.Endpoint()),
				zap.String("timezone", cfg.Device.Timezone),
				zap.String("ingress_url", publisher.URL()),
				zap.Duration("interval", cfg.Interval()))
			go func() {
				defer close(done)
				reader.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				logger.Info("reader stopped gracefully")
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// ProvideDeviceClient creates the Solar-Log HTTP client
func ProvideDeviceClient(cfg *config.Config) (*solarlog.Client, error) {
	return solarlog.NewClient(
		solarlog.Address{Host: cfg.Device.IP, Port: cfg.Device.Port},
		solarlog.WithTimeout(cfg.Device.Timeout),
	)
}

// ProvideNormalizer creates the normalizer for the configured device timezone
func ProvideNormalizer(cfg *config.Config) (*reading.Normalizer, error) {
	return reading.NewNormalizer(cfg.Device.Timezone)
}

// ProvideIngressClient creates the ingress API client
func ProvideIngressClient(cfg *config.Config) *ingress.Client {
	return ingress.NewClient(cfg.API.BaseURL, cfg.API.DeviceToken, ingress.WithTimeout(cfg.API.Timeout))
}

// ProvideRegistry creates the Prometheus registry with the Go runtime collectors
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics registers the reader collectors
func ProvideMetrics(reg *prometheus.Registry) (*metrics.Metrics, error) {
	return metrics.New(reg)
}

// ProvideForwarders creates the optional AMQP and MQTT sinks
func ProvideForwarders(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) []service.Forwarder {
	var forwarders []service.Forwarder

	if cfg.RabbitMQ.URL != "" {
		conn := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
		publisher := mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey, logger)
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return publisher.Close()
			},
		})
		forwarders = append(forwarders, publisher)
	}

	if cfg.MQTT.Host != "" {
		client := mqtt.NewClient(cfg, mqtt.OptsFromConfig(cfg), logger)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				client.Connect()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				client.Disconnect(mqttDisconnectTimeout)
				return nil
			},
		})
		forwarders = append(forwarders, client)
	}

	return forwarders
}

// ProvideReaderService creates the poll loop service
func ProvideReaderService(
	device *solarlog.Client,
	normalizer *reading.Normalizer,
	publisher *ingress.Client,
	forwarders []service.Forwarder,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *service.ReaderService {
	return service.NewReaderService(device, normalizer, publisher, forwarders, cfg, m, logger)
}

// ProvideServer creates the health and metrics server
func ProvideServer(cfg *config.Config, reader *service.ReaderService, reg *prometheus.Registry, logger *zap.Logger) *server.Server {
	return server.NewServer(cfg, reader, reg, logger)
}
