package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/solarlog-reader/internal/config"
	"github.com/septivank/solarlog-reader/internal/service"
)

// StatusProvider reports the scheduler state
type StatusProvider interface {
	Status() service.Status
}

type Server struct {
	port     int
	status   StatusProvider
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func NewServer(cfg *config.Config, status StatusProvider, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return &Server{
		port:     cfg.ServicePort,
		status:   status,
		gatherer: gatherer,
		logger:   logger,
	}
}

// HTTPServer builds the health and metrics server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Register starts the HTTP server with the application and shuts it down on
// stop. A port of 0 disables it.
func Register(lc fx.Lifecycle, s *Server) {
	if s.port == 0 {
		s.logger.Info("health server disabled")
		return
	}

	srv := s.HTTPServer()
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}
			s.logger.Info("health server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
