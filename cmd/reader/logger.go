package main

import (
	"github.com/septivank/solarlog-reader/internal/config"
	"github.com/septivank/solarlog-reader/internal/logging"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}

// fxLogger routes fx's own events through the application logger at debug level
func fxLogger(logger *zap.Logger) fxevent.Logger {
	l := &fxevent.ZapLogger{Logger: logger}
	l.UseLogLevel(zap.DebugLevel)
	return l
}
