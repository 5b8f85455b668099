// Package slogadapter bridges log/slog into the core's Logger interface.
package slogadapter

import (
	"log/slog"

	"github.com/antonzymin-eng/simcore"
)

type Adapter struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) With(key string, value any) simcore.Logger {
	return &Adapter{logger: a.logger.With(key, value)}
}

func (a *Adapter) Info(msg string, keysAndValues ...any) {
	a.logger.Info(msg, keysAndValues...)
}

func (a *Adapter) Error(msg string, keysAndValues ...any) {
	a.logger.Error(msg, keysAndValues...)
}
