package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logged wraps a backend and logs every call.
type Logged struct {
	next   Backend
	logger *zap.Logger
}

func WithLogging(next Backend, logger *zap.Logger) *Logged {
	return &Logged{next: next, logger: logger.Named("llm").With(zap.String("backend", next.Name()))}
}

func (l *Logged) Name() string { return l.next.Name() }

func (l *Logged) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	start := time.Now()
	text, err := l.next.Complete(ctx, system, turns)

	fields := []zap.Field{
		zap.Int("system_len", len(system)),
		zap.Int("turns", len(turns)),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		l.logger.Warn("completion failed", append(fields, zap.Error(err))...)
		return "", err
	}
	l.logger.Debug("completion", append(fields, zap.Int("response_len", len(text)))...)
	return text, nil
}
