package middleware

import (
	"go.uber.org/zap"

	"github.com/sieveio/sieve/sub"
)

// Logger logs each event that passes through the delivery pipeline.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a logging middleware. A nil logger logs nowhere.
func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{logger: l}
}

// Wrap decorates the handler with event logging.
func (l *Logger) Wrap(next Handler) Handler {
	return func(ev sub.Event) *sub.Event {
		switch ev.Kind {
		case sub.EventItem:
			l.logger.Debug("event",
				zap.String("chain", ev.Item.ItemChain().String()),
				zap.String("kind", ev.Item.ItemKind().String()),
				zap.Int("filter", ev.FilterIndex),
			)
		case sub.EventMatch:
			l.logger.Debug("window match", zap.Int("items", len(ev.Items)))
		case sub.EventTimeout:
			l.logger.Debug("window timeout")
		case sub.EventError:
			l.logger.Warn("stream error", zap.Error(ev.Err))
		}
		return next(ev)
	}
}
