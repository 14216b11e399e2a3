package logger

import (
	"go.uber.org/zap"
)

var Log *zap.Logger

func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithEvent returns a logger scoped to one bus event, so every line a
// handler emits can be correlated to the envelope that caused it.
func WithEvent(logger *zap.Logger, eventID, eventType string) *zap.Logger {
	return logger.With(
		zap.String("event_id", eventID),
		zap.String("event_type", eventType),
	)
}
