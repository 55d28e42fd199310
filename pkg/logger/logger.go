package logger

import (
	"context"

	"go.uber.org/zap"

	"volunteer-manager/pkg/trace"
)

var Log *zap.Logger

// NewLogger builds the process logger. Any environment other than "local"
// gets the production (JSON) encoder.
func NewLogger(env string, service string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if env == "local" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	l = l.With(zap.String("service", service))
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
