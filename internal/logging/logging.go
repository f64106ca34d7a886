// Package logging builds the zap logger used by splgraph and turns bus
// events into log lines.
package logging

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	eventbus "github.com/hanpama/splgraph/internal/eventbus"
	events "github.com/hanpama/splgraph/internal/events"
	reqid "github.com/hanpama/splgraph/internal/reqid"
)

// New creates a logger writing to stderr. level is a zap level name
// ("debug", "info", ...); format is "json" or "console".
func New(level, format string) (*zap.Logger, error) {
	return NewWithSink(level, format, zapcore.Lock(os.Stderr))
}

// NewWithSink is New with an explicit destination.
func NewWithSink(level, format string, out zapcore.WriteSyncer) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return zap.New(zapcore.NewCore(encoder, out, lvl)), nil
}

// Subscribe logs HTTP, GraphQL and @SPL events published on the global bus.
// @SPL diagnostics are logged at their own severity.
func Subscribe(logger *zap.Logger) (unsubscribe func()) {
	var unsubs []func()
	add := func(u func()) { unsubs = append(unsubs, u) }

	add(eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		logger.Info("http request",
			requestID(ctx),
			zap.String("method", e.Request.Method),
			zap.String("path", e.Request.URL.Path),
			zap.Int("status", e.Status),
			zap.Duration("duration", e.Duration),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
		logger.Debug("graphql operation started",
			requestID(ctx),
			zap.String("operation", e.OperationName),
			zap.String("type", e.OperationType),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
		fields := []zap.Field{
			requestID(ctx),
			zap.String("operation", e.OperationName),
			zap.String("type", e.OperationType),
			zap.Duration("duration", e.Duration),
		}
		if len(e.Errors) > 0 {
			logger.Warn("graphql operation finished with errors", append(fields, zap.Errors("errors", e.Errors))...)
			return
		}
		logger.Debug("graphql operation finished", fields...)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.SPLDirective) {
		fields := []zap.Field{
			requestID(ctx),
			zap.String("operation", e.OperationName),
			zap.String("path", e.Path),
			zap.String("query", e.Query),
			zap.String("outcome", e.Outcome),
		}
		switch e.Outcome {
		case "processed":
			fields = append(fields, zap.Int("before", e.Before), zap.Int("after", e.After))
		case "not-array":
			fields = append(fields, zap.String("got", e.Type))
		}
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
		}
		if ce := logger.Check(severityLevel(e.Severity), e.Message); ce != nil {
			ce.Write(fields...)
		}
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func severityLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

func requestID(ctx context.Context) zap.Field {
	if id, ok := reqid.FromContext(ctx); ok {
		return zap.Int64("request_id", id)
	}
	return zap.Skip()
}
