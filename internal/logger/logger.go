package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	zap *zap.Logger
}

type Option func(*zap.Config)

// WithFile also writes logs to dir/<service>.log.
func WithFile(dir, service string) Option {
	return func(cfg *zap.Config) {
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(dir, service+".log"))
	}
}

// WithDebug lowers the level to debug, whatever the environment.
func WithDebug() Option {
	return func(cfg *zap.Config) {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
}

func New(env string, serviceName string, opts ...Option) (*Logger, error) {
	var cfg zap.Config
	switch env {
	case "development":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.CallerKey = "caller"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "staging", "production":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown environment: %s", env)
	}

	cfg.OutputPaths = []string{"stdout"}
	for _, o := range opts {
		o(&cfg)
	}
	for _, p := range cfg.OutputPaths {
		if p == "stdout" || p == "stderr" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	zapLogger = zapLogger.With(zap.String("service", serviceName))

	return &Logger{zap: zapLogger}, nil
}

// Wrap adapts an existing zap logger, e.g. zap.NewNop() in tests.
func Wrap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

// Zap returns the underlying logger. Components take *zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

func (l *Logger) Named(name string) *zap.Logger {
	return l.zap.Named(name)
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	l.zap.Error(msg, append(fields, zap.Error(err))...)
}

func (l *Logger) Sync() {
	_ = l.zap.Sync()
}

// Trace logs msg and records it as a span event under ctx.
func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	_, span := otel.Tracer("logger").Start(ctx, msg)
	defer span.End()
	l.zap.Info(msg, fields...)
	span.SetAttributes(attribute.String("log.message", msg))
	span.SetAttributes(attribute.String("timestamp", time.Now().Format(time.RFC3339)))
}
