package observability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/requestctx"
)

// EventLogger is the logging contract taken by services: an event name plus structured fields.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// NewLogger builds the JSON logger Cloud Logging understands (severity, message, timestamp).
// STOREFRONT_LOG_LEVEL, then LOG_LEVEL, selects the level; info is the default.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	for _, name := range []string{"STOREFRONT_LOG_LEVEL", "LOG_LEVEL"} {
		if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
			level, err := zapcore.ParseLevel(raw)
			if err != nil {
				return nil, fmt.Errorf("observability: %s: %w", name, err)
			}
			cfg.Level = zap.NewAtomicLevelAt(level)
			break
		}
	}
	return cfg.Build()
}

// WithLogger is requestctx.WithLogger, for callers outside the request path.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// NewEventLogger bridges the service logging contract to zap. The request-scoped logger
// wins over base so events carry request and trace ids. Events with an "error" field are
// logged at warn level.
func NewEventLogger(base *zap.Logger) EventLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		zapFields := make([]zap.Field, 0, len(fields)+1)
		zapFields = append(zapFields, zap.String("event", sanitizeString(event, 120)))
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			zapFields = append(zapFields, eventField(key, fields[key]))
		}
		if _, failed := fields["error"]; failed {
			logger.Warn(event, zapFields...)
			return
		}
		logger.Info(event, zapFields...)
	}
}

func eventField(key string, value any) zap.Field {
	switch v := value.(type) {
	case string:
		return zap.String(key, sanitizeString(v, 512))
	case error:
		return zap.String(key, sanitizeString(v.Error(), 512))
	case fmt.Stringer:
		return zap.String(key, sanitizeString(v.String(), 512))
	default:
		return zap.Any(key, v)
	}
}

// LeveledAdapter adapts zap to printf-style leveled logging interfaces such as the one
// the Stripe client accepts.
type LeveledAdapter struct {
	logger *zap.SugaredLogger
}

// NewLeveledAdapter creates a LeveledAdapter backed by the supplied logger.
func NewLeveledAdapter(logger *zap.Logger) LeveledAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return LeveledAdapter{logger: logger.Sugar()}
}

func (a LeveledAdapter) Debugf(format string, args ...any) { a.logger.Debugf(format, args...) }
func (a LeveledAdapter) Infof(format string, args ...any)  { a.logger.Infof(format, args...) }
func (a LeveledAdapter) Warnf(format string, args ...any)  { a.logger.Warnf(format, args...) }
func (a LeveledAdapter) Errorf(format string, args ...any) { a.logger.Errorf(format, args...) }
