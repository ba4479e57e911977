package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	runIDKey
	batchIDKey
)

// WithContext attaches l to ctx.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger attached to ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID records the HTTP request ID on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithRunID records the reconciliation run ID on ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithBatchID records the raw batch being ingested on ctx.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

func stringValue(ctx context.Context, key contextKey) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// GetRequestID returns the request ID on ctx, if any.
func GetRequestID(ctx context.Context) string { return stringValue(ctx, requestIDKey) }

// GetRunID returns the run ID on ctx, if any.
func GetRunID(ctx context.Context) string { return stringValue(ctx, runIDKey) }

// GetBatchID returns the batch ID on ctx, if any.
func GetBatchID(ctx context.Context) string { return stringValue(ctx, batchIDKey) }

// Fields returns the correlation fields carried by ctx: trace and span IDs
// of a valid span, then the request, run and batch IDs that are set.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	for _, id := range []struct {
		name string
		key  contextKey
	}{{"request_id", requestIDKey}, {"run_id", runIDKey}, {"batch_id", batchIDKey}} {
		if v := stringValue(ctx, id.key); v != "" {
			fields = append(fields, zap.String(id.name, v))
		}
	}
	return fields
}

// Enrich returns l with the correlation fields of ctx.
func Enrich(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	if fields := Fields(ctx); len(fields) > 0 {
		return l.With(fields...)
	}
	return l
}

// L returns the logger attached to ctx enriched with its correlation fields.
//
//	logger.L(ctx).Info("Snapshot published", zap.Int64("version", v))
func L(ctx context.Context) *zap.Logger {
	return Enrich(ctx, FromContext(ctx))
}
