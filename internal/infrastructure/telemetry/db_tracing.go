package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls the statement spans.
type DBTracingConfig struct {
	Enabled bool
	// IncludeVars puts bound query values into span SQL. Payment amounts
	// and party names end up in traces, so keep it off outside development.
	IncludeVars bool
	// SlowQuery marks spans of statements slower than this. Default 200ms.
	SlowQuery time.Duration
	// System is the db.system attribute. Default "postgresql".
	System string
	// TracerProvider replaces the global provider.
	TracerProvider trace.TracerProvider
}

// DBTracing installs otelgorm plus hooks that add rows affected, the table
// and a slow statement event to each statement span.
type DBTracing struct {
	cfg DBTracingConfig
	log *zap.Logger
}

// NewDBTracing fills in defaults for cfg.
func NewDBTracing(cfg DBTracingConfig, log *zap.Logger) *DBTracing {
	if cfg.SlowQuery <= 0 {
		cfg.SlowQuery = 200 * time.Millisecond
	}
	if cfg.System == "" {
		cfg.System = "postgresql"
	}
	return &DBTracing{cfg: cfg, log: log}
}

// Register installs the tracing on db. It does nothing when disabled and
// fails if db already carries it.
func (t *DBTracing) Register(db *gorm.DB) error {
	if !t.cfg.Enabled {
		t.log.Debug("Database tracing disabled")
		return nil
	}
	opts := []otelgorm.Option{otelgorm.WithDBName(t.cfg.System)}
	if !t.cfg.IncludeVars {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if t.cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(t.cfg.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}
	if err := hookStatements(db, "ledger_trace", func(string) func(*gorm.DB) { return t.annotate }); err != nil {
		return err
	}
	t.log.Info("Database tracing enabled",
		zap.String("db_system", t.cfg.System),
		zap.Bool("include_vars", t.cfg.IncludeVars),
		zap.Duration("slow_query", t.cfg.SlowQuery),
	)
	return nil
}

func (t *DBTracing) annotate(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
	}
	// A missing row is an answer, not a failure
	if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if elapsed, ok := queryElapsed(ctx); ok && elapsed > t.cfg.SlowQuery {
		attrs = append(attrs,
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()))
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", t.cfg.SlowQuery.Milliseconds()),
		))
	}
	span.SetAttributes(attrs...)
}
