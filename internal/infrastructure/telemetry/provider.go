// Package telemetry wires OpenTelemetry traces, metrics and logs for the ledger.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultMetricInterval = time.Minute
	shutdownTimeout       = 10 * time.Second
)

// Config selects which signals are exported to the OTLP collector.
// All three share one endpoint and one service resource.
type Config struct {
	CollectorEndpoint string
	Insecure          bool
	ServiceName       string
	ServiceVersion    string

	Traces         bool
	SamplingRatio  float64
	Metrics        bool
	MetricInterval time.Duration
	Logs           bool
}

func (c Config) anyEnabled() bool {
	return c.Traces || c.Metrics || c.Logs
}

func (c Config) version() string {
	if c.ServiceVersion == "" {
		return "dev"
	}
	return c.ServiceVersion
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SamplingRatio >= 1:
		return sdktrace.AlwaysSample()
	case c.SamplingRatio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SamplingRatio))
	}
}

// MeterProvider hands out meters. Without an SDK provider it falls back to
// the global one, which is a no-op unless something else installed it.
type MeterProvider struct {
	sdk *sdkmetric.MeterProvider
}

// Meter returns a named meter.
func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if mp == nil || mp.sdk == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return mp.sdk.Meter(name, opts...)
}

// IsEnabled reports whether metrics are exported.
func (mp *MeterProvider) IsEnabled() bool {
	return mp != nil && mp.sdk != nil
}

// Providers owns the SDK providers installed as OpenTelemetry globals.
type Providers struct {
	Meter *MeterProvider

	tracer   *sdktrace.TracerProvider
	logs     *sdklog.LoggerProvider
	log      *zap.Logger
	shutdown []func(context.Context) error
}

// Setup builds the enabled signal pipelines and registers them globally.
// With every signal disabled it returns providers that export nothing.
func Setup(ctx context.Context, cfg Config, log *zap.Logger) (*Providers, error) {
	p := &Providers{Meter: &MeterProvider{}, log: log}
	if !cfg.anyEnabled() {
		log.Info("Telemetry export disabled")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.version()),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	steps := []struct {
		on   bool
		init func(context.Context, Config, *resource.Resource) error
	}{
		{cfg.Traces, p.initTraces},
		{cfg.Metrics, p.initMetrics},
		{cfg.Logs, p.initLogs},
	}
	for _, step := range steps {
		if !step.on {
			continue
		}
		if err := step.init(ctx, cfg, res); err != nil {
			_ = p.Shutdown(ctx)
			return nil, err
		}
	}

	log.Info("Telemetry export enabled",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("traces", cfg.Traces),
		zap.Bool("metrics", cfg.Metrics),
		zap.Bool("logs", cfg.Logs),
	)
	return p, nil
}

func (p *Providers) initTraces(ctx context.Context, cfg Config, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}
	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(p.tracer)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	p.shutdown = append(p.shutdown, p.tracer.Shutdown)
	return nil
}

func (p *Providers) initMetrics(ctx context.Context, cfg Config, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	sdk := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(sdk)
	p.Meter.sdk = sdk
	p.shutdown = append(p.shutdown, sdk.Shutdown)
	return nil
}

func (p *Providers) initLogs(ctx context.Context, cfg Config, res *resource.Resource) error {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create log exporter: %w", err)
	}
	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(p.logs)
	p.shutdown = append(p.shutdown, p.logs.Shutdown)
	return nil
}

// TracingEnabled reports whether spans are exported.
func (p *Providers) TracingEnabled() bool { return p.tracer != nil }

// LogsEnabled reports whether log records are exported.
func (p *Providers) LogsEnabled() bool { return p.logs != nil }

// LogCore returns a zap core that forwards entries at or above level to the
// log exporter, meant for logger.Config.Tee. It is a no-op core when logs are
// not exported.
func (p *Providers) LogCore(name string, level zapcore.Level) zapcore.Core {
	if p.logs == nil {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(name, otelzap.WithLoggerProvider(p.logs))
	if level <= zapcore.DebugLevel {
		return core
	}
	return &minLevelCore{Core: core, min: level}
}

// Shutdown flushes and stops the providers in reverse order of creation.
// Calling it again is a no-op.
func (p *Providers) Shutdown(ctx context.Context) error {
	if len(p.shutdown) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(p.shutdown) - 1; i >= 0; i-- {
		if err := p.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	if err := errors.Join(errs...); err != nil {
		p.log.Error("Telemetry shutdown failed", zap.Error(err))
		return fmt.Errorf("shutdown telemetry: %w", err)
	}
	p.log.Info("Telemetry flushed")
	return nil
}

// minLevelCore drops entries below min; otelzap cores accept every level.
type minLevelCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *minLevelCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *minLevelCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if entry.Level < c.min {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *minLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &minLevelCore{Core: c.Core.With(fields), min: c.min}
}
