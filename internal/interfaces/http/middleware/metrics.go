// Package middleware provides HTTP middleware for the ledger API.
package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig enables request metrics on the exporting meter provider.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	Enabled       bool
}

// attrStatusClass groups status codes so error rates can be computed per class
var attrStatusClass = attribute.Key("http.status_class")

// Source file uploads dominate request sizes; snapshot pages dominate responses
var (
	requestSizeBuckets  = []float64{1e2, 1e3, 1e4, 1e5, 1e6, 5e6, 2e7, 5e7}
	responseSizeBuckets = []float64{1e2, 5e2, 1e3, 5e3, 1e4, 5e4, 1e5, 5e5, 1e6, 5e6}
)

type httpMetrics struct {
	requests     *telemetry.Counter
	duration     *telemetry.Histogram
	requestSize  *telemetry.Histogram
	responseSize *telemetry.Histogram
	inFlight     metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	var errs []error
	histogram := func(name, description, unit string, bounds []float64) *telemetry.Histogram {
		h, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
			Name: name, Description: description, Unit: unit, Boundaries: bounds,
		})
		errs = append(errs, err)
		return h
	}

	m := &httpMetrics{
		duration:     histogram("http_server_request_duration_seconds", "HTTP request latency", "s", telemetry.HTTPDurationBuckets),
		requestSize:  histogram("http_server_request_size_bytes", "HTTP request body size", "By", requestSizeBuckets),
		responseSize: histogram("http_server_response_size_bytes", "HTTP response body size", "By", responseSizeBuckets),
	}
	var err error
	m.requests, err = telemetry.NewCounter(meter, "http_server_request_total", "HTTP requests served", "{request}")
	errs = append(errs, err)
	m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics records request count, latency, body sizes and in-flight
// requests per route pattern. It is a pass-through unless metrics export.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || !cfg.MeterProvider.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true)
}

// HTTPMetricsWithMeter records the request metrics on meter.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return passThrough
	}
	return m.observe
}

func passThrough(c *gin.Context) {
	c.Next()
}

func (m *httpMetrics) observe(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()
	inBytes := c.Request.ContentLength

	m.inFlight.Add(ctx, 1)
	c.Next()
	m.inFlight.Add(ctx, -1)

	// Route patterns keep cardinality bounded, unlike raw paths
	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}
	status := c.Writer.Status()
	attrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(c.Request.Method),
		telemetry.AttrHTTPRoute.String(route),
	}

	m.requests.Inc(ctx, append(attrs,
		telemetry.AttrHTTPStatusCode.Int(status),
		attrStatusClass.String(HTTPMetricsStatusGroup(status)))...)
	m.duration.RecordDuration(ctx, time.Since(start), attrs...)
	if inBytes > 0 {
		m.requestSize.Record(ctx, float64(inBytes), attrs...)
	}
	if out := c.Writer.Size(); out > 0 {
		m.responseSize.Record(ctx, float64(out), attrs...)
	}
}

// HTTPMetricsStatusGroup returns the class of a status code, e.g. "4xx".
func HTTPMetricsStatusGroup(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 200:
		return strconv.Itoa(status/100) + "xx"
	default:
		return "other"
	}
}
