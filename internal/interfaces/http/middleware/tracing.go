package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps request IDs taken from headers.
const MaxRequestIDLength = 128

// Route parameters copied onto the request span
var tracedParams = map[string]attribute.Key{
	"kind":        "ledger.record_kind",
	"sequence_no": "ledger.sequence_no",
}

// Tracing returns the request span middleware: otelgin, which names spans
// "METHOD /route/pattern", followed by annotateSpan. It returns no handlers
// when tracing is off. RequestID must run first.
func Tracing(service string, enabled bool) []gin.HandlerFunc {
	if !enabled {
		return nil
	}
	return []gin.HandlerFunc{otelgin.Middleware(service), annotateSpan}
}

// annotateSpan adds the request ID and ledger route parameters to the span,
// and after the handler marks 4xx responses failed. otelgin itself only
// marks 5xx.
func annotateSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		c.Next()
		return
	}
	if id := getRequestID(c); id != "" {
		span.SetAttributes(attribute.String("request_id", id))
	}
	for _, p := range c.Params {
		if key, ok := tracedParams[p.Key]; ok && p.Value != "" {
			span.SetAttributes(key.String(p.Value))
		}
	}

	c.Next()

	status := c.Writer.Status()
	if status < http.StatusBadRequest {
		return
	}
	span.SetStatus(codes.Error, http.StatusText(status))
	if err := c.Errors.Last(); err != nil {
		span.SetAttributes(attribute.String("error.message", err.Error()))
	}
}

// getRequestID returns the ID set by RequestID, falling back to the header
// cut to MaxRequestIDLength.
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDKey)
	if len(id) > MaxRequestIDLength {
		id = id[:MaxRequestIDLength]
	}
	return id
}
