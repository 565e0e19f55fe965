// Package middleware provides the gin middleware of the licensing API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	SkipPaths   []string
}

// Tracing wraps otelgin. Server spans are named after the route pattern and
// marked as errors for 5xx responses; after authentication the span also
// carries the license key and request ID.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	return otelgin.Middleware(cfg.ServiceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			_, skipped := skip[r.URL.Path]
			return !skipped
		}),
	)
}

// SpanEnricher annotates the server span once the handler chain has run, so
// the actor set by SessionAuth or ProductKeyAuth is visible. Place it after
// Tracing.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if actor, ok := GetActor(c); ok {
			span.SetAttributes(attribute.String(telemetry.SpanAttrLicenseKey, actor.LicenseKey.String()))
			if actor.ImpersonatedBy != "" {
				span.SetAttributes(attribute.String("impersonated_by", actor.ImpersonatedBy))
			}
		}
		if res, ok := GetResolution(c); ok {
			span.SetAttributes(attribute.String(telemetry.SpanAttrProduct, string(res.Product)))
		}
		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
