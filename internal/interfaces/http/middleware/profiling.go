package middleware

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/licensehub/backend/internal/infrastructure/telemetry"
)

// ProfilingConfig holds configuration for the profiling middleware
type ProfilingConfig struct {
	Enabled   bool
	SkipPaths []string
}

// Profiling attaches route and method labels to the goroutine serving the
// request so CPU profiles can be split by endpoint.
func Profiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if slices.Contains(cfg.SkipPaths, c.Request.URL.Path) {
			c.Next()
			return
		}
		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) map[string]string {
	labels := make(map[string]string, 2)
	labels[telemetry.ProfilingLabelMethod] = c.Request.Method
	if route := c.FullPath(); route != "" {
		labels[telemetry.ProfilingLabelRoute] = route
	}
	return labels
}

// ProductProfiling adds the product label once ProductKeyAuth has resolved
// the caller. The key itself is never a label.
func ProductProfiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		res, ok := GetResolution(c)
		if !ok {
			c.Next()
			return
		}
		labels := profilingLabels(c)
		labels[telemetry.ProfilingLabelProduct] = string(res.Product)
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
