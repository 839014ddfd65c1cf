package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	limiter "github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/api/responses"
	"github.com/Aidin1998/talabin/pkg/errors"
	"github.com/Aidin1998/talabin/pkg/metrics"
)

// requestTrace assigns every request a trace id. The id of an incoming
// X-Trace-ID header or the active span wins over a fresh one.
func requestTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
				traceID = sc.TraceID().String()
			} else {
				traceID = uuid.NewString()
			}
		}
		c.Set("trace_id", traceID)
		c.Header("X-Trace-ID", traceID)
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// httpMetrics records request counts and latency by route template.
func httpMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// rateLimit limits each client IP to the formatted rate, e.g. "300-M".
func rateLimit(formatted string, logger *zap.Logger) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", formatted, err)
	}
	return ginlimiter.NewMiddleware(limiter.New(memory.NewStore(), rate),
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			responses.Error(c, errors.Status(http.StatusTooManyRequests).Explain("rate limit of %s exceeded", formatted))
		}),
		ginlimiter.WithErrorHandler(func(c *gin.Context, err error) {
			logger.Warn("rate limiter failed", zap.Error(err))
			c.Next()
		}),
	), nil
}
