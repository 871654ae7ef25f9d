package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/metrics"
)

// NewEngine returns a gin engine with recovery, request logging, metrics and
// JSON 405 responses for routes registered under another method.
func NewEngine(app string, m *metrics.Metrics, log *slog.Logger) *gin.Engine {
	SetupValidator()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(Recovery(log), RequestLogger(log), m.Middleware(app))

	r.NoMethod(func(c *gin.Context) {
		Error(c, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "Not found")
	})

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return r
}

func Error(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// RequestLogger logs one line per request, at a level picked by status code.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"clientIP", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.Errors())
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			log.ErrorContext(ctx, "HTTP request", attrs...)
		case status >= http.StatusBadRequest:
			log.WarnContext(ctx, "HTTP request", attrs...)
		default:
			log.DebugContext(ctx, "HTTP request", attrs...)
		}
	}
}

// Recovery turns a handler panic into a logged 500.
func Recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.ErrorContext(c.Request.Context(), "Recovered from panic",
					"panic", rec,
					"method", c.Request.Method,
					"path", c.Request.URL.Path)
				Error(c, http.StatusInternalServerError, "Internal server error")
			}
		}()

		c.Next()
	}
}
