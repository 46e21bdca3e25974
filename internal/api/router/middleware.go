package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/printcheck-station/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID carries the caller's correlation ID; one is minted when absent
const HeaderRequestID = "X-Request-ID"

// LoggerMiddleware writes one access-log line per station command. The
// command code and job ID are taken from what the handler stored on the
// context.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(HeaderRequestID, requestID)

		c.Next()

		// the line controller polls health constantly
		level := slog.LevelInfo
		if c.FullPath() == "/health" {
			level = slog.LevelDebug
		}

		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("client", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
		}
		if code, ok := c.Get(handler.KeyCmdCode); ok {
			attrs = append(attrs, slog.Any("cmd_code", code))
		}
		if jobID := c.GetString(handler.KeyJobID); jobID != "" {
			attrs = append(attrs, slog.String("job_id", jobID))
		}
		logger.LogAttrs(c.Request.Context(), level, "Station command", attrs...)

		for _, e := range c.Errors {
			logger.Warn("Command rejected",
				slog.String("request_id", requestID),
				slog.String("error", e.Error()),
			)
		}
	}
}

// CORSMiddleware lets browser-based line dashboards call the station
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, "+HeaderRequestID)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Expose-Headers", HeaderRequestID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
