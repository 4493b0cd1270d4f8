package logging

import (
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shopchat/internal/config"
)

const (
	RequestIDHeader     = "X-Request-ID"
	requestIDContextKey = "request_id"
)

// DebugEnabled reports whether the worker dispatcher trace was requested via env.
var DebugEnabled = strings.EqualFold(os.Getenv("SHOPCHAT_WORKER_DEBUG"), "1")

// Setup configures the global logrus logger from config.
func Setup(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if DebugEnabled {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Middleware tags every request with an id and logs it once it completes.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDContextKey, reqID)
		c.Writer.Header().Set(RequestIDHeader, reqID)

		c.Next()

		entry := logrus.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case c.Writer.Status() >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}

// FromContext returns a logger carrying the request id of c, if any.
func FromContext(c *gin.Context) *logrus.Entry {
	if c == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	if v, ok := c.Get(requestIDContextKey); ok {
		if id, ok := v.(string); ok {
			return logrus.WithField("request_id", id)
		}
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
