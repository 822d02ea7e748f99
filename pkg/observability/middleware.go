package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trimline/trimline/pkg/logger"
	"github.com/trimline/trimline/pkg/metrics"
)

// TraceIDKey is the context key for trace ID
type TraceIDKey string

const (
	// TraceIDHeader is the HTTP header for trace ID
	TraceIDHeader = "X-Trace-ID"
	// TraceIDContextKey is the context key for trace ID
	TraceIDContextKey TraceIDKey = "trace_id"
)

// ObservabilityMiddleware provides trace ID generation and metrics collection
func ObservabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Header(TraceIDHeader, traceID)
		c.Set(string(TraceIDContextKey), traceID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), TraceIDContextKey, traceID))

		role := "anonymous"
		if r, exists := c.Get("user_role"); exists {
			if roleStr, ok := r.(string); ok {
				role = roleStr
			}
		}

		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(
			c.Request.Method,
			c.FullPath(),
			statusCode,
			role,
			duration,
		)

		logger.Info("Request completed",
			logger.String("trace_id", traceID),
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.String("status", statusCode),
			logger.Float64("duration_ms", duration*1000),
			logger.String("role", role),
			logger.String("client_ip", c.ClientIP()),
		)
	}
}

// GetTraceID extracts trace ID from the gin context
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(string(TraceIDContextKey)); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// GetTraceIDFromContext extracts trace ID from context.Context
func GetTraceIDFromContext(ctx context.Context) string {
	if traceID := ctx.Value(TraceIDContextKey); traceID != nil {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return ""
}

// WithTraceID adds trace ID to context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// LogWithFields logs with trace ID and custom fields
func LogWithFields(c *gin.Context, message string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("trace_id", GetTraceID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("client_ip", c.ClientIP()),
	}, fields...)

	logger.Info(message, allFields...)
}
