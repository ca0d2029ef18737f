// Package logging provides structured logging with request-trace support.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used to stash request-scoped fields.
type ContextKey string

const (
	// TraceIDKey is the context key for the request trace ID.
	TraceIDKey ContextKey = "trace_id"
	// BuildTagKey is the context key for the PLATER build tag serving the request.
	BuildTagKey ContextKey = "build_tag"
	// ServiceKey is the context key for the service name.
	ServiceKey ContextKey = "service"
)

// Logger wraps logrus.Logger with the fields this domain cares about.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance for the named service.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv constructs a logger using LOG_LEVEL and LOG_FORMAT environment
// variables, defaulting to "info" and "json" when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext creates a logrus entry carrying request-scoped fields.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)

	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if buildTag := ctx.Value(BuildTagKey); buildTag != nil {
		entry = entry.WithField("build_tag", buildTag)
	}

	return entry
}

// WithFields creates a logrus entry with custom fields plus the service name.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a logrus entry carrying an error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithBuildTag adds a build tag to the context.
func WithBuildTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, BuildTagKey, tag)
}

// GetBuildTag retrieves the build tag from context.
func GetBuildTag(ctx context.Context) string {
	if tag, ok := ctx.Value(BuildTagKey).(string); ok {
		return tag
	}
	return ""
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("http request")
}

// LogCypherQuery logs a cypher statement executed against the graph database.
func (l *Logger) LogCypherQuery(ctx context.Context, cypher string, duration time.Duration, rowCount int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"cypher":      cypher,
		"duration_ms": duration.Milliseconds(),
		"row_count":   rowCount,
	})
	if err != nil {
		entry.WithError(err).Error("cypher query failed")
	} else {
		entry.Debug("cypher query executed")
	}
}

// LogServiceCall logs an outbound call between the services: AUTOMAT to a
// registered PLATER backend, or a PLATER heartbeat to AUTOMAT.
func (l *Logger) LogServiceCall(ctx context.Context, target, method string, statusCode int, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"target":      target,
		"method":      method,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("backend call failed")
	} else {
		entry.Info("backend call completed")
	}
}

// LogEndpoint logs a dispatched PLATER endpoint invocation with its kind.
func (l *Logger) LogEndpoint(ctx context.Context, kind, path string, duration time.Duration, status int) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"endpoint_kind": kind,
		"path":          path,
		"duration_ms":   duration.Milliseconds(),
		"status":        status,
	}).Info("endpoint handled")
}

// Fatal logs a fatal error and exits the process.
func (l *Logger) Fatal(ctx context.Context, message string, err error) {
	l.WithContext(ctx).WithError(err).Fatal(message)
}

var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the package-level default logger, initializing a fallback
// logger if InitDefault has not been called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("unknown", "info", "json")
	}
	return defaultLogger
}
