// Package logging provides structured logging with trace ID and tenant context support.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through request/event processing.
type ContextKey string

const (
	TraceIDKey  ContextKey = "trace_id"
	TenantIDKey ContextKey = "tenant_id"
	RuleIDKey   ContextKey = "rule_id"
)

// Logger wraps logrus.Logger with service identity and context propagation.
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

	if strings.EqualFold(format, "json") {
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

// NewFromEnv builds a logger from LOG_LEVEL / LOG_FORMAT, defaulting to info/json.
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

// WithContext returns an entry carrying trace/tenant/rule identifiers found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if tenantID := ctx.Value(TenantIDKey); tenantID != nil {
		entry = entry.WithField("tenant_id", tenantID)
	}
	if ruleID := ctx.Value(RuleIDKey); ruleID != nil {
		entry = entry.WithField("rule_id", ruleID)
	}
	return entry
}

// WithFields returns an entry with the service identity plus custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError returns an entry with the service identity plus an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// NewTraceID generates a fresh trace identifier.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID stores a trace id on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithTenantID stores a tenant id on the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// WithRuleID stores a rule id on the context.
func WithRuleID(ctx context.Context, ruleID string) context.Context {
	return context.WithValue(ctx, RuleIDKey, ruleID)
}

// TenantID retrieves the tenant id from the context, if present.
func TenantID(ctx context.Context) string {
	if v, ok := ctx.Value(TenantIDKey).(string); ok {
		return v
	}
	return ""
}

// LogIngest records the outcome of parsing+normalizing one record.
func (l *Logger) LogIngest(ctx context.Context, status string, err error) {
	entry := l.WithContext(ctx).WithField("parsing_status", status)
	if err != nil {
		entry.WithError(err).Debug("ingest record downgraded")
		return
	}
	entry.Debug("ingest record accepted")
}

// LogRuleRun records a batch or streaming rule evaluation outcome.
func (l *Logger) LogRuleRun(ctx context.Context, ruleID, mode, status string, matched int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"rule_id": ruleID,
		"mode":    mode,
		"status":  status,
		"matched": matched,
	})
	if err != nil {
		entry.WithError(err).Warn("rule run failed")
		return
	}
	entry.Info("rule run completed")
}

// LogAlertEmitted records a deterministic alert insertion.
func (l *Logger) LogAlertEmitted(ctx context.Context, alertID, ruleID string, severity string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"alert_id": alertID,
		"rule_id":  ruleID,
		"severity": severity,
	}).Info("alert emitted")
}

// Global logger instance, initialized once at process startup.
var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, falling back to a basic one if uninitialized.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("unknown", "info", "json")
	}
	return defaultLogger
}
