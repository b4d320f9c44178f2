package logging

import (
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// ConfigureLogrusJSON sets the logger to emit JSON logs in the shape that
// Cloud Logging and most collectors parse natively: `message`, `timestamp`
// and a GCP severity field, plus the trace and span ids of the entry's
// context so that discovery logs can be joined to their traces.
func ConfigureLogrusJSON(logger *log.Logger) {
	if logger == nil {
		return
	}

	logger.SetFormatter(&log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: log.FieldMap{
			log.FieldKeyMsg:  "message",
			log.FieldKeyTime: "timestamp",
		},
	})
	logger.AddHook(OtelSeverityHook{})
	logger.AddHook(TraceContextHook{})
}

// OtelSeverityHook adds a GCP-compatible severity field to log entries.
type OtelSeverityHook struct{}

func (OtelSeverityHook) Levels() []log.Level {
	return log.AllLevels
}

func (OtelSeverityHook) Fire(entry *log.Entry) error {
	if entry == nil {
		return nil
	}
	if _, ok := entry.Data["severity"]; ok {
		return nil
	}

	entry.Data["severity"] = severityForLevel(entry.Level)
	return nil
}

func severityForLevel(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return "EMERGENCY"
	case log.FatalLevel:
		return "CRITICAL"
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARNING"
	case log.InfoLevel:
		return "INFO"
	case log.DebugLevel, log.TraceLevel:
		return "DEBUG"
	default:
		return "DEFAULT"
	}
}

// TraceContextHook adds `trace_id` and `span_id` to entries logged with a
// context that carries a valid span
type TraceContextHook struct{}

func (TraceContextHook) Levels() []log.Level {
	return log.AllLevels
}

func (TraceContextHook) Fire(entry *log.Entry) error {
	if entry == nil || entry.Context == nil {
		return nil
	}

	sc := trace.SpanContextFromContext(entry.Context)
	if !sc.IsValid() {
		return nil
	}

	if _, ok := entry.Data["trace_id"]; !ok {
		entry.Data["trace_id"] = sc.TraceID().String()
	}
	if _, ok := entry.Data["span_id"]; !ok {
		entry.Data["span_id"] = sc.SpanID().String()
	}

	return nil
}
