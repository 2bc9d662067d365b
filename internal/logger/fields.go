package logger

import "go.uber.org/zap"

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity and context
	FieldSessionID = "session_id"
	FieldComponent = "component"

	// Template
	FieldTemplate = "template"
	FieldGroup    = "group"
	FieldRule     = "rule"
	FieldEntity   = "entity"

	// Source files
	FieldSource     = "source"
	FieldProvenance = "provenance"
	FieldSubject    = "subject"
	FieldSession    = "session"

	// Results
	FieldIdentity = "identity"
	FieldRun      = "run"

	// Errors
	FieldError = "error"

	// Counts and timing
	FieldCount      = "count"
	FieldWorkers    = "workers"
	FieldDurationMS = "duration_ms"
)

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	sessLogger := logger.ChildLogger(base, logger.FieldSessionID, id)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
