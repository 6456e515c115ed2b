package logging

import (
	"context"
	"log/slog"

	"catalogcron/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSubmissionID is the standardized key for submission identifiers.
	FieldSubmissionID = "submission_id"
	// FieldAcronym is the standardized key for ontology acronyms.
	FieldAcronym = "acronym"
	// FieldRoutine is the standardized key for daemon routine names.
	FieldRoutine = "routine"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind is the sentinel marker carried by a logged error.
	FieldErrorKind = "error_kind"
	// FieldCorrelationID is the standardized key for routine run identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SubmissionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSubmissionID, id))
	}
	if routine, ok := services.RoutineFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRoutine, routine))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
