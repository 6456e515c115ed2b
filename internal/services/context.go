package services

import "context"

type contextKey string

const (
	submissionIDKey contextKey = "submission_id"
	routineKey      contextKey = "routine"
	stageKey        contextKey = "stage"
	requestIDKey    contextKey = "request_id"
)

// WithSubmissionID annotates context with the submission being processed.
func WithSubmissionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, submissionIDKey, id)
}

// SubmissionIDFromContext extracts the submission identifier if present.
func SubmissionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(submissionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRoutine annotates context with the daemon routine name (parse, flush, warm).
func WithRoutine(ctx context.Context, routine string) context.Context {
	if routine == "" {
		return ctx
	}
	return context.WithValue(ctx, routineKey, routine)
}

// RoutineFromContext returns the routine name if present.
func RoutineFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(routineKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
