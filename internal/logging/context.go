package logging

import (
	"context"
	"log/slog"

	"imdata/internal/services"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldDataset is the structured logging key for dataset names.
	FieldDataset = "dataset"
	// FieldRunID is the structured logging key for run-ledger identifiers.
	FieldRunID = "run_id"
	// FieldRecord is the structured logging key for the record being processed.
	FieldRecord = "record"
	// FieldEventType names the kind of event a warning or error describes.
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision being logged.
	FieldDecisionType = "decision_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if ds, ok := services.DatasetFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDataset, ds))
	}
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if rec, ok := services.RecordFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRecord, rec))
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
	return logger.With(Args(fields...)...)
}
