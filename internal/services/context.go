package services

import "context"

type contextKey string

const (
	datasetKey contextKey = "dataset"
	runIDKey   contextKey = "run_id"
	recordKey  contextKey = "record"
)

// WithDataset annotates context with the dataset being refreshed.
func WithDataset(ctx context.Context, dataset string) context.Context {
	if dataset == "" {
		return ctx
	}
	return context.WithValue(ctx, datasetKey, dataset)
}

// DatasetFromContext returns the dataset name if present.
func DatasetFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(datasetKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the run-ledger identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRecord annotates context with the key of the record being processed
// (search term, RB number, query label).
func WithRecord(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, recordKey, key)
}

// RecordFromContext returns the record key if present.
func RecordFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(recordKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
