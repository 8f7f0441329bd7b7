package services_test

import (
	"context"
	"testing"

	"imdata/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithDataset(ctx, "companies")
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithRecord(ctx, "holdings")

	if ds, ok := services.DatasetFromContext(ctx); !ok || ds != "companies" {
		t.Fatalf("unexpected dataset: %v %v", ds, ok)
	}
	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if rec, ok := services.RecordFromContext(ctx); !ok || rec != "holdings" {
		t.Fatalf("unexpected record: %v %v", rec, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithDataset(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.DatasetFromContext(ctx); ok {
		t.Fatal("expected no dataset value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id value")
	}
}
