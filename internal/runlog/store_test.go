package runlog_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"imdata/internal/runlog"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func openStore(t *testing.T) *runlog.Store {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store, err := runlog.Open(filepath.Join(t.TempDir(), "state", "runs.db"), runlog.WithClock(clock.now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStartFinishAndList(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	first, err := store.Start(ctx, "companies")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.Finish(ctx, first, runlog.Outcome{RowsWritten: 120}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	second, err := store.Start(ctx, "land-transactions")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.Finish(ctx, second, runlog.Outcome{Issues: 3, Err: errors.New("download failed")}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	runs, err := store.List(ctx, runlog.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[0].Status != runlog.StatusFailed || runs[0].Error != "download failed" || runs[0].Issues != 3 {
		t.Fatalf("unexpected newest run %+v", runs[0])
	}
	if runs[1].Status != runlog.StatusSucceeded || runs[1].RowsWritten != 120 {
		t.Fatalf("unexpected oldest run %+v", runs[1])
	}
	if runs[1].Duration() != time.Minute {
		t.Fatalf("expected one minute duration, got %s", runs[1].Duration())
	}
}

func TestListFiltersByDatasetAndLimit(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	for _, ds := range []string{"companies", "openstreetmap", "companies"} {
		if _, err := store.Start(ctx, ds); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.List(ctx, runlog.Filter{Dataset: "companies", Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 || runs[0].Dataset != "companies" || runs[0].Status != runlog.StatusRunning {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if runs[0].FinishedAt != nil {
		t.Fatal("expected running job without finish time")
	}
	latest, ok, err := store.Latest(ctx, "openstreetmap")
	if err != nil || !ok || latest.Dataset != "openstreetmap" {
		t.Fatalf("unexpected latest %+v ok=%v err=%v", latest, ok, err)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := openStore(t)
	if err := store.Finish(context.Background(), "missing", runlog.Outcome{}); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := runlog.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Start(context.Background(), "planning-applications"); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := runlog.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.List(context.Background(), runlog.Filter{})
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected persisted run, got %v err=%v", runs, err)
	}
}
