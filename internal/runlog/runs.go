package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusInvalid   Status = "invalid"
	StatusSkipped   Status = "skipped"
)

// Run is one dataset job execution.
type Run struct {
	ID          string
	Dataset     string
	Status      Status
	StartedAt   time.Time
	FinishedAt  *time.Time
	RowsWritten int
	Issues      int
	Error       string
}

// Duration reports how long the run took, or zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome summarises a finished run.
type Outcome struct {
	Status      Status
	RowsWritten int
	Issues      int
	Err         error
}

// Start records a new running job for dataset and returns its ID.
func (s *Store) Start(ctx context.Context, dataset string) (string, error) {
	id := uuid.NewString()
	started := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(ctx,
		"INSERT INTO runs (id, dataset, status, started_at) VALUES (?, ?, ?, ?)",
		id, dataset, string(StatusRunning), started,
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Finish closes the run with its outcome.
func (s *Store) Finish(ctx context.Context, id string, outcome Outcome) error {
	status := outcome.Status
	if status == "" {
		status = StatusSucceeded
		if outcome.Err != nil {
			status = StatusFailed
		}
	}
	message := ""
	if outcome.Err != nil {
		message = outcome.Err.Error()
	}
	finished := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, rows_written = ?, issues = ?, error_message = ?
		 WHERE id = ?`,
		string(status), finished, outcome.RowsWritten, outcome.Issues, message, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run id %q", id)
	}
	return nil
}

// Filter narrows List results.
type Filter struct {
	Dataset string
	Limit   int
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := "SELECT id, dataset, status, started_at, finished_at, rows_written, issues, error_message FROM runs"
	var args []any
	if ds := strings.TrimSpace(filter.Dataset); ds != "" {
		query += " WHERE dataset = ?"
		args = append(args, ds)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Latest returns the most recent run for dataset, or false when none exists.
func (s *Store) Latest(ctx context.Context, dataset string) (Run, bool, error) {
	runs, err := s.List(ctx, Filter{Dataset: dataset, Limit: 1})
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
	)
	if err := rows.Scan(&run.ID, &run.Dataset, &status, &started, &finished, &run.RowsWritten, &run.Issues, &run.Error); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = Status(status)
	ts, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	run.StartedAt = ts
	if finished.Valid && finished.String != "" {
		ft, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at %q: %w", finished.String, err)
		}
		run.FinishedAt = &ft
	}
	return run, nil
}
