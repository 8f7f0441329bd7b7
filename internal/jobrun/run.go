package jobrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"imdata/internal/logging"
	"imdata/internal/runlog"
	"imdata/internal/services"
)

// Result is what a job reports on success.
type Result struct {
	RowsWritten int
	Issues      int
	// Skipped marks a job that had nothing to do (for example a declined
	// download with no local data).
	Skipped bool
}

// Job is one dataset refresh.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

type funcJob struct {
	name string
	fn   func(context.Context) (Result, error)
}

func (j funcJob) Name() string { return j.name }

func (j funcJob) Run(ctx context.Context) (Result, error) { return j.fn(ctx) }

// Func adapts a function to a Job.
func Func(name string, fn func(context.Context) (Result, error)) Job {
	return funcJob{name: name, fn: fn}
}

// Runner executes jobs and records them in the ledger.
type Runner struct {
	logger *slog.Logger
	ledger *runlog.Store
	now    func() time.Time
}

// NewRunner builds a runner. ledger may be nil to skip recording.
func NewRunner(logger *slog.Logger, ledger *runlog.Store) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{logger: logger, ledger: ledger, now: time.Now}
}

// RunAll runs every job in order. A failing job is logged and the next one
// still runs; the joined failures are returned. Cancellation stops the loop.
func (r *Runner) RunAll(ctx context.Context, jobs ...Job) error {
	var failures []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		if err := r.Run(ctx, job); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errors.Join(failures...)
}

// Run executes one job.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	name := job.Name()
	jobCtx := services.WithDataset(ctx, name)

	var runID string
	if r.ledger != nil {
		id, err := r.ledger.Start(jobCtx, name)
		if err != nil {
			r.logger.Warn("run ledger unavailable",
				logging.String(logging.FieldDataset, name),
				logging.String(logging.FieldEventType, "ledger_start_failed"),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
				logging.String(logging.FieldImpact, "this run will not appear in history"))
		} else {
			runID = id
			jobCtx = services.WithRunID(jobCtx, id)
		}
	}

	logger := logging.WithContext(jobCtx, r.logger)
	started := r.now()
	logger.Info("dataset started", logging.String(logging.FieldEventType, "dataset_start"))

	result, err := job.Run(jobCtx)
	elapsed := r.now().Sub(started)

	outcome := runlog.Outcome{RowsWritten: result.RowsWritten, Issues: result.Issues, Err: err}
	switch {
	case err != nil:
		outcome.Status = services.FailureStatus(err)
		logger.Error("dataset failed",
			logging.String(logging.FieldEventType, "dataset_failure"),
			logging.String("resolved_status", string(outcome.Status)),
			logging.String("error_message", strings.TrimSpace(err.Error())),
			logging.Duration("elapsed", elapsed),
			logging.Error(err))
	case result.Skipped:
		outcome.Status = runlog.StatusSkipped
		logger.Info("dataset skipped",
			logging.String(logging.FieldEventType, "dataset_skipped"),
			logging.Duration("elapsed", elapsed))
	default:
		outcome.Status = runlog.StatusSucceeded
		logger.Info("dataset completed",
			logging.String(logging.FieldEventType, "dataset_complete"),
			logging.Int("rows_written", result.RowsWritten),
			logging.Int("issues", result.Issues),
			logging.Duration("elapsed", elapsed))
	}

	if runID != "" {
		// Record the outcome even when the job context was cancelled.
		if ferr := r.ledger.Finish(context.WithoutCancel(jobCtx), runID, outcome); ferr != nil {
			logger.Warn("failed to record run outcome",
				logging.String(logging.FieldEventType, "ledger_finish_failed"),
				logging.Error(ferr),
				logging.String(logging.FieldErrorHint, "run imdata history to inspect the ledger"),
				logging.String(logging.FieldImpact, "history shows this run as still running"))
		}
	}
	return err
}
