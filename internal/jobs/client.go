package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"

	"github.com/docustream/report-engine/internal/config"
	"github.com/docustream/report-engine/internal/store"
)

// Client wraps the River client with the operations the gateway needs:
// durable enqueue and removal of not-yet-claimed jobs. Queue bookkeeping
// (attempts, lock state) stays inside River and is never report status.
type Client struct {
	*river.Client[pgx.Tx]
	queueJobs store.QueueJob
}

// NewClient builds a queue client. With a nil workers bundle the client is
// insert-only, which is how the API process runs when the worker runs
// elsewhere.
func NewClient(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, workers *river.Workers, queueJobs store.QueueJob) (*Client, error) {
	riverCfg := &river.Config{
		RetryPolicy: &exponentialRetryPolicy{base: cfg.Queue.BackoffBase},

		// Stalled jobs are reclaimed and redelivered; the worker's
		// idempotency gate makes the redelivery safe.
		RescueStuckJobsAfter: cfg.Queue.RescueAfter,

		FetchCooldown:     50 * time.Millisecond,
		FetchPollInterval: 100 * time.Millisecond,

		// Job retention is operational visibility only, never the authority
		// on report status.
		CancelledJobRetentionPeriod: cfg.Queue.CompletedRetention,
		CompletedJobRetentionPeriod: cfg.Queue.CompletedRetention,
		DiscardedJobRetentionPeriod: cfg.Queue.DiscardedRetention,
	}

	if workers != nil {
		riverCfg.Workers = workers
		riverCfg.Queues = map[string]river.QueueConfig{
			DefaultQueue: {MaxWorkers: cfg.Queue.Workers},
		}
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, err
	}

	return &Client{Client: riverClient, queueJobs: queueJobs}, nil
}

// Enqueue durably records a unit of work for the report.
func (c *Client) Enqueue(ctx context.Context, args GenerateReportArgs) (int64, error) {
	result, err := c.Insert(ctx, args, nil)
	if err != nil {
		return 0, err
	}
	return result.Job.ID, nil
}

// CancelPending removes the report's job from the queue if and only if it has
// not been dispatched to a worker. ErrJobAlreadyClaimed is returned when the
// job is running or gone, in which case the report must not be marked
// CANCELLED.
func (c *Client) CancelPending(ctx context.Context, reportID uuid.UUID) error {
	jobID, err := c.queueJobs.GetNotClaimedJob(ctx, reportID)
	if err != nil {
		return err
	}
	if jobID == nil {
		return ErrJobAlreadyClaimed
	}

	row, err := c.JobCancel(ctx, *jobID)
	if err != nil {
		if errors.Is(err, river.ErrNotFound) {
			return ErrJobAlreadyClaimed
		}
		return err
	}

	// JobCancel on a job that got claimed in the meantime only flags it;
	// the job keeps running. That is a lost race.
	if row.State == rivertype.JobStateRunning {
		return ErrJobAlreadyClaimed
	}

	return nil
}
