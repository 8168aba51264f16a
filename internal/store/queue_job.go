package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	QueueJobStateAvailable = "available"
	QueueJobStateRunning   = "running"
	QueueJobStateRetryable = "retryable"
	QueueJobStateScheduled = "scheduled"
)

// liveQueueJobStates are the river_job states in which a job may still be
// delivered to a worker.
var liveQueueJobStates = []string{
	QueueJobStateAvailable,
	QueueJobStateRunning,
	QueueJobStateRetryable,
	QueueJobStateScheduled,
}

// notClaimedQueueJobStates are the states in which a job has not been
// dispatched to any worker yet. Only jobs in these states are removable by
// the cancellation path.
var notClaimedQueueJobStates = []string{
	QueueJobStateAvailable,
	QueueJobStateRetryable,
	QueueJobStateScheduled,
}

type QueueJob interface {
	// GetNotClaimedJob finds the queue job ID for a report that has not been
	// claimed by a worker. Returns nil if no such job exists, which means the
	// job was either already claimed or never enqueued.
	GetNotClaimedJob(ctx context.Context, reportID uuid.UUID) (*int64, error)
	// GetLiveJob finds the queue job ID for a report in any deliverable
	// state, including running.
	GetLiveJob(ctx context.Context, reportID uuid.UUID) (*int64, error)
}

type QueueJobStore struct {
	db *gorm.DB
}

var _ QueueJob = (*QueueJobStore)(nil)

func NewQueueJobStore(db *gorm.DB) QueueJob {
	return &QueueJobStore{db: db}
}

func (r *QueueJobStore) GetNotClaimedJob(ctx context.Context, reportID uuid.UUID) (*int64, error) {
	return r.getJob(ctx, reportID, notClaimedQueueJobStates)
}

func (r *QueueJobStore) GetLiveJob(ctx context.Context, reportID uuid.UUID) (*int64, error) {
	return r.getJob(ctx, reportID, liveQueueJobStates)
}

func (r *QueueJobStore) getJob(ctx context.Context, reportID uuid.UUID, states []string) (*int64, error) {
	var jobID int64

	err := r.getDB(ctx).
		Table("river_job").
		Select("id").
		Where("state IN ?", states).
		Where("args->>'report_id' = ?", reportID.String()).
		Order("id DESC").
		Limit(1).
		Scan(&jobID).Error

	if err != nil {
		return nil, err
	}

	if jobID == 0 {
		return nil, nil
	}

	return &jobID, nil
}

func (r *QueueJobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return r.db
}
