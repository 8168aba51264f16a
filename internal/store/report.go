package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	api "github.com/docustream/report-engine/api/v1alpha1"
	"github.com/docustream/report-engine/internal/store/model"
)

// StatusUpdate carries the fields written together with a status transition.
// Nil fields are left untouched.
type StatusUpdate struct {
	Status          string
	Progress        *int
	ProgressMessage *string
	ArtifactKey     *string
	ErrorMessage    *string
}

type Report interface {
	List(ctx context.Context, filter *ReportQueryFilter, opts *ReportQueryOptions) (model.ReportList, error)
	Create(ctx context.Context, report model.Report) (*model.Report, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Report, error)
	// UpdateStatusIf performs the transition in a single conditional write:
	// the row is updated only when its current status is one of fromStatuses.
	// ErrConcurrentUpdate is returned when another actor transitioned the
	// record first; this is the arbiter of the cancel-vs-claim race.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, fromStatuses []string, update StatusUpdate) (*model.Report, error)
	// UpdateProgress advances the progress checkpoint of a RUNNING record.
	// Progress never regresses; a stale write is rejected with
	// ErrConcurrentUpdate.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, message string) error
	// ListOrphaned returns PENDING records older than the given age that have
	// no live entry in the job queue. Such records are the result of a
	// submission whose enqueue failed after the record was created.
	ListOrphaned(ctx context.Context, olderThan time.Duration) (model.ReportList, error)
	InitialMigration(ctx context.Context) error
}

type ReportStore struct {
	db *gorm.DB
}

// Make sure we conform to Report interface
var _ Report = (*ReportStore)(nil)

func NewReport(db *gorm.DB) Report {
	return &ReportStore{db: db}
}

func (s *ReportStore) InitialMigration(ctx context.Context) error {
	return s.getDB(ctx).AutoMigrate(&model.Report{})
}

func (s *ReportStore) List(ctx context.Context, filter *ReportQueryFilter, opts *ReportQueryOptions) (model.ReportList, error) {
	var reports model.ReportList
	tx := s.getDB(ctx).Model(&model.Report{})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if result := tx.Find(&reports); result.Error != nil {
		return nil, result.Error
	}
	return reports, nil
}

func (s *ReportStore) Create(ctx context.Context, report model.Report) (*model.Report, error) {
	if report.Status == "" {
		report.Status = string(api.ReportStatusPending)
	}
	result := s.getDB(ctx).Clauses(clause.Returning{}).Create(&report)
	if result.Error != nil {
		return nil, s.translateError(result.Error)
	}
	return &report, nil
}

func (s *ReportStore) Get(ctx context.Context, id uuid.UUID) (*model.Report, error) {
	report := model.NewReportFromId(id)
	result := s.getDB(ctx).First(&report)
	if result.Error != nil {
		return nil, s.translateError(result.Error)
	}
	return report, nil
}

func (s *ReportStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, fromStatuses []string, update StatusUpdate) (*model.Report, error) {
	values := map[string]any{
		"status":     update.Status,
		"updated_at": time.Now(),
	}
	if update.Progress != nil {
		values["progress"] = *update.Progress
	}
	if update.ProgressMessage != nil {
		values["progress_message"] = *update.ProgressMessage
	}
	if update.ArtifactKey != nil {
		values["artifact_key"] = *update.ArtifactKey
	}
	if update.ErrorMessage != nil {
		values["error_message"] = *update.ErrorMessage
	}

	result := s.getDB(ctx).Model(&model.Report{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(values)
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		// distinguish a missing record from a lost race
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConcurrentUpdate
	}

	return s.Get(ctx, id)
}

func (s *ReportStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, message string) error {
	result := s.getDB(ctx).Model(&model.Report{}).
		Where("id = ? AND status = ? AND progress <= ?", id, string(api.ReportStatusRunning), progress).
		Updates(map[string]any{
			"progress":         progress,
			"progress_message": message,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrConcurrentUpdate
	}
	return nil
}

func (s *ReportStore) ListOrphaned(ctx context.Context, olderThan time.Duration) (model.ReportList, error) {
	var reports model.ReportList
	cutoff := time.Now().Add(-olderThan)

	result := s.getDB(ctx).Model(&model.Report{}).
		Where("status = ? AND created_at < ?", string(api.ReportStatusPending), cutoff).
		Where(`NOT EXISTS (
			SELECT 1 FROM river_job
			WHERE river_job.args->>'report_id' = report_requests.id::text
			AND river_job.state IN ?)`, liveQueueJobStates).
		Find(&reports)
	if result.Error != nil {
		return nil, result.Error
	}
	return reports, nil
}

func (s *ReportStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *ReportStore) translateError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}
