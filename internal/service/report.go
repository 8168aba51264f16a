package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/docustream/report-engine/api/v1alpha1"
	artifactstore "github.com/docustream/report-engine/internal/artifacts"
	"github.com/docustream/report-engine/internal/events"
	"github.com/docustream/report-engine/internal/jobs"
	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/internal/store/model"
	"github.com/docustream/report-engine/pkg/metrics"

	pkgerrors "github.com/pkg/errors"
)

const cancelledByUser = "Cancelled by user"

// Queue is the slice of the job queue client the gateway depends on.
type Queue interface {
	Enqueue(ctx context.Context, args jobs.GenerateReportArgs) (int64, error)
	CancelPending(ctx context.Context, reportID uuid.UUID) error
}

type ReportService struct {
	store     store.Store
	queue     Queue
	artifacts artifactstore.Store
	events    *events.EventProducer
}

func NewReportService(s store.Store, queue Queue, a artifactstore.Store, ep *events.EventProducer) *ReportService {
	return &ReportService{
		store:     s,
		queue:     queue,
		artifacts: a,
		events:    ep,
	}
}

func (rs *ReportService) ListReports(ctx context.Context) (api.ReportList, error) {
	reports, err := rs.store.Report().List(ctx, store.NewReportQueryFilter(),
		store.NewReportQueryOptions().WithSortOrder(store.SortByCreatedTimeDesc))
	if err != nil {
		return nil, err
	}
	return reports.ToApiResource(), nil
}

func (rs *ReportService) GetReport(ctx context.Context, id uuid.UUID) (*api.Report, error) {
	report, err := rs.store.Report().Get(ctx, id)
	if err != nil {
		if pkgerrors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrReportNotFound(id)
		}
		return nil, err
	}
	apiReport := report.ToApiResource()
	return &apiReport, nil
}

// CreateReport persists the PENDING record first and enqueues the job after.
// A failed enqueue leaves the record behind on purpose: an orphaned PENDING
// record is detectable (ListOrphaned), a rolled-back one is not.
func (rs *ReportService) CreateReport(ctx context.Context, create api.ReportCreate) (*api.Report, error) {
	logger := zap.S().Named("report_service")

	report, err := rs.store.Report().Create(ctx, *model.NewReportFromApiCreateResource(&create))
	if err != nil {
		return nil, err
	}
	metrics.IncreaseReportsSubmittedMetric()

	if _, err := rs.queue.Enqueue(ctx, jobs.GenerateReportArgs{
		ReportID:  report.ID,
		Recipient: create.Recipient,
	}); err != nil {
		logger.Errorw("report record created but enqueue failed", "report_id", report.ID, "error", err)
		return nil, NewErrEnqueueFailed(report.ID, err)
	}

	logger.Infow("report queued", "report_id", report.ID)
	rs.emit(ctx, events.ReportCreatedKind, report)

	apiReport := report.ToApiResource()
	return &apiReport, nil
}

// CancelReport cancels a report that has not been claimed by a worker. The
// queue removal runs before the status transition: once the job is out of the
// not-yet-claimed partitions no worker can pick it up, and the conditional
// CANCELLED write then closes the path for a claim that slipped in between.
// Either actor losing its conditional step reports a conflict, never an
// ambiguous status.
func (rs *ReportService) CancelReport(ctx context.Context, id uuid.UUID) (*api.Report, error) {
	logger := zap.S().Named("report_service")

	report, err := rs.store.Report().Get(ctx, id)
	if err != nil {
		if pkgerrors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrReportNotFound(id)
		}
		return nil, err
	}

	if report.Status != string(api.ReportStatusPending) {
		return nil, NewErrReportNotCancellable(id, report.Status)
	}

	if err := rs.queue.CancelPending(ctx, id); err != nil {
		if pkgerrors.Is(err, jobs.ErrJobAlreadyClaimed) {
			return nil, NewErrCancelTooLate(id)
		}
		return nil, err
	}

	detail := cancelledByUser
	report, err = rs.store.Report().UpdateStatusIf(ctx, id,
		[]string{string(api.ReportStatusPending)},
		store.StatusUpdate{
			Status:       string(api.ReportStatusCancelled),
			ErrorMessage: &detail,
		})
	if err != nil {
		if pkgerrors.Is(err, store.ErrConcurrentUpdate) {
			return nil, NewErrCancelTooLate(id)
		}
		return nil, err
	}

	logger.Infow("report cancelled", "report_id", id)
	rs.emit(ctx, events.ReportCancelledKind, report)

	apiReport := report.ToApiResource()
	return &apiReport, nil
}

// DownloadReport returns the artifact bytes and a download file name. The
// artifact reference itself stays internal.
func (rs *ReportService) DownloadReport(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	report, err := rs.store.Report().Get(ctx, id)
	if err != nil {
		if pkgerrors.Is(err, store.ErrRecordNotFound) {
			return nil, "", NewErrReportNotFound(id)
		}
		return nil, "", err
	}

	if report.Status != string(api.ReportStatusReady) || report.ArtifactKey == nil {
		return nil, "", NewErrReportNotReady(id, report.Status)
	}

	data, err := rs.artifacts.Load(ctx, *report.ArtifactKey)
	if err != nil {
		return nil, "", err
	}

	return data, fmt.Sprintf("report-%s.html", id), nil
}

func (rs *ReportService) emit(ctx context.Context, kind string, report *model.Report) {
	if rs.events == nil {
		return
	}

	event := events.ReportEvent{
		ReportID: report.ID.String(),
		Status:   report.Status,
		Progress: report.Progress,
		Message:  report.ProgressMessage,
	}
	data, err := json.Marshal(&event)
	if err != nil {
		return
	}
	if err := rs.events.Write(ctx, kind, bytes.NewReader(data)); err != nil {
		zap.S().Named("report_service").Debugw("failed to emit report event", "error", err)
	}
}
