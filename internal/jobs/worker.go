package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	api "github.com/docustream/report-engine/api/v1alpha1"
	"github.com/docustream/report-engine/internal/events"
	"github.com/docustream/report-engine/internal/notifier"
	"github.com/docustream/report-engine/internal/renderer"
	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/internal/store/model"
	"github.com/docustream/report-engine/pkg/metrics"

	artifactstore "github.com/docustream/report-engine/internal/artifacts"
)

// Progress checkpoints of the processing pipeline. Progress only moves
// forward while the record is RUNNING.
const (
	progressStarted     = 10
	progressFetched     = 30
	progressTransformed = 50
	progressRendering   = 60
	progressRendered    = 70
	progressPersisted   = 85
	progressDone        = 100
)

type ReportWorker struct {
	river.WorkerDefaults[GenerateReportArgs]
	store     store.Store
	renderer  renderer.Renderer
	artifacts artifactstore.Store
	notifier  notifier.Notifier
	events    *events.EventProducer
}

func NewReportWorker(s store.Store, r renderer.Renderer, a artifactstore.Store, n notifier.Notifier, ep *events.EventProducer) *ReportWorker {
	return &ReportWorker{store: s, renderer: r, artifacts: a, notifier: n, events: ep}
}

func (w *ReportWorker) Timeout(job *river.Job[GenerateReportArgs]) time.Duration {
	return JobTimeout
}

// Work drives one delivery of a report job through the pipeline. Every
// delivery re-reads the record first: a redelivery of an already successful
// job (stall false-positive) must not repeat any side effect, and a record
// cancelled before claim must not be processed at all.
func (w *ReportWorker) Work(ctx context.Context, job *river.Job[GenerateReportArgs]) error {
	logger := zap.S().Named("report_worker")
	reportID := job.Args.ReportID
	start := time.Now()

	report, err := w.store.Report().Get(ctx, reportID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// a job without a record is corrupt; retrying cannot help
			return river.JobCancel(fmt.Errorf("report %s has no status record", reportID))
		}
		return err
	}

	// idempotency gate
	switch api.StringToReportStatus(report.Status) {
	case api.ReportStatusReady:
		logger.Infow("report already completed, skipping redelivery", "report_id", reportID)
		metrics.IncreaseReportsProcessedMetric("skipped")
		return nil
	case api.ReportStatusCancelled:
		logger.Infow("report cancelled, declining to process", "report_id", reportID)
		metrics.IncreaseReportsProcessedMetric("declined")
		return river.JobCancel(fmt.Errorf("report %s cancelled before processing", reportID))
	case api.ReportStatusFailed:
		logger.Infow("report already failed, declining redelivery", "report_id", reportID)
		metrics.IncreaseReportsProcessedMetric("declined")
		return river.JobCancel(fmt.Errorf("report %s in terminal status %s", reportID, report.Status))
	}

	// Claim the record. The conditional write is the arbiter against a
	// concurrent cancel: exactly one of the two wins.
	progress := progressStarted
	message := "Report generation started"
	report, err = w.store.Report().UpdateStatusIf(ctx, reportID,
		[]string{string(api.ReportStatusPending), string(api.ReportStatusRunning)},
		store.StatusUpdate{
			Status:          string(api.ReportStatusRunning),
			Progress:        &progress,
			ProgressMessage: &message,
		})
	if err != nil {
		if errors.Is(err, store.ErrConcurrentUpdate) {
			logger.Infow("lost claim race, declining to process", "report_id", reportID)
			metrics.IncreaseReportsProcessedMetric("declined")
			return river.JobCancel(fmt.Errorf("report %s transitioned concurrently", reportID))
		}
		return err
	}
	w.emit(ctx, events.ReportStartedKind, report)

	if err := w.process(ctx, job); err != nil {
		w.recordFailure(ctx, job, err)
		metrics.IncreaseReportsProcessedMetric("failed")
		metrics.ObserveProcessingDurationMetric("failed", time.Since(start).Seconds())
		// the error is reported upward so the queue's retry accounting sees it
		return err
	}

	metrics.IncreaseReportsProcessedMetric("ready")
	metrics.ObserveProcessingDurationMetric("ready", time.Since(start).Seconds())
	return nil
}

func (w *ReportWorker) process(ctx context.Context, job *river.Job[GenerateReportArgs]) error {
	reportID := job.Args.ReportID

	data, err := w.fetchData(ctx, job.Args)
	if err != nil {
		return errors.Wrap(err, "fetching report data")
	}
	if err := w.checkpoint(ctx, reportID, progressFetched, "Data fetched successfully"); err != nil {
		return err
	}

	data, err = w.transform(ctx, data)
	if err != nil {
		return errors.Wrap(err, "transforming report data")
	}
	if err := w.checkpoint(ctx, reportID, progressTransformed, "Data processing complete"); err != nil {
		return err
	}

	if err := w.checkpoint(ctx, reportID, progressRendering, "Rendering report"); err != nil {
		return err
	}
	artifact, err := w.renderer.Render(ctx, data)
	if err != nil {
		return errors.Wrap(err, "rendering report")
	}
	if err := w.checkpoint(ctx, reportID, progressRendered, "Report rendered, saving to storage"); err != nil {
		return err
	}

	key := fmt.Sprintf("%s.html", reportID)
	ref, err := w.artifacts.Save(ctx, key, artifact)
	if err != nil {
		return errors.Wrap(err, "persisting report artifact")
	}
	if err := w.checkpoint(ctx, reportID, progressPersisted, "Finalizing report"); err != nil {
		return err
	}

	// READY is written only after the artifact is durably persisted and its
	// reference known.
	progress := progressDone
	message := "Report ready"
	report, err := w.store.Report().UpdateStatusIf(ctx, reportID,
		[]string{string(api.ReportStatusRunning)},
		store.StatusUpdate{
			Status:          string(api.ReportStatusReady),
			Progress:        &progress,
			ProgressMessage: &message,
			ArtifactKey:     &ref,
		})
	if err != nil {
		return errors.Wrap(err, "recording report completion")
	}
	w.emit(ctx, events.ReportReadyKind, report)

	// The notification is sent exactly once per successful job: only after
	// READY, and a redelivery short-circuits at the gate before reaching it.
	if err := w.notifier.Notify(ctx, job.Args.Recipient, reportID); err != nil {
		zap.S().Named("report_worker").Warnw("failed to send ready notification",
			"report_id", reportID, "error", err)
	}

	return nil
}

// fetchData assembles the raw report input. A suspension point: the record
// checkpoint for this phase is written before the next phase begins.
func (w *ReportWorker) fetchData(ctx context.Context, args GenerateReportArgs) (renderer.ReportData, error) {
	if err := ctx.Err(); err != nil {
		return renderer.ReportData{}, err
	}

	report, err := w.store.Report().Get(ctx, args.ReportID)
	if err != nil {
		return renderer.ReportData{}, err
	}

	return renderer.ReportData{
		ReportID:    args.ReportID,
		GeneratedAt: time.Now().UTC(),
		Title:       "Report",
		Sections: []renderer.Section{
			{Heading: "Request", Body: fmt.Sprintf("Requested at %s", report.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}

func (w *ReportWorker) transform(ctx context.Context, data renderer.ReportData) (renderer.ReportData, error) {
	if err := ctx.Err(); err != nil {
		return renderer.ReportData{}, err
	}

	data.Sections = append(data.Sections, renderer.Section{
		Heading: "Summary",
		Body:    fmt.Sprintf("Report generated at %s", data.GeneratedAt.Format(time.RFC3339)),
	})
	return data, nil
}

func (w *ReportWorker) checkpoint(ctx context.Context, reportID uuid.UUID, progress int, message string) error {
	if err := w.store.Report().UpdateProgress(ctx, reportID, progress, message); err != nil {
		return errors.Wrapf(err, "recording %d%% checkpoint", progress)
	}
	w.emit(ctx, events.ReportProgressKind, &model.Report{ID: reportID, Status: string(api.ReportStatusRunning), Progress: progress, ProgressMessage: message})
	return nil
}

// recordFailure transitions the record to FAILED on the final attempt only;
// earlier attempts leave it RUNNING at its last checkpoint so the queue can
// redeliver. The progress value is never touched on failure.
func (w *ReportWorker) recordFailure(ctx context.Context, job *river.Job[GenerateReportArgs], cause error) {
	if job.Attempt < job.MaxAttempts {
		zap.S().Named("report_worker").Warnw("report job attempt failed, queue will retry",
			"report_id", job.Args.ReportID, "attempt", job.Attempt, "max_attempts", job.MaxAttempts, "error", cause)
		return
	}

	detail := fmt.Sprintf("%+v", cause)
	report, err := w.store.Report().UpdateStatusIf(ctx, job.Args.ReportID,
		[]string{string(api.ReportStatusRunning)},
		store.StatusUpdate{
			Status:       string(api.ReportStatusFailed),
			ErrorMessage: &detail,
		})
	if err != nil {
		// a terminal record must never crash the worker loop
		zap.S().Named("report_worker").Errorw("failed to record report failure",
			"report_id", job.Args.ReportID, "error", err)
		return
	}
	w.emit(ctx, events.ReportFailedKind, report)
}

func (w *ReportWorker) emit(ctx context.Context, kind string, report *model.Report) {
	if w.events == nil {
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
	if err := w.events.Write(ctx, kind, bytes.NewReader(data)); err != nil {
		zap.S().Named("report_worker").Debugw("failed to emit report event", "error", err)
	}
}
