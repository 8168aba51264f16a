package service

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/docustream/report-engine/internal/store"
	"github.com/docustream/report-engine/pkg/metrics"
)

// OrphanSweeper periodically surfaces PENDING records with no matching queue
// entry: a submission whose enqueue failed after the record was created.
// Detection only; the record is never auto-repaired.
type OrphanSweeper struct {
	store    store.Store
	minAge   time.Duration
	interval time.Duration
}

func NewOrphanSweeper(s store.Store, minAge time.Duration) *OrphanSweeper {
	return &OrphanSweeper{
		store:    s,
		minAge:   minAge,
		interval: minAge,
	}
}

func (o *OrphanSweeper) Run(ctx context.Context) {
	logger := zap.S().Named("orphan_sweeper")

	ticker := jitterbug.New(o.interval, &jitterbug.Norm{Stdev: o.interval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("orphan sweeper stopped")
			return
		case <-ticker.C:
			orphans, err := o.store.Report().ListOrphaned(ctx, o.minAge)
			if err != nil {
				logger.Errorw("failed to scan for orphaned reports", "error", err)
				continue
			}

			metrics.UpdateOrphanedReportsMetric(len(orphans))
			for _, report := range orphans {
				logger.Warnw("pending report has no queue entry",
					"report_id", report.ID, "created_at", report.CreatedAt)
			}
		}
	}
}
