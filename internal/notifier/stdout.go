package notifier

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// notifier used in dev when no smtp host is configured
type StdoutNotifier struct{}

var _ Notifier = (*StdoutNotifier)(nil)

func (s *StdoutNotifier) Notify(_ context.Context, recipient string, reportID uuid.UUID) error {
	zap.S().Named("stdout_notifier").Infow("report ready notification", "recipient", recipient, "report_id", reportID)
	return nil
}
