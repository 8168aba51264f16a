package notifier

import (
	"context"

	"github.com/google/uuid"
)

// Notifier tells the recipient that a report is ready for download. It is
// invoked exactly once per successful job, after the artifact is durably
// saved and the record is READY.
type Notifier interface {
	Notify(ctx context.Context, recipient string, reportID uuid.UUID) error
}
