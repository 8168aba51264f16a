package jobs

import (
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

const (
	DefaultQueue   = "reports"
	MaxJobAttempts = 3
	JobKind        = "report_generate"

	// JobTimeout bounds a single processing attempt; a worker that exceeds it
	// is treated as stalled and the job is reclaimed for redelivery.
	JobTimeout = 60 * time.Second
)

// GenerateReportArgs is the queue payload. It carries only the report record
// id and the notification target; the worker looks the record up fresh on
// every delivery and never trusts state cached across deliveries.
type GenerateReportArgs struct {
	ReportID  uuid.UUID `json:"report_id"`
	Recipient string    `json:"recipient,omitempty"`
}

func (GenerateReportArgs) Kind() string {
	return JobKind
}

func (GenerateReportArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: MaxJobAttempts,
	}
}
