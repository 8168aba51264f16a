package events

// ReportEvent mirrors a lifecycle transition of a report record. It feeds the
// telemetry sink only and is never read back as state.
type ReportEvent struct {
	ReportID string `json:"report_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}
