package v1alpha1

func StringToReportStatus(s string) ReportStatus {
	switch s {
	case string(ReportStatusPending):
		return ReportStatusPending
	case string(ReportStatusRunning):
		return ReportStatusRunning
	case string(ReportStatusReady):
		return ReportStatusReady
	case string(ReportStatusFailed):
		return ReportStatusFailed
	case string(ReportStatusCancelled):
		return ReportStatusCancelled
	default:
		return ReportStatusPending
	}
}

// IsTerminal reports whether no further transitions are accepted from s.
func (s ReportStatus) IsTerminal() bool {
	switch s {
	case ReportStatusReady, ReportStatusFailed, ReportStatusCancelled:
		return true
	default:
		return false
	}
}
