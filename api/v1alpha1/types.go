package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "PENDING"
	ReportStatusRunning   ReportStatus = "RUNNING"
	ReportStatusReady     ReportStatus = "READY"
	ReportStatusFailed    ReportStatus = "FAILED"
	ReportStatusCancelled ReportStatus = "CANCELLED"
)

// Report is the client-facing projection of a report request. The artifact
// key is never exposed; HasArtifact only signals that a download is possible.
type Report struct {
	Id              uuid.UUID    `json:"id"`
	Status          ReportStatus `json:"status"`
	Progress        int          `json:"progress"`
	ProgressMessage string       `json:"progressMessage,omitempty"`
	ErrorMessage    string       `json:"errorMessage,omitempty"`
	HasArtifact     bool         `json:"hasArtifact"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

type ReportList []Report

type ReportCreate struct {
	// Recipient receives the notification once the report is ready.
	Recipient string `json:"recipient,omitempty"`
}
