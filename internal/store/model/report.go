package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	api "github.com/docustream/report-engine/api/v1alpha1"
)

// Report is the durable record of a single report request. It is the only
// state a client ever observes; the queue's own bookkeeping is never exposed.
// Records are kept after reaching a terminal status.
type Report struct {
	ID              uuid.UUID `gorm:"primaryKey;"`
	Status          string    `gorm:"not null;default:PENDING"`
	Progress        int       `gorm:"not null;default:0"`
	ProgressMessage string
	ArtifactKey     *string
	ErrorMessage    *string
	Recipient       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Report) TableName() string {
	return "report_requests"
}

type ReportList []Report

func (r Report) String() string {
	val, _ := json.Marshal(r)
	return string(val)
}

func NewReportFromId(id uuid.UUID) *Report {
	return &Report{ID: id}
}

func NewReportFromApiCreateResource(create *api.ReportCreate) *Report {
	return &Report{
		ID:        uuid.New(),
		Status:    string(api.ReportStatusPending),
		Recipient: create.Recipient,
	}
}

func (r *Report) ToApiResource() api.Report {
	report := api.Report{
		Id:              r.ID,
		Status:          api.StringToReportStatus(r.Status),
		Progress:        r.Progress,
		ProgressMessage: r.ProgressMessage,
		HasArtifact:     r.ArtifactKey != nil,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.ErrorMessage != nil {
		report.ErrorMessage = *r.ErrorMessage
	}
	return report
}

func (rl ReportList) ToApiResource() api.ReportList {
	reportList := make([]api.Report, 0, len(rl))
	for _, report := range rl {
		reportList = append(reportList, report.ToApiResource())
	}
	return reportList
}
