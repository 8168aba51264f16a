package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/docustream/report-engine/api/v1alpha1"
	"github.com/docustream/report-engine/internal/service"
	"github.com/docustream/report-engine/pkg/requestid"
)

type ReportHandler struct {
	srv *service.ReportService
}

func NewReportHandler(srv *service.ReportService) *ReportHandler {
	return &ReportHandler{srv: srv}
}

func (h *ReportHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/v1/reports", func(r chi.Router) {
		r.Get("/", h.ListReports)
		r.Post("/", h.CreateReport)
		r.Get("/{id}", h.GetReport)
		r.Delete("/{id}", h.CancelReport)
		r.Get("/{id}/download", h.DownloadReport)
	})
}

func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.srv.ListReports(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, reports)
}

func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var create api.ReportCreate
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&create); err != nil {
			_ = render.Render(w, r, ErrorReply{
				Code:           CodeInvalidRequest,
				Message:        fmt.Sprintf("malformed request body: %v", err),
				RequestId:      requestid.FromRequest(r),
				httpStatusCode: http.StatusBadRequest,
			})
			return
		}
	}

	report, err := h.srv.CreateReport(r.Context(), create)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, report)
}

func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	report, err := h.srv.GetReport(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

func (h *ReportHandler) CancelReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	report, err := h.srv.CancelReport(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

func (h *ReportHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reportID(w, r)
	if !ok {
		return
	}

	data, fileName, err := h.srv.DownloadReport(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if _, err := w.Write(data); err != nil {
		zap.S().Named("report_handler").Warnw("failed to write report artifact", "report_id", id, "error", err)
	}
}

func (h *ReportHandler) reportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = render.Render(w, r, ErrorReply{
			Code:           CodeInvalidReportID,
			Message:        service.NewErrInvalidReportID(raw).Error(),
			RequestId:      requestid.FromRequest(r),
			httpStatusCode: http.StatusBadRequest,
		})
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *ReportHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	reply := ErrorReply{
		Message:   err.Error(),
		RequestId: requestid.FromRequest(r),
	}

	switch e := err.(type) {
	case *service.ErrResourceNotFound:
		reply.Code = CodeReportNotFound
		reply.httpStatusCode = http.StatusNotFound
	case *service.ErrInvalidReportID:
		reply.Code = CodeInvalidReportID
		reply.httpStatusCode = http.StatusBadRequest
	case *service.ErrReportNotCancellable:
		reply.Code = CodeReportNotCancellable
		reply.Status = e.Status
		reply.httpStatusCode = http.StatusConflict
	case *service.ErrCancelTooLate:
		reply.Code = CodeCancelTooLate
		reply.httpStatusCode = http.StatusConflict
	case *service.ErrReportNotReady:
		reply.Code = CodeReportNotReady
		reply.Status = e.Status
		reply.httpStatusCode = http.StatusBadRequest
	case *service.ErrEnqueueFailed:
		reply.Code = CodeEnqueueFailed
		reply.httpStatusCode = http.StatusInternalServerError
	default:
		zap.S().Named("report_handler").Errorw("request failed", "error", err)
		reply.Code = CodeInternalError
		reply.httpStatusCode = http.StatusInternalServerError
	}

	_ = render.Render(w, r, reply)
}
