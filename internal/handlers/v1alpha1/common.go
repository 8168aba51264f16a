package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
)

// Stable machine-readable error codes. Callers distinguish "not found",
// "not cancellable" and "too late" without parsing messages.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidReportID      = "invalid_report_id"
	CodeReportNotFound       = "report_not_found"
	CodeReportNotCancellable = "report_not_cancellable"
	CodeCancelTooLate        = "cancel_too_late"
	CodeReportNotReady       = "report_not_ready"
	CodeEnqueueFailed        = "enqueue_failed"
	CodeInternalError        = "internal_error"
)

type ErrorReply struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    string `json:"status,omitempty"`
	RequestId string `json:"requestId,omitempty"`

	httpStatusCode int
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.httpStatusCode)
	return nil
}
