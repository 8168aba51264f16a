package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id uuid.UUID, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrReportNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "report")
}

type ErrInvalidReportID struct {
	error
}

func NewErrInvalidReportID(raw string) *ErrInvalidReportID {
	return &ErrInvalidReportID{fmt.Errorf("invalid report id %q", raw)}
}

// ErrReportNotCancellable carries the report's current status so the caller
// can tell why the cancellation was rejected.
type ErrReportNotCancellable struct {
	error
	Status string
}

func NewErrReportNotCancellable(id uuid.UUID, status string) *ErrReportNotCancellable {
	return &ErrReportNotCancellable{
		error:  fmt.Errorf("report %s is not cancellable in status %s", id, status),
		Status: status,
	}
}

// ErrCancelTooLate marks a cancellation that lost the race against a worker
// claim: the job is already being processed and runs to completion.
type ErrCancelTooLate struct {
	error
}

func NewErrCancelTooLate(id uuid.UUID) *ErrCancelTooLate {
	return &ErrCancelTooLate{fmt.Errorf("report %s already picked up by a worker", id)}
}

type ErrReportNotReady struct {
	error
	Status string
}

func NewErrReportNotReady(id uuid.UUID, status string) *ErrReportNotReady {
	return &ErrReportNotReady{
		error:  fmt.Errorf("report %s is not ready for download: status is %s", id, status),
		Status: status,
	}
}

// ErrEnqueueFailed marks a submission whose record was created but whose job
// never reached the queue. The record is left PENDING and is picked up by
// orphan detection; the submission itself is reported as failed.
type ErrEnqueueFailed struct {
	error
}

func NewErrEnqueueFailed(id uuid.UUID, cause error) *ErrEnqueueFailed {
	return &ErrEnqueueFailed{fmt.Errorf("report %s created but enqueue failed: %w", id, cause)}
}
