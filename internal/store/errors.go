package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")

	// ErrConcurrentUpdate is returned by conditional status updates when the
	// record was not in any of the expected statuses, i.e. another actor
	// transitioned it first.
	ErrConcurrentUpdate = errors.New("record status changed concurrently")
)
