package jobs

import "errors"

// ErrJobAlreadyClaimed is returned by CancelPending when the job is no
// longer in a not-yet-dispatched queue partition. The caller must treat
// the cancellation as lost, never force the record to CANCELLED.
var ErrJobAlreadyClaimed = errors.New("job already claimed by a worker")
