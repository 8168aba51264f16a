package jobs

import (
	"time"

	"github.com/riverqueue/river/rivertype"
)

// exponentialRetryPolicy schedules retries at base, 2*base, 4*base, ...
// counted from the failed attempt.
type exponentialRetryPolicy struct {
	base time.Duration
}

func (p *exponentialRetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}
	return time.Now().Add(p.base << (attempt - 1))
}
