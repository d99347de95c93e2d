package executor

import (
	"time"

	"github.com/massanaroger/flux-jobs/internal/domain"
)

// FSM is the retry/backoff state machine (component F). Given a job's
// post-increment attempts count and a failure reason, it decides whether
// the job has exhausted its retries or should be rescheduled, per §4.6's
// transition table.
type FSM struct {
	backoff Backoff
}

// NewFSM builds an FSM using the given backoff policy.
func NewFSM(backoff Backoff) FSM {
	return FSM{backoff: backoff}
}

// Decide returns the Outcome for a failed execution. job.Attempts must
// already reflect the attempt that just failed (Store.ClaimOne increments
// it on claim).
func (f FSM) Decide(job *domain.Job, reason string, now time.Time) domain.Outcome {
	reason = truncateError(reason)
	if job.Attempts > job.MaxRetries {
		return domain.Outcome{Success: false, Error: reason, Terminal: true}
	}
	delay := f.backoff.Delay(job.Attempts)
	return domain.Outcome{
		Success:     false,
		Error:       reason,
		Terminal:    false,
		ScheduledAt: now.Add(delay),
	}
}

func truncateError(s string) string {
	if len(s) <= domain.MaxErrorLength {
		return s
	}
	return s[:domain.MaxErrorLength]
}
