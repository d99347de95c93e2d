// Package worker implements the bounded-concurrency scheduler (component
// G): N pollers claiming jobs through the coordinator and handing them to
// the executor, with graceful drain on shutdown. Grounded on
// scarson-CVErt-Ops's internal/worker.Pool (ticker-per-goroutine polling,
// a shared stale-job recovery loop) generalized from one goroutine per
// named queue to N independent claim-execute loops per SPEC_FULL.md §4.7.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/massanaroger/flux-jobs/internal/coordinator"
	"github.com/massanaroger/flux-jobs/internal/executor"
)

// Pool runs size independent worker goroutines, each polling the
// coordinator and executing what it claims inline before polling again.
// Concurrency is therefore exactly size — no separate limiter is needed
// since a goroutine can't claim its next job until it finishes the one
// it's holding.
type Pool struct {
	coordinator  *coordinator.Coordinator
	executor     *executor.Executor
	size         int
	pollInterval time.Duration
	gracePeriod  time.Duration
	log          zerolog.Logger

	wg   sync.WaitGroup
	done chan struct{}
}

// New builds a Pool of size concurrent workers.
func New(c *coordinator.Coordinator, e *executor.Executor, size int, pollInterval, gracePeriod time.Duration, log zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		coordinator:  c,
		executor:     e,
		size:         size,
		pollInterval: pollInterval,
		gracePeriod:  gracePeriod,
		log:          log,
		done:         make(chan struct{}),
	}
}

// Run launches size worker goroutines and blocks until ctx is cancelled,
// then drains in-flight executions for up to gracePeriod before returning.
// Execution runs against a context derived from ctx via context.WithoutCancel
// so the shutdown signal itself never reaches a handler — only execCancel,
// fired once gracePeriod elapses without a clean drain, does. This is what
// gives in-flight jobs the full grace period to finish normally instead of
// aborting on the same tick the signal arrives. A job still running when
// execCancel fires and whose handler returns the cancellation error is
// recorded through the normal retry FSM path like any other failure: as a
// retry, so it resumes after restart, unless its attempts already exceed
// its max_retries, in which case it is recorded as a terminal failure.
func (p *Pool) Run(ctx context.Context) {
	execCtx, execCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer execCancel()

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, execCtx, i)
	}

	<-ctx.Done()
	p.log.Info().Msg("worker pool received shutdown signal, draining in-flight jobs")

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.log.Info().Msg("worker pool drained cleanly")
	case <-time.After(p.gracePeriod):
		p.log.Warn().Msg("grace period elapsed, cancelling outstanding executions")
		execCancel()
		<-drained
	}
	close(p.done)
}

// Done returns a channel closed once Run has fully drained and returned.
func (p *Pool) Done() <-chan struct{} { return p.done }

// runWorker polls and claims against pollCtx, which is cancelled the instant
// the shutdown signal fires (so a worker never starts a new claim after
// shutdown begins), but executes claimed jobs against execCtx, which stays
// alive through the grace period.
func (p *Pool) runWorker(pollCtx, execCtx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			return
		default:
		}

		job, err := p.coordinator.NextJob(pollCtx, time.Now().UTC())
		if err != nil {
			p.log.Error().Err(err).Int("worker", id).Msg("next job lookup failed, backing off")
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
			continue
		}
		if job == nil {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		p.executor.Run(execCtx, job)
	}
}
