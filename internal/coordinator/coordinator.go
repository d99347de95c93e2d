// Package coordinator owns the enqueue/dequeue flow shared by the
// submission API and the worker pool: it writes every job to the durable
// store and (best-effort) to the fast queue, and resolves the next job to
// run by trying the fast tier first, falling back to a durable scan.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/massanaroger/flux-jobs/internal/domain"
	"github.com/massanaroger/flux-jobs/internal/ports"
)

// maxFastQueueRetries bounds how many stale fast-queue hits next_job will
// discard before falling through to the durable scan, per §4.3 step 1.
const maxFastQueueRetries = 5

// Coordinator is component C.
type Coordinator struct {
	store        ports.Store
	fastQueue    ports.FastQueue
	useFastQueue bool
	log          zerolog.Logger
}

// New builds a Coordinator. Pass useFastQueue=false to force every
// submission and claim through the durable store only (config's
// USE_FAST_QUEUE=false).
func New(store ports.Store, fastQueue ports.FastQueue, useFastQueue bool, log zerolog.Logger) *Coordinator {
	return &Coordinator{store: store, fastQueue: fastQueue, useFastQueue: useFastQueue, log: log}
}

// Submit inserts job into the durable store, then best-effort publishes it
// to the fast queue. A fast-queue failure never fails the submission.
func (c *Coordinator) Submit(ctx context.Context, job *domain.Job) error {
	if err := c.store.Insert(ctx, job); err != nil {
		return err
	}
	c.pushBestEffort(ctx, job)
	return nil
}

// SubmitBulk inserts jobs atomically, then best-effort publishes each to
// the fast queue.
func (c *Coordinator) SubmitBulk(ctx context.Context, jobs []*domain.Job) error {
	if err := c.store.InsertMany(ctx, jobs); err != nil {
		return err
	}
	for _, job := range jobs {
		c.pushBestEffort(ctx, job)
	}
	return nil
}

func (c *Coordinator) pushBestEffort(ctx context.Context, job *domain.Job) {
	if !c.useFastQueue {
		return
	}
	if err := c.fastQueue.Push(ctx, job.ID, job.Priority, job.ScheduledAt); err != nil {
		c.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("fast queue push failed, job remains durable-only until reclaim scan")
	}
}

// NextJob resolves the next job a worker should execute, guaranteeing
// at-most-one successful claim per job (§4.3).
func (c *Coordinator) NextJob(ctx context.Context, now time.Time) (*domain.Job, error) {
	if c.useFastQueue {
		for i := 0; i < maxFastQueueRetries; i++ {
			id, ok, err := c.fastQueue.PopReady(ctx, now)
			if err != nil {
				c.log.Warn().Err(err).Msg("fast queue unavailable, falling back to durable scan")
				break
			}
			if !ok {
				break
			}
			job, err := c.store.ClaimOneByID(ctx, id, now)
			if errors.Is(err, domain.ErrNotFound) {
				// Stale fast-queue entry: already claimed, cancelled, or not
				// yet eligible in the durable tier. Discard and keep trying.
				continue
			}
			if err != nil {
				return nil, err
			}
			return job, nil
		}
	}
	job, err := c.store.ClaimOne(ctx, now)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

// ReclaimScan republishes eligible durable rows the fast tier has lost
// track of (evictions, restarts, dual-tier drift), per §4.3.
func (c *Coordinator) ReclaimScan(ctx context.Context, limit int) (int, error) {
	if !c.useFastQueue {
		return 0, nil
	}
	missing, err := c.store.ScanEligibleMissingFrom(ctx, c.knownToFastQueue(ctx), limit)
	if err != nil {
		return 0, err
	}
	for _, job := range missing {
		c.pushBestEffort(ctx, job)
	}
	return len(missing), nil
}

// knownToFastQueue returns a membership predicate the store uses to skip
// rows the fast tier would already surface. The predicate does not query
// Redis: it always reports a row as not known, so the scan republishes
// every row it reads rather than risk dropping one the fast tier lost.
func (c *Coordinator) knownToFastQueue(ctx context.Context) func(uuid.UUID) bool {
	return func(uuid.UUID) bool {
		return false
	}
}

// CancelJob removes a pending/retrying job from both tiers.
func (c *Coordinator) CancelJob(ctx context.Context, id uuid.UUID) error {
	if err := c.store.Cancel(ctx, id); err != nil {
		return err
	}
	if c.useFastQueue {
		if err := c.fastQueue.Remove(ctx, id); err != nil {
			c.log.Warn().Err(err).Str("job_id", id.String()).Msg("fast queue remove failed on cancel")
		}
	}
	return nil
}

// RetryJob resets a failed/cancelled job back to pending and republishes it.
func (c *Coordinator) RetryJob(ctx context.Context, id uuid.UUID, now time.Time) error {
	if err := c.store.ResetForRetry(ctx, id, now); err != nil {
		return err
	}
	job, err := c.store.Fetch(ctx, id)
	if err != nil {
		return err
	}
	c.pushBestEffort(ctx, job)
	return nil
}
