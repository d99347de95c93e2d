// Package stats implements the introspection surface (component H):
// status counts, paginated listing, and a queue-depth snapshot spanning
// both tiers. Grounded on flux-go's JobService read-path methods,
// generalized to report the fast queue alongside the durable counts.
package stats

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/massanaroger/flux-jobs/internal/domain"
	"github.com/massanaroger/flux-jobs/internal/ports"
)

// Snapshot reports queue depth across both tiers at a point in time.
type Snapshot struct {
	CountsByStatus map[domain.Status]int
	ReadyDurable   int
	FastQueueDepth int
	FastQueueUsed  bool
}

// Reporter answers introspection queries against the durable store and,
// when enabled, the fast queue.
type Reporter struct {
	store        ports.Store
	fastQueue    ports.FastQueue
	useFastQueue bool
}

// New builds a Reporter.
func New(store ports.Store, fastQueue ports.FastQueue, useFastQueue bool) *Reporter {
	return &Reporter{store: store, fastQueue: fastQueue, useFastQueue: useFastQueue}
}

// Snapshot gathers the current counts and queue depths.
func (r *Reporter) Snapshot(ctx context.Context) (Snapshot, error) {
	now := time.Now().UTC()

	counts, err := r.store.CountsByStatus(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	ready, err := r.store.CountReady(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{CountsByStatus: counts, ReadyDurable: ready, FastQueueUsed: r.useFastQueue}
	if r.useFastQueue {
		depth, err := r.fastQueue.Size(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		snap.FastQueueDepth = depth
	}
	return snap, nil
}

// List returns a page of jobs matching filter, ordered by creation time
// descending as implemented by the store.
func (r *Reporter) List(ctx context.Context, filter domain.Filter, limit, offset int) ([]*domain.Job, error) {
	return r.store.List(ctx, filter, limit, offset)
}

// Get fetches a single job by id.
func (r *Reporter) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return r.store.Fetch(ctx, id)
}
