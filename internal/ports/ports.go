// Package ports declares the interfaces the Queue Coordinator depends on,
// so the durable store and fast queue adapters can be swapped or mocked
// independently of the coordination logic that wires them together.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/massanaroger/flux-jobs/internal/domain"
)

// Store is the durable, authoritative tier (component A). Every accepted
// job lives here for its entire lifetime.
type Store interface {
	Insert(ctx context.Context, job *domain.Job) error
	InsertMany(ctx context.Context, jobs []*domain.Job) error
	Fetch(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	List(ctx context.Context, filter domain.Filter, limit, offset int) ([]*domain.Job, error)
	ClaimOne(ctx context.Context, now time.Time) (*domain.Job, error)
	ClaimOneByID(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Job, error)
	Complete(ctx context.Context, id uuid.UUID, outcome domain.Outcome, now time.Time) error
	Cancel(ctx context.Context, id uuid.UUID) error
	ResetForRetry(ctx context.Context, id uuid.UUID, now time.Time) error
	CountsByStatus(ctx context.Context) (map[domain.Status]int, error)
	CountReady(ctx context.Context, now time.Time) (int, error)
	ScanEligibleMissingFrom(ctx context.Context, exclude func(uuid.UUID) bool, limit int) ([]*domain.Job, error)
}

// FastQueue is the advisory, priority-ordered tier (component B). It
// accelerates the common case but is never the source of truth: every pop
// is followed by a durable claim, and a fast-queue failure only degrades
// performance, never correctness.
type FastQueue interface {
	Push(ctx context.Context, id uuid.UUID, priority int, scheduledAt time.Time) error
	PopReady(ctx context.Context, now time.Time) (uuid.UUID, bool, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Size(ctx context.Context) (int, error)
}
