// Package queue implements the advisory fast tier (component B): a Redis
// sorted set ordered by (priority desc, scheduled_at asc), grounded on
// flux-go's RedisQueueBroker wiring. The fast tier is never the source of
// truth — every pop is followed by a durable claim (internal/coordinator) —
// so its own operations only need to be individually atomic, not
// transactionally consistent end to end.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/massanaroger/flux-jobs/internal/domain"
)

const (
	readyKey = "queue:ready"
	metaKey  = "queue:ready:scheduled_at"

	// maxPopScan bounds how many not-yet-ready members PopReady will skip
	// past in a single call before giving up and reporting none ready.
	maxPopScan = 50
)

// priorityScale dominates the score so priority always outranks the
// scheduled_at tiebreak, per SPEC_FULL.md's score encoding. It must exceed
// the largest scheduled_at offset (milliseconds since epoch) that will ever
// occur within one priority band; 1e13 holds for centuries.
const priorityScale = 1e13

// RedisQueue is the FastQueue adapter. It satisfies ports.FastQueue.
type RedisQueue struct {
	client *redis.Client
	log    zerolog.Logger
}

// New wraps an already-connected redis client.
func New(client *redis.Client, log zerolog.Logger) *RedisQueue {
	return &RedisQueue{client: client, log: log}
}

// Connect dials addr, mirroring the teacher's NewRedisQueueBroker helper.
func Connect(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

// score encodes (priority desc, scheduled_at asc) into a single float64:
// higher priority produces a lower score (so ascending iteration surfaces
// it first), and scheduled_at breaks ties within a priority band.
func score(priority int, scheduledAt time.Time) float64 {
	return float64(-priority)*priorityScale + float64(scheduledAt.UnixMilli())
}

// Push inserts or updates the index entry for id.
func (q *RedisQueue) Push(ctx context.Context, id uuid.UUID, priority int, scheduledAt time.Time) error {
	member := id.String()
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, readyKey, &redis.Z{Score: score(priority, scheduledAt), Member: member})
	pipe.HSet(ctx, metaKey, member, scheduledAt.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: push %s: %v", domain.ErrTransientFastQueue, id, err)
	}
	return nil
}

// PopReady atomically removes and returns the highest-priority ready id, or
// (uuid.Nil, false, nil) if none is ready yet. Members whose scheduled_at is
// still in the future are popped, found not-ready, and pushed back; this is
// bounded by maxPopScan so a queue dominated by far-future jobs can't make a
// single call scan unboundedly.
func (q *RedisQueue) PopReady(ctx context.Context, now time.Time) (uuid.UUID, bool, error) {
	nowMs := now.UnixMilli()

	var notReady []pendingMember
	var readyMember string
	found := false

	for i := 0; i < maxPopScan; i++ {
		zs, err := q.client.ZPopMin(ctx, readyKey).Result()
		if err != nil {
			q.restore(ctx, notReady)
			return uuid.Nil, false, fmt.Errorf("%w: pop ready: %v", domain.ErrTransientFastQueue, err)
		}
		if len(zs) == 0 {
			break
		}
		member, _ := zs[0].Member.(string)

		schedMs, err := q.client.HGet(ctx, metaKey, member).Int64()
		if err != nil && err != redis.Nil {
			q.restore(ctx, notReady)
			return uuid.Nil, false, fmt.Errorf("%w: read metadata for %s: %v", domain.ErrTransientFastQueue, member, err)
		}
		if err == redis.Nil {
			// Metadata lost (e.g. evicted); drop the stale member entirely.
			continue
		}
		if schedMs <= nowMs {
			q.client.HDel(ctx, metaKey, member)
			readyMember = member
			found = true
			break
		}
		notReady = append(notReady, pendingMember{member: member, score: zs[0].Score})
	}

	q.restore(ctx, notReady)

	if !found {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(readyMember)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: malformed member %q: %v", domain.ErrTransientFastQueue, readyMember, err)
	}
	return id, true, nil
}

// pendingMember is a popped-but-not-ready candidate, held so it can be
// pushed back onto the sorted set once a scan completes.
type pendingMember struct {
	member string
	score  float64
}

func (q *RedisQueue) restore(ctx context.Context, notReady []pendingMember) {
	if len(notReady) == 0 {
		return
	}
	zs := make([]*redis.Z, len(notReady))
	for i, p := range notReady {
		zs[i] = &redis.Z{Score: p.score, Member: p.member}
	}
	q.client.ZAdd(ctx, readyKey, zs...)
}

// Remove deletes id from the index, used by cancel.
func (q *RedisQueue) Remove(ctx context.Context, id uuid.UUID) error {
	member := id.String()
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, readyKey, member)
	pipe.HDel(ctx, metaKey, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: remove %s: %v", domain.ErrTransientFastQueue, id, err)
	}
	return nil
}

// Size returns the number of entries currently indexed, ready or not.
func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, readyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: size: %v", domain.ErrTransientFastQueue, err)
	}
	return int(n), nil
}

// Close releases the underlying Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
