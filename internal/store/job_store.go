package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/massanaroger/flux-jobs/internal/domain"
)

// claimColumns lists every column selected back from a claim or fetch, kept
// in one place so the scan order below can't drift from the SELECT list.
const claimColumns = `id, name, job_type, priority, payload, status, attempts,
	max_retries, scheduled_at, created_at, started_at, completed_at, result, error, owner_id`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	if err := row.Scan(
		&j.ID, &j.Name, &j.JobType, &j.Priority, &j.Payload, &j.Status, &j.Attempts,
		&j.MaxRetries, &j.ScheduledAt, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.Result, &j.Error, &j.OwnerID,
	); err != nil {
		return nil, err
	}
	return &j, nil
}

// Insert writes a new pending job row, per §4.1.
func (s *Store) Insert(ctx context.Context, job *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, name, job_type, priority, payload, status, attempts,
			max_retries, scheduled_at, created_at, owner_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		job.ID, job.Name, job.JobType, job.Priority, job.Payload, job.Status, job.Attempts,
		job.MaxRetries, job.ScheduledAt, job.CreatedAt, job.OwnerID)
	if err != nil {
		return fmt.Errorf("%w: insert job: %v", domain.ErrTransientStore, err)
	}
	return nil
}

// InsertMany writes jobs atomically: either all rows land or none do, per
// §4.1's bulk-atomicity invariant. It does not check the number of jobs;
// the bulk cap is applied by httpapi.SubmitBulk before this is called.
func (s *Store) InsertMany(ctx context.Context, jobs []*domain.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin bulk insert: %v", domain.ErrTransientStore, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, job := range jobs {
		batch.Queue(`
			INSERT INTO jobs (id, name, job_type, priority, payload, status, attempts,
				max_retries, scheduled_at, created_at, owner_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			job.ID, job.Name, job.JobType, job.Priority, job.Payload, job.Status, job.Attempts,
			job.MaxRetries, job.ScheduledAt, job.CreatedAt, job.OwnerID)
	}
	br := tx.SendBatch(ctx, batch)
	for range jobs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("%w: bulk insert: %v", domain.ErrTransientStore, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: bulk insert close: %v", domain.ErrTransientStore, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit bulk insert: %v", domain.ErrTransientStore, err)
	}
	return nil
}

// Fetch retrieves a single job by id.
func (s *Store) Fetch(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+claimColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch job: %v", domain.ErrTransientStore, err)
	}
	return job, nil
}

// List returns jobs matching filter, newest first, per §4.1/§6's indexed
// listing path.
func (s *Store) List(ctx context.Context, filter domain.Filter, limit, offset int) ([]*domain.Job, error) {
	query := `SELECT ` + claimColumns + ` FROM jobs WHERE TRUE`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.JobType != "" {
		args = append(args, filter.JobType)
		query += fmt.Sprintf(" AND job_type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan listed job: %v", domain.ErrTransientStore, err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// claimQuery is the heart of the engine: select the single eligible row
// with the highest priority (ties: earliest scheduled_at, then lowest id),
// skip rows already locked by a concurrent claimant, and transition it to
// running. Grounded on Shyp-rickover's queued_jobs.Acquire CTE-plus-UPDATE
// shape, upgraded from FOR UPDATE to FOR UPDATE SKIP LOCKED so K concurrent
// callers never block one another.
const claimQuery = `
WITH candidate AS (
	SELECT id FROM jobs
	WHERE status IN ('pending','retrying') AND scheduled_at <= $1 %s
	ORDER BY priority DESC, scheduled_at ASC, id ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
UPDATE jobs SET status = 'running', started_at = $1, attempts = attempts + 1
FROM candidate WHERE jobs.id = candidate.id
RETURNING ` + claimColumns

// ClaimOne performs the generic eligibility scan (§4.1). Returns
// domain.ErrNotFound when nothing is eligible.
func (s *Store) ClaimOne(ctx context.Context, now time.Time) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(claimQuery, ""), now)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: claim one: %v", domain.ErrTransientStore, err)
	}
	return job, nil
}

// ClaimOneByID is the focused claim variant the Coordinator uses after a
// fast-queue pop: same statement, with an added id predicate, so a stale or
// already-taken id from the fast tier is simply rejected rather than
// dispatching a different job.
func (s *Store) ClaimOneByID(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(claimQuery, "AND id = $2"), now, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: claim by id: %v", domain.ErrTransientStore, err)
	}
	return job, nil
}

// Complete writes terminal or retry fields for a running job, per §4.1's
// outcome variants.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, outcome domain.Outcome, now time.Time) error {
	var err error
	switch {
	case outcome.Success:
		_, err = s.pool.Exec(ctx, `
			UPDATE jobs SET status = 'succeeded', result = $2, completed_at = $3, error = NULL
			WHERE id = $1 AND status = 'running'`,
			id, outcome.Result, now)
	case outcome.Terminal:
		_, err = s.pool.Exec(ctx, `
			UPDATE jobs SET status = 'failed', error = $2, completed_at = $3
			WHERE id = $1 AND status = 'running'`,
			id, outcome.Error, now)
	default:
		_, err = s.pool.Exec(ctx, `
			UPDATE jobs SET status = 'retrying', error = $2, scheduled_at = $3
			WHERE id = $1 AND status = 'running'`,
			id, outcome.Error, outcome.ScheduledAt)
	}
	if err != nil {
		return fmt.Errorf("%w: complete job %s: %v", domain.ErrTransientStore, id, err)
	}
	return nil
}

// Cancel transitions pending|retrying -> cancelled. Cancelling a running or
// terminal job returns ErrStateConflict.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'cancelled', completed_at = now()
		WHERE id = $1 AND status IN ('pending','retrying')`, id)
	if err != nil {
		return fmt.Errorf("%w: cancel job %s: %v", domain.ErrTransientStore, id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, ferr := s.Fetch(ctx, id); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%w: job %s is not pending or retrying", domain.ErrStateConflict, id)
	}
	return nil
}

// ResetForRetry transitions failed|cancelled -> pending via the explicit
// operator retry command, the only path back to pending.
func (s *Store) ResetForRetry(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'pending', error = NULL, scheduled_at = $2, completed_at = NULL
		WHERE id = $1 AND status IN ('failed','cancelled')`, id, now)
	if err != nil {
		return fmt.Errorf("%w: reset job %s: %v", domain.ErrTransientStore, id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, ferr := s.Fetch(ctx, id); ferr != nil {
			return ferr
		}
		return fmt.Errorf("%w: job %s is not failed or cancelled", domain.ErrStateConflict, id)
	}
	return nil
}

// CountsByStatus aggregates job counts per status for introspection (§4.8).
func (s *Store) CountsByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%w: counts by status: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var status domain.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("%w: scan status count: %v", domain.ErrTransientStore, err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

// CountReady returns the number of durable-tier rows currently eligible for
// claim, used by stats.Reporter.Snapshot.
func (s *Store) CountReady(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM jobs WHERE status IN ('pending','retrying') AND scheduled_at <= $1`, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count ready: %v", domain.ErrTransientStore, err)
	}
	return count, nil
}

// ScanEligibleMissingFrom supports the Coordinator's reclaim_scan: it fetches
// eligible rows and lets the caller filter out ones the fast tier already
// knows about, since membership testing against Redis is cheaper done in
// bulk by the caller than one round-trip per row here.
func (s *Store) ScanEligibleMissingFrom(ctx context.Context, exclude func(uuid.UUID) bool, limit int) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+claimColumns+` FROM jobs
		WHERE status IN ('pending','retrying')
		ORDER BY priority DESC, scheduled_at ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: reclaim scan: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan reclaim row: %v", domain.ErrTransientStore, err)
		}
		if exclude == nil || !exclude(job.ID) {
			out = append(out, job)
		}
	}
	return out, rows.Err()
}
