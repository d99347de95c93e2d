package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/massanaroger/flux-jobs/internal/domain"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Insert(ctx context.Context, job *domain.Job) error {
	return m.Called(ctx, job).Error(0)
}
func (m *mockStore) InsertMany(ctx context.Context, jobs []*domain.Job) error {
	return m.Called(ctx, jobs).Error(0)
}
func (m *mockStore) Fetch(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}
func (m *mockStore) List(ctx context.Context, filter domain.Filter, limit, offset int) ([]*domain.Job, error) {
	return nil, nil
}
func (m *mockStore) ClaimOne(ctx context.Context, now time.Time) (*domain.Job, error) {
	args := m.Called(ctx, now)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}
func (m *mockStore) ClaimOneByID(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Job, error) {
	args := m.Called(ctx, id, now)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}
func (m *mockStore) Complete(ctx context.Context, id uuid.UUID, outcome domain.Outcome, now time.Time) error {
	return nil
}
func (m *mockStore) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockStore) ResetForRetry(ctx context.Context, id uuid.UUID, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}
func (m *mockStore) CountsByStatus(ctx context.Context) (map[domain.Status]int, error) {
	return nil, nil
}
func (m *mockStore) CountReady(ctx context.Context, now time.Time) (int, error) { return 0, nil }
func (m *mockStore) ScanEligibleMissingFrom(ctx context.Context, exclude func(uuid.UUID) bool, limit int) ([]*domain.Job, error) {
	args := m.Called(ctx, limit)
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, args.Error(1)
}

type mockFastQueue struct {
	mock.Mock
}

func (m *mockFastQueue) Push(ctx context.Context, id uuid.UUID, priority int, scheduledAt time.Time) error {
	return m.Called(ctx, id, priority, scheduledAt).Error(0)
}
func (m *mockFastQueue) PopReady(ctx context.Context, now time.Time) (uuid.UUID, bool, error) {
	args := m.Called(ctx, now)
	id, _ := args.Get(0).(uuid.UUID)
	return id, args.Bool(1), args.Error(2)
}
func (m *mockFastQueue) Remove(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockFastQueue) Size(ctx context.Context) (int, error) { return 0, nil }

func TestCoordinator_NextJob_FastQueueHit(t *testing.T) {
	store := &mockStore{}
	fq := &mockFastQueue{}
	c := New(store, fq, true, zerolog.Nop())

	job := &domain.Job{ID: uuid.New()}
	now := time.Now().UTC()

	fq.On("PopReady", mock.Anything, now).Return(job.ID, true, nil).Once()
	store.On("ClaimOneByID", mock.Anything, job.ID, now).Return(job, nil).Once()

	got, err := c.NextJob(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, job, got)
	store.AssertExpectations(t)
	fq.AssertExpectations(t)
}

func TestCoordinator_NextJob_StaleFastQueueEntryFallsThroughToDurableScan(t *testing.T) {
	store := &mockStore{}
	fq := &mockFastQueue{}
	c := New(store, fq, true, zerolog.Nop())

	staleID := uuid.New()
	now := time.Now().UTC()

	fq.On("PopReady", mock.Anything, now).Return(staleID, true, nil).Once()
	store.On("ClaimOneByID", mock.Anything, staleID, now).Return(nil, domain.ErrNotFound).Once()
	fq.On("PopReady", mock.Anything, now).Return(uuid.Nil, false, nil).Once()
	store.On("ClaimOne", mock.Anything, now).Return(nil, domain.ErrNotFound).Once()

	got, err := c.NextJob(context.Background(), now)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCoordinator_NextJob_FastQueueDisabledGoesDirectToDurable(t *testing.T) {
	store := &mockStore{}
	fq := &mockFastQueue{}
	c := New(store, fq, false, zerolog.Nop())

	job := &domain.Job{ID: uuid.New()}
	now := time.Now().UTC()
	store.On("ClaimOne", mock.Anything, now).Return(job, nil).Once()

	got, err := c.NextJob(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, job, got)
	fq.AssertNotCalled(t, "PopReady", mock.Anything, mock.Anything)
}

func TestCoordinator_Submit_FastQueueFailureDoesNotFailSubmission(t *testing.T) {
	store := &mockStore{}
	fq := &mockFastQueue{}
	c := New(store, fq, true, zerolog.Nop())

	job := domain.NewJob("n", "t", nil, 0, "", domain.DefaultMaxRetries)
	store.On("Insert", mock.Anything, job).Return(nil).Once()
	fq.On("Push", mock.Anything, job.ID, job.Priority, job.ScheduledAt).Return(domain.ErrTransientFastQueue).Once()

	err := c.Submit(context.Background(), job)
	require.NoError(t, err)
}

func TestCoordinator_CancelJob_RemovesFromBothTiers(t *testing.T) {
	store := &mockStore{}
	fq := &mockFastQueue{}
	c := New(store, fq, true, zerolog.Nop())

	id := uuid.New()
	store.On("Cancel", mock.Anything, id).Return(nil).Once()
	fq.On("Remove", mock.Anything, id).Return(nil).Once()

	require.NoError(t, c.CancelJob(context.Background(), id))
	store.AssertExpectations(t)
	fq.AssertExpectations(t)
}
