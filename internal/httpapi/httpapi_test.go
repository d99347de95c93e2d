package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/massanaroger/flux-jobs/internal/coordinator"
	"github.com/massanaroger/flux-jobs/internal/domain"
	"github.com/massanaroger/flux-jobs/internal/stats"
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
	args := m.Called(ctx, filter, limit, offset)
	jobs, _ := args.Get(0).([]*domain.Job)
	return jobs, args.Error(1)
}
func (m *mockStore) ClaimOne(ctx context.Context, now time.Time) (*domain.Job, error) { return nil, nil }
func (m *mockStore) ClaimOneByID(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Job, error) {
	return nil, nil
}
func (m *mockStore) Complete(ctx context.Context, id uuid.UUID, outcome domain.Outcome, now time.Time) error {
	return nil
}
func (m *mockStore) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockStore) ResetForRetry(ctx context.Context, id uuid.UUID, now time.Time) error { return nil }
func (m *mockStore) CountsByStatus(ctx context.Context) (map[domain.Status]int, error) {
	return nil, nil
}
func (m *mockStore) CountReady(ctx context.Context, now time.Time) (int, error) { return 0, nil }
func (m *mockStore) ScanEligibleMissingFrom(ctx context.Context, exclude func(uuid.UUID) bool, limit int) ([]*domain.Job, error) {
	return nil, nil
}

type mockFastQueue struct {
	mock.Mock
}

func (m *mockFastQueue) Push(ctx context.Context, id uuid.UUID, priority int, scheduledAt time.Time) error {
	return m.Called(ctx, id, priority, scheduledAt).Error(0)
}
func (m *mockFastQueue) PopReady(ctx context.Context, now time.Time) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}
func (m *mockFastQueue) Remove(ctx context.Context, id uuid.UUID) error { return nil }
func (m *mockFastQueue) Size(ctx context.Context) (int, error)         { return 0, nil }

func newTestHandler() (*Handler, *mockStore, *mockFastQueue) {
	gin.SetMode(gin.TestMode)
	store := &mockStore{}
	fq := &mockFastQueue{}
	c := coordinator.New(store, fq, true, zerolog.Nop())
	r := stats.New(store, fq, true)
	registry := domain.NewHandlerRegistry()
	_ = registry.Register("email", func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	})
	return New(c, r, registry, domain.DefaultBulkCap, domain.DefaultMaxRetries), store, fq
}

func TestSubmit_RejectsMissingFields(t *testing.T) {
	h, _, _ := newTestHandler()
	router := gin.New()
	h.Register(router.Group("/"))

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_RejectsPriorityOutOfRange(t *testing.T) {
	h, store, fq := newTestHandler()
	router := gin.New()
	h.Register(router.Group("/"))
	_ = store
	_ = fq

	body, _ := json.Marshal(map[string]any{
		"name":     "x",
		"job_type": "email",
		"payload":  map[string]any{},
		"priority": 5000,
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_RejectsUnknownJobType(t *testing.T) {
	h, _, _ := newTestHandler()
	router := gin.New()
	h.Register(router.Group("/"))

	body, _ := json.Marshal(map[string]any{
		"name":     "x",
		"job_type": "smuggle_secrets",
		"payload":  map[string]any{},
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_RejectsNameTooLong(t *testing.T) {
	h, _, _ := newTestHandler()
	router := gin.New()
	h.Register(router.Group("/"))

	longName := make([]byte, domain.MaxNameLength+1)
	for i := range longName {
		longName[i] = 'a'
	}
	body, _ := json.Marshal(map[string]any{
		"name":     string(longName),
		"job_type": "email",
		"payload":  map[string]any{},
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmit_Succeeds(t *testing.T) {
	h, store, fq := newTestHandler()
	router := gin.New()
	h.Register(router.Group("/"))

	store.On("Insert", mock.Anything, mock.Anything).Return(nil)
	fq.On("Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	body, _ := json.Marshal(map[string]any{
		"name":     "welcome-email",
		"job_type": "email",
		"payload":  map[string]any{"to": "a@b.com"},
		"priority": 10,
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
}

func TestGet_InvalidIDReturnsBadRequest(t *testing.T) {
	h, _, _ := newTestHandler()
	router := gin.New()
	h.Register(router.Group("/"))

	req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancel_StateConflictMapsTo409(t *testing.T) {
	h, store, fq := newTestHandler()
	router := gin.New()
	h.Register(router.Group("/"))
	_ = fq

	id := uuid.New()
	store.On("Cancel", mock.Anything, id).Return(domain.ErrStateConflict)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+id.String()+"/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}
