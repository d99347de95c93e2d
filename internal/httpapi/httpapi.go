// Package httpapi is the external submission surface (§6): submit,
// submit_bulk, get, list, cancel, retry and stats, exposed over gin the
// way flux-go's adapters/http package does, generalized from its single
// CreateJob/GetJob/ListJobs/DeleteJob set to the engine's full job
// lifecycle and mapped onto the domain error taxonomy instead of blanket
// 500s.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/massanaroger/flux-jobs/internal/coordinator"
	"github.com/massanaroger/flux-jobs/internal/domain"
	"github.com/massanaroger/flux-jobs/internal/stats"
)

// Handler wires the coordinator and stats reporter to gin routes.
type Handler struct {
	coordinator       *coordinator.Coordinator
	reporter          *stats.Reporter
	registry          *domain.HandlerRegistry
	bulkCap           int
	defaultMaxRetries int
}

// New builds a Handler. registry is consulted synchronously so an unknown
// job_type is rejected at submit time instead of reaching the queue (§7's
// ValidationError taxonomy); it is the same registry the worker process
// executes against, built from the same internal/handlers.Register call.
func New(c *coordinator.Coordinator, r *stats.Reporter, registry *domain.HandlerRegistry, bulkCap, defaultMaxRetries int) *Handler {
	return &Handler{coordinator: c, reporter: r, registry: registry, bulkCap: bulkCap, defaultMaxRetries: defaultMaxRetries}
}

// Register mounts every route under router.
func (h *Handler) Register(router gin.IRouter) {
	router.POST("/jobs", h.Submit)
	router.POST("/jobs/bulk", h.SubmitBulk)
	router.GET("/jobs/:id", h.Get)
	router.GET("/jobs", h.List)
	router.POST("/jobs/:id/cancel", h.Cancel)
	router.POST("/jobs/:id/retry", h.Retry)
	router.GET("/stats", h.Stats)
}

type submitRequest struct {
	Name       string          `json:"name" binding:"required"`
	JobType    string          `json:"job_type" binding:"required"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
	Priority   int             `json:"priority"`
	OwnerID    string          `json:"owner_id"`
	MaxRetries *int            `json:"max_retries"`
}

func (r submitRequest) toJob(defaultMaxRetries int) *domain.Job {
	maxRetries := defaultMaxRetries
	if r.MaxRetries != nil {
		maxRetries = *r.MaxRetries
	}
	return domain.NewJob(r.Name, r.JobType, r.Payload, r.Priority, r.OwnerID, maxRetries)
}

// validateSubmission enforces §7's ValidationError taxonomy synchronously,
// before the job is ever inserted: name length, payload size, priority
// range, and a known job_type. None of these reach the queue on failure.
func (h *Handler) validateSubmission(job *domain.Job) error {
	if job.Name == "" || len(job.Name) > domain.MaxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", domain.ErrValidation, domain.MaxNameLength)
	}
	if len(job.Payload) > domain.MaxPayloadBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrValidation, domain.MaxPayloadBytes)
	}
	if err := validatePriority(job.Priority); err != nil {
		return err
	}
	if job.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be non-negative", domain.ErrValidation)
	}
	if _, ok := h.registry.Lookup(job.JobType); !ok {
		return fmt.Errorf("%w: unknown job type %q", domain.ErrValidation, job.JobType)
	}
	return nil
}

// Submit handles POST /jobs.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job := req.toJob(h.defaultMaxRetries)
	if err := h.validateSubmission(job); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.coordinator.Submit(c.Request.Context(), job); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// SubmitBulk handles POST /jobs/bulk.
func (h *Handler) SubmitBulk(c *gin.Context) {
	var reqs []submitRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one job is required"})
		return
	}
	if len(reqs) > h.bulkCap {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bulk submission exceeds cap"})
		return
	}

	jobs := make([]*domain.Job, len(reqs))
	for i, r := range reqs {
		job := r.toJob(h.defaultMaxRetries)
		if err := h.validateSubmission(job); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		jobs[i] = job
	}
	if err := h.coordinator.SubmitBulk(c.Request.Context(), jobs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"jobs": jobs})
}

// Get handles GET /jobs/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.reporter.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// List handles GET /jobs?status=&job_type=&limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	filter := domain.Filter{
		Status:  domain.Status(c.Query("status")),
		JobType: c.Query("job_type"),
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	jobs, err := h.reporter.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Cancel handles POST /jobs/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	if err := h.coordinator.CancelJob(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// Retry handles POST /jobs/:id/retry.
func (h *Handler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	if err := h.coordinator.RetryJob(c.Request.Context(), id, time.Now().UTC()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "pending"})
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	snap, err := h.reporter.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func validatePriority(p int) error {
	if p < domain.MinPriority || p > domain.MaxPriority {
		return domain.ErrValidation
	}
	return nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrStateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
