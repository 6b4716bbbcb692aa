package worker

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forgefit/coach-be/internal/domain"
)

// InvokeRequest is the internal invocation body. The shared secret is the
// sole authentication on this channel; the caller-facing auth token is never
// propagated here. Any other field is ignored.
type InvokeRequest struct {
	JobID        string `json:"job_id" binding:"required"`
	SharedSecret string `json:"shared_secret"`
}

// Handler serves the worker's internal HTTP surface.
type Handler struct {
	proc       *Processor
	jobs       JobStore
	secret     string
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewHandler creates the worker handler. runTimeout bounds the detached job
// run that continues after the invocation is acknowledged.
func NewHandler(proc *Processor, jobs JobStore, secret string, runTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		proc:       proc,
		jobs:       jobs,
		secret:     secret,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Run handles POST /internal/jobs/run. It acknowledges the invocation as soon
// as the job is known, then processes it detached: the dispatcher only waits
// for the ack, never for completion.
func (h *Handler) Run(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.SharedSecret), []byte(h.secret)) != 1 {
		h.logger.Warn("Rejected worker invocation with bad secret",
			slog.String("job_id", req.JobID),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if _, err := uuid.Parse(req.JobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	if _, err := h.jobs.Get(c.Request.Context(), req.JobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			h.logger.Warn("Invoked for unknown job",
				slog.String("job_id", req.JobID),
			)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	go h.runDetached(req.JobID)

	c.JSON(http.StatusOK, gin.H{"status": "accepted", "job_id": req.JobID})
}

func (h *Handler) runDetached(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout)
	defer cancel()

	if _, err := h.proc.Process(ctx, jobID); err != nil {
		// Process already resolved the job's terminal status and refund.
		h.logger.Error("Job processing failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
