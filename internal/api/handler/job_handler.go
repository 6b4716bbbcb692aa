package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forgefit/coach-be/internal/api/dto"
	"github.com/forgefit/coach-be/internal/domain"
	"github.com/forgefit/coach-be/internal/jobstore"
	"github.com/forgefit/coach-be/internal/plan"
)

// SubmitJob handles POST /api/v1/jobs.
// Order matters: rate limit, then debit, then payload validation, then job
// creation, then hand-off. Every exit after the debit either completes the
// job or refunds it.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	} else if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	// The billed owner is the caller, unless a privileged caller acts on
	// behalf of another user.
	ownerID := identity.UserID
	if identity.Privileged && req.UserID != "" {
		ownerID = req.UserID
	}

	if !h.limiter.Allow(c.Request.Context(), ownerID, req.Feature) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	quote, err := h.pricing.Lookup(req.Feature, identity.Premium)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown feature"})
		return
	}

	if _, err := h.ledger.Debit(c.Request.Context(), ownerID, quote.Cost, identity.Privileged); err != nil {
		var insufficient *domain.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error": "insufficient credits",
				"need":  insufficient.Need,
				"have":  insufficient.Have,
			})
			return
		}
		h.logger.Error("Failed to debit credits",
			slog.String("user_id", ownerID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reserve credits"})
		return
	}

	// Privileged debits are no-ops, so there is nothing to refund later.
	billedCost := quote.Cost
	if identity.Privileged {
		billedCost = 0
	}

	if err := plan.ValidateParams(req.Feature, req.Params); err != nil {
		h.ledger.Refund(c.Request.Context(), ownerID, billedCost)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:         jobID,
		OwnerID:    ownerID,
		Feature:    req.Feature,
		Model:      quote.Model,
		CreditCost: billedCost,
		Request:    string(req.Params),
		Status:     domain.JobStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.jobs.Create(c.Request.Context(), job); err != nil {
		h.ledger.Refund(c.Request.Context(), ownerID, billedCost)
		if errors.Is(err, domain.ErrJobExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "job already exists", "job_id": jobID})
			return
		}
		h.logger.Error("Failed to create job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	if _, err := h.remote.Run(c.Request.Context(), jobID); err == nil {
		c.JSON(http.StatusOK, dto.SubmitJobResponse{
			JobID:  jobID,
			Status: domain.JobStatusPending,
		})
		return
	} else {
		h.logger.Warn("Worker hand-off not acknowledged, running inline",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	// The worker was never dispatched for this job, so the inline run is the
	// only writer racing for its status.
	outcome, err := h.fallback.Run(c.Request.Context(), jobID)
	if err != nil {
		// The processor already resolved the job and refunded.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed, please try again"})
		return
	}

	c.JSON(http.StatusOK, dto.SubmitJobResponse{
		JobID:  jobID,
		Status: domain.JobStatusComplete,
		Result: json.RawMessage(outcome.Result),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id. Callers poll this until the
// status is terminal.
func (h *JobHandler) GetJob(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	// Jobs are visible only to their owner; respond as if absent otherwise.
	if job.OwnerID != identity.UserID && !identity.Privileged {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, jobToResponse(job))
}

// ListJobs handles GET /api/v1/jobs with filtering and keyset pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	ownerID := identity.UserID
	if identity.Privileged && req.UserID != "" {
		ownerID = req.UserID
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	filter := jobstore.Filter{
		OwnerID:  ownerID,
		Feature:  req.Feature,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs",
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobResponse, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = jobToResponse(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&jobstore.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func jobToResponse(job *domain.Job) dto.JobResponse {
	resp := dto.JobResponse{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Feature:    job.Feature,
		Status:     job.Status,
		CreditCost: job.CreditCost,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
	}

	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}

	// Exactly one of result/error is populated once the status is terminal.
	switch job.Status {
	case domain.JobStatusComplete:
		resp.Result = json.RawMessage(job.Result)
	case domain.JobStatusError:
		resp.Error = job.ErrorMessage
	}

	return resp
}
