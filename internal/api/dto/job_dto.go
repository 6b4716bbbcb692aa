package dto

import "encoding/json"

// SubmitJobRequest is the body of POST /api/v1/jobs. JobID is optional and
// client-supplied for idempotency; UserID is honored only for privileged
// callers acting on behalf of another user.
type SubmitJobRequest struct {
	JobID   string          `json:"job_id"`
	Feature string          `json:"feature" binding:"required"`
	UserID  string          `json:"user_id"`
	Params  json.RawMessage `json:"params" binding:"required"`
}

// SubmitJobResponse is returned from POST /api/v1/jobs: just the job id on
// the async path, or the completed result on the fallback path.
type SubmitJobResponse struct {
	JobID  string          `json:"job_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// JobResponse is the poll response for a single job.
type JobResponse struct {
	JobID       string          `json:"job_id"`
	OwnerID     string          `json:"owner_id"`
	Feature     string          `json:"feature"`
	Status      string          `json:"status"`
	CreditCost  int             `json:"credit_cost"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   string          `json:"created_at"`
	CompletedAt string          `json:"completed_at,omitempty"`
}

// ListJobsRequest holds the query parameters of GET /api/v1/jobs.
type ListJobsRequest struct {
	UserID   string `form:"user_id"`
	Feature  string `form:"feature"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is a page of jobs plus the cursor for the next page.
type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}
