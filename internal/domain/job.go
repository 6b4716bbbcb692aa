package domain

import "time"

// Job status constants. Transitions are strictly forward:
// pending -> processing -> complete | error.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusError      = "error"
)

// Supported billable features.
const (
	FeatureWorkoutPlan = "workout_plan"
	FeatureFormCheck   = "form_check"
)

// Job is one persisted unit of asynchronous billable work. The request payload
// is written once at creation and never mutated by the worker.
type Job struct {
	ID           string     `db:"job_id"`
	OwnerID      string     `db:"owner_id"`
	Feature      string     `db:"feature"`
	Model        string     `db:"model"`
	CreditCost   int        `db:"credit_cost"`
	Request      string     `db:"request"` // JSON string
	Status       string     `db:"status"`
	Result       string     `db:"result"`
	ErrorMessage string     `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// Terminal reports whether no further status transition can occur.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusError
}

// JobPatch carries the fields a status transition may set alongside the status
// change itself.
type JobPatch struct {
	Result       *string
	ErrorMessage *string
}

// Artifact is the durable domain output derived from a completed job, written
// by the worker before the job is marked complete.
type Artifact struct {
	JobID     string    `db:"job_id"`
	OwnerID   string    `db:"owner_id"`
	Feature   string    `db:"feature"`
	Body      string    `db:"body"` // JSON string
	CreatedAt time.Time `db:"created_at"`
}

// KnownFeature reports whether feature has a defined request shape.
func KnownFeature(feature string) bool {
	switch feature {
	case FeatureWorkoutPlan, FeatureFormCheck:
		return true
	}
	return false
}
