package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/forgefit/coach-be/internal/domain"
)

// pq error code for unique constraint violations
const uniqueViolation = "23505"

// Store persists jobs and their derived artifacts. It is the single source of
// truth for whether a job completed; both the dispatcher and the worker read
// and write it.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a job store.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new job. Jobs are write-once at creation: an id collision
// returns ErrJobExists instead of silently overwriting.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, owner_id, feature, model, credit_cost,
			request, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.OwnerID,
		job.Feature,
		job.Model,
		job.CreditCost,
		job.Request,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrJobExists
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("owner_id", job.OwnerID),
		slog.String("feature", job.Feature),
		slog.Int("credit_cost", job.CreditCost),
	)

	return nil
}

// Get retrieves a job by id.
func (s *Store) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT
			job_id, owner_id, feature, model, credit_cost,
			request, status, COALESCE(result, '') AS result,
			COALESCE(error_message, '') AS error_message,
			created_at, completed_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// Transition moves a job from one status to another, applying the patch, only
// if the job is still in the expected source status. A job that has already
// moved on yields ErrStaleTransition and no write, which makes retried or
// duplicated completions no-ops.
func (s *Store) Transition(ctx context.Context, jobID, from, to string, patch *domain.JobPatch) error {
	var result, errorMessage *string
	if patch != nil {
		result = patch.Result
		errorMessage = patch.ErrorMessage
	}

	query := `
		UPDATE jobs
		SET status = $3,
		    result = COALESCE($4, result),
		    error_message = COALESCE($5, error_message),
		    completed_at = CASE
		        WHEN $3 IN ($6, $7) THEN NOW()
		        ELSE completed_at
		    END,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND status = $2
	`

	res, err := s.db.ExecContext(ctx, query,
		jobID, from, to,
		result, errorMessage,
		domain.JobStatusComplete, domain.JobStatusError,
	)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		// Distinguish a missing job from one that already moved on.
		if _, getErr := s.Get(ctx, jobID); getErr != nil {
			return getErr
		}
		s.logger.Warn("Stale job transition",
			slog.String("job_id", jobID),
			slog.String("from", from),
			slog.String("to", to),
		)
		return domain.ErrStaleTransition
	}

	s.logger.Info("Job transitioned",
		slog.String("job_id", jobID),
		slog.String("from", from),
		slog.String("to", to),
	)

	return nil
}

// SaveArtifact persists the durable domain output of a completed job. The
// insert is idempotent so a retried completion cannot duplicate it.
func (s *Store) SaveArtifact(ctx context.Context, artifact *domain.Artifact) error {
	query := `
		INSERT INTO coach_artifacts (job_id, owner_id, feature, body, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		artifact.JobID,
		artifact.OwnerID,
		artifact.Feature,
		artifact.Body,
		artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}

	return nil
}

// Filter narrows a job listing.
type Filter struct {
	OwnerID  string
	Feature  string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is a keyset-pagination position.
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// List returns up to PageSize+1 jobs matching the filter, newest first. The
// extra row lets callers detect whether another page exists.
func (s *Store) List(ctx context.Context, filter Filter) ([]domain.Job, error) {
	query := `
		SELECT
			job_id, owner_id, feature, model, credit_cost,
			request, status, COALESCE(result, '') AS result,
			COALESCE(error_message, '') AS error_message,
			created_at, completed_at, updated_at
		FROM jobs
		WHERE owner_id = $1
	`
	args := []interface{}{filter.OwnerID}
	argIdx := 2

	if filter.Feature != "" {
		query += fmt.Sprintf(" AND feature = $%d", argIdx)
		args = append(args, filter.Feature)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
