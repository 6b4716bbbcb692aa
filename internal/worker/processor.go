package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forgefit/coach-be/internal/domain"
	"github.com/forgefit/coach-be/internal/plan"
	"github.com/forgefit/coach-be/internal/pricing"
	"github.com/forgefit/coach-be/internal/provider"
	"github.com/forgefit/coach-be/internal/usage"
)

// JobStore is the slice of the job store the processor needs.
type JobStore interface {
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	Transition(ctx context.Context, jobID, from, to string, patch *domain.JobPatch) error
	SaveArtifact(ctx context.Context, artifact *domain.Artifact) error
}

// Ledger is the slice of the credit ledger the processor needs.
type Ledger interface {
	Refund(ctx context.Context, userID string, amount int)
}

// UsageRecorder records one usage entry per billable provider call.
type UsageRecorder interface {
	Record(rec *usage.Record)
}

// Config holds processor dependencies and limits.
type Config struct {
	Jobs            JobStore
	Ledger          Ledger
	Generator       provider.Generator
	Usage           UsageRecorder
	Logger          *slog.Logger
	GenerateTimeout time.Duration
}

// Processor runs one job to a terminal status. The worker service invokes it
// for remote hand-offs; the dispatcher invokes the same processor inline when
// hand-off fails, so the post-processing pipeline exists exactly once.
type Processor struct {
	jobs            JobStore
	ledger          Ledger
	gen             provider.Generator
	usage           UsageRecorder
	logger          *slog.Logger
	generateTimeout time.Duration
}

// NewProcessor creates a processor.
func NewProcessor(cfg *Config) *Processor {
	timeout := cfg.GenerateTimeout
	if timeout <= 0 {
		timeout = plan.DefaultProviderWait
	}

	return &Processor{
		jobs:            cfg.Jobs,
		ledger:          cfg.Ledger,
		gen:             cfg.Generator,
		usage:           cfg.Usage,
		logger:          cfg.Logger,
		generateTimeout: timeout,
	}
}

// Process claims the job, performs the provider call, and resolves the job to
// a terminal status. On success it returns the result JSON. Once the job has
// reached processing, every failure path (including a panic) marks the job
// error and refunds the reserved credits before returning. A failure before
// the claim is resolved the same way via abandonPending, so no debited job is
// left pending behind a returned error.
func (p *Processor) Process(ctx context.Context, jobID string) (result string, err error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, domain.ErrJobNotFound) {
			p.abandonPending(ctx, jobID, "internal error")
		}
		return "", err
	}

	if err := p.jobs.Transition(ctx, job.ID, domain.JobStatusPending, domain.JobStatusProcessing, nil); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			p.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", job.ID),
				slog.String("status", job.Status),
			)
			return "", err
		}
		if !errors.Is(err, domain.ErrJobNotFound) {
			p.abandonPending(ctx, jobID, "internal error")
		}
		return "", err
	}

	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Panic during job execution",
				slog.String("job_id", job.ID),
				slog.Any("panic", rec),
			)
			p.fail(ctx, job, fmt.Sprintf("internal error: %v", rec))
			result = ""
			err = fmt.Errorf("job execution panicked: %v", rec)
		}
	}()

	return p.run(ctx, job)
}

func (p *Processor) run(ctx context.Context, job *domain.Job) (string, error) {
	prompt, err := plan.BuildPrompt(job.Feature, []byte(job.Request))
	if err != nil {
		p.fail(ctx, job, "invalid request payload")
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	defer cancel()

	started := time.Now()
	output, totalTokens, err := p.gen.Generate(genCtx, job.Model, prompt)
	latency := time.Since(started)

	if err != nil {
		p.logger.Error("Provider call failed",
			slog.String("job_id", job.ID),
			slog.String("model", job.Model),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		p.fail(ctx, job, "generation failed, please try again")
		return "", fmt.Errorf("provider call failed: %w", err)
	}

	result, err := plan.PostProcess(job.Feature, []byte(job.Request), output)
	if err != nil {
		// Malformed output is terminal: the provider is non-deterministic and
		// a blind retry doubles cost with no correctness guarantee.
		p.logger.Error("Failed to parse provider output",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		p.fail(ctx, job, "malformed output")
		return "", err
	}

	artifact := &domain.Artifact{
		JobID:     job.ID,
		OwnerID:   job.OwnerID,
		Feature:   job.Feature,
		Body:      result,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.jobs.SaveArtifact(ctx, artifact); err != nil {
		// The provider was paid, but the user got nothing durable.
		p.logger.Error("Failed to save artifact",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		p.fail(ctx, job, "failed to persist result")
		return "", err
	}

	patch := &domain.JobPatch{Result: &result}
	if err := p.jobs.Transition(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusComplete, patch); err != nil {
		p.fail(ctx, job, "failed to complete job")
		return "", fmt.Errorf("failed to complete job: %w", err)
	}

	p.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("feature", job.Feature),
		slog.Int("total_tokens", totalTokens),
		slog.Duration("latency", latency),
	)

	if p.usage != nil {
		p.usage.Record(&usage.Record{
			ID:               uuid.New().String(),
			UserID:           job.OwnerID,
			Feature:          job.Feature,
			Model:            job.Model,
			TotalTokens:      totalTokens,
			CreditCost:       job.CreditCost,
			EstimatedCostUSD: pricing.EstimateUSD(totalTokens),
			LatencyMs:        latency.Milliseconds(),
			CreatedAt:        time.Now().UTC(),
		})
	}

	return result, nil
}

// fail resolves the job to error and refunds the reserved credits. The refund
// happens only when this call wins the terminal transition, so a racing
// duplicate completion cannot double-refund. Compensation writes run detached
// from the caller's context, which may already be past its deadline.
func (p *Processor) fail(ctx context.Context, job *domain.Job, reason string) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	patch := &domain.JobPatch{ErrorMessage: &reason}
	err := p.jobs.Transition(failCtx, job.ID, domain.JobStatusProcessing, domain.JobStatusError, patch)
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			p.logger.Warn("Job already resolved, skipping refund",
				slog.String("job_id", job.ID),
			)
			return
		}
		p.logger.Error("Failed to mark job as error",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		// Refund anyway: the user must not be left debited with no result.
	}

	if job.CreditCost > 0 {
		p.ledger.Refund(failCtx, job.OwnerID, job.CreditCost)
	}
}

// abandonPending resolves a job whose claim never happened, after the get or
// the claim transition itself failed. It re-reads the job under a detached
// context and races the pending -> error CAS; the refund is issued only when
// this call wins, since a remote worker may still claim and run the job.
func (p *Processor) abandonPending(ctx context.Context, jobID, reason string) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	job, err := p.jobs.Get(failCtx, jobID)
	if err != nil {
		p.logger.Error("Failed to load job for abandonment",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	patch := &domain.JobPatch{ErrorMessage: &reason}
	err = p.jobs.Transition(failCtx, job.ID, domain.JobStatusPending, domain.JobStatusError, patch)
	if err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			p.logger.Warn("Job no longer pending, skipping abandonment",
				slog.String("job_id", job.ID),
			)
			return
		}
		p.logger.Error("Failed to abandon pending job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if job.CreditCost > 0 {
		p.ledger.Refund(failCtx, job.OwnerID, job.CreditCost)
	}
}
