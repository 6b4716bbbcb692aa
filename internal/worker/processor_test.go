package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgefit/coach-be/internal/domain"
	"github.com/forgefit/coach-be/internal/usage"
)

type fakeJobStore struct {
	jobs          map[string]*domain.Job
	artifacts     map[string]*domain.Artifact
	transitionErr error
	claimErr      error
	artifactErr   error
	getFailures   int
}

func newFakeJobStore(jobs ...*domain.Job) *fakeJobStore {
	s := &fakeJobStore{
		jobs:      make(map[string]*domain.Job),
		artifacts: make(map[string]*domain.Artifact),
	}
	for _, j := range jobs {
		cp := *j
		s.jobs[j.ID] = &cp
	}
	return s
}

func (s *fakeJobStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	if s.getFailures > 0 {
		s.getFailures--
		return nil, errors.New("connection reset")
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) Transition(_ context.Context, jobID, from, to string, patch *domain.JobPatch) error {
	if s.transitionErr != nil {
		return s.transitionErr
	}
	if s.claimErr != nil && from == domain.JobStatusPending && to == domain.JobStatusProcessing {
		return s.claimErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != from {
		return domain.ErrStaleTransition
	}
	job.Status = to
	if patch != nil {
		if patch.Result != nil {
			job.Result = *patch.Result
		}
		if patch.ErrorMessage != nil {
			job.ErrorMessage = *patch.ErrorMessage
		}
	}
	return nil
}

func (s *fakeJobStore) SaveArtifact(_ context.Context, artifact *domain.Artifact) error {
	if s.artifactErr != nil {
		return s.artifactErr
	}
	s.artifacts[artifact.JobID] = artifact
	return nil
}

type fakeLedger struct {
	refunds map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{refunds: make(map[string]int)}
}

func (l *fakeLedger) Refund(_ context.Context, userID string, amount int) {
	l.refunds[userID] += amount
}

type fakeGenerator struct {
	output string
	tokens int
	err    error
	panics bool
	calls  int
}

func (g *fakeGenerator) Generate(context.Context, string, string) (string, int, error) {
	g.calls++
	if g.panics {
		panic("generator exploded")
	}
	return g.output, g.tokens, g.err
}

type fakeRecorder struct {
	records []*usage.Record
}

func (r *fakeRecorder) Record(rec *usage.Record) {
	r.records = append(r.records, rec)
}

func validPlanOutput() string {
	out := map[string]any{
		"days": []map[string]any{
			{
				"day":   1,
				"focus": "upper body",
				"exercises": []map[string]any{
					{"name": "bench press", "sets": 3, "reps": 8, "rest_seconds": 90},
				},
			},
		},
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

func pendingJob() *domain.Job {
	return &domain.Job{
		ID:         "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d",
		OwnerID:    "user-1",
		Feature:    domain.FeatureWorkoutPlan,
		Model:      "gemini-1.5-flash",
		CreditCost: 15,
		Request:    `{"days_per_week":3,"goal":"build strength","experience":"beginner","equipment":["barbell"]}`,
		Status:     domain.JobStatusPending,
	}
}

func newTestProcessor(jobs *fakeJobStore, ledger *fakeLedger, gen *fakeGenerator, rec UsageRecorder) *Processor {
	return NewProcessor(&Config{
		Jobs:      jobs,
		Ledger:    ledger,
		Generator: gen,
		Usage:     rec,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestProcess_Success(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: validPlanOutput(), tokens: 1200}
	rec := &fakeRecorder{}

	proc := newTestProcessor(jobs, ledger, gen, rec)

	result, err := proc.Process(context.Background(), job.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result)

	stored := jobs.jobs[job.ID]
	assert.Equal(t, domain.JobStatusComplete, stored.Status)
	assert.JSONEq(t, result, stored.Result)
	assert.Empty(t, ledger.refunds, "successful jobs must not refund")

	require.Contains(t, jobs.artifacts, job.ID)
	assert.Equal(t, "user-1", jobs.artifacts[job.ID].OwnerID)

	require.Len(t, rec.records, 1)
	assert.Equal(t, 1200, rec.records[0].TotalTokens)
	assert.Equal(t, 15, rec.records[0].CreditCost)
	assert.Equal(t, domain.FeatureWorkoutPlan, rec.records[0].Feature)
}

func TestProcess_MalformedOutputRefunds(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: "sure! here is a plan for you", tokens: 300}
	rec := &fakeRecorder{}

	proc := newTestProcessor(jobs, ledger, gen, rec)

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)

	stored := jobs.jobs[job.ID]
	assert.Equal(t, domain.JobStatusError, stored.Status)
	assert.Equal(t, "malformed output", stored.ErrorMessage)
	assert.Equal(t, 15, ledger.refunds["user-1"], "terminal failure must refund the full cost")
	assert.Equal(t, 1, gen.calls, "malformed output must not be retried")
	assert.Empty(t, rec.records, "failed jobs record no usage")
}

func TestProcess_ProviderErrorRefunds(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	ledger := newFakeLedger()
	gen := &fakeGenerator{err: errors.New("deadline exceeded")}

	proc := newTestProcessor(jobs, ledger, gen, &fakeRecorder{})

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)

	assert.Equal(t, domain.JobStatusError, jobs.jobs[job.ID].Status)
	assert.Equal(t, 15, ledger.refunds["user-1"])
}

func TestProcess_AlreadyClaimed(t *testing.T) {
	job := pendingJob()
	job.Status = domain.JobStatusProcessing
	jobs := newFakeJobStore(job)
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: validPlanOutput()}

	proc := newTestProcessor(jobs, ledger, gen, &fakeRecorder{})

	_, err := proc.Process(context.Background(), job.ID)
	require.ErrorIs(t, err, domain.ErrStaleTransition)

	assert.Equal(t, 0, gen.calls, "a lost claim race must not call the provider")
	assert.Empty(t, ledger.refunds, "a lost claim race must not refund")
}

func TestProcess_TerminalJobNotReprocessed(t *testing.T) {
	job := pendingJob()
	job.Status = domain.JobStatusComplete
	job.Result = `{"days":[]}`
	jobs := newFakeJobStore(job)
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: validPlanOutput()}

	proc := newTestProcessor(jobs, ledger, gen, &fakeRecorder{})

	_, err := proc.Process(context.Background(), job.ID)
	require.ErrorIs(t, err, domain.ErrStaleTransition)

	assert.Equal(t, domain.JobStatusComplete, jobs.jobs[job.ID].Status)
	assert.Equal(t, 0, gen.calls)
	assert.Empty(t, ledger.refunds)
}

func TestProcess_ZeroCostJobNeverRefunds(t *testing.T) {
	job := pendingJob()
	job.CreditCost = 0
	jobs := newFakeJobStore(job)
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: "not json"}

	proc := newTestProcessor(jobs, ledger, gen, &fakeRecorder{})

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)

	assert.Equal(t, domain.JobStatusError, jobs.jobs[job.ID].Status)
	assert.Empty(t, ledger.refunds, "zero billed cost must never mint a refund")
}

func TestProcess_PanicResolvesJob(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	ledger := newFakeLedger()
	gen := &fakeGenerator{panics: true}

	proc := newTestProcessor(jobs, ledger, gen, &fakeRecorder{})

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	assert.Equal(t, domain.JobStatusError, jobs.jobs[job.ID].Status)
	assert.Equal(t, 15, ledger.refunds["user-1"])
}

func TestProcess_ArtifactFailureRefunds(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	jobs.artifactErr = errors.New("disk full")
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: validPlanOutput(), tokens: 500}
	rec := &fakeRecorder{}

	proc := newTestProcessor(jobs, ledger, gen, rec)

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)

	assert.Equal(t, domain.JobStatusError, jobs.jobs[job.ID].Status)
	assert.Equal(t, 15, ledger.refunds["user-1"])
	assert.Empty(t, rec.records)
}

func TestProcess_ClaimFailureResolvesJob(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	jobs.claimErr = errors.New("connection reset")
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: validPlanOutput()}

	proc := newTestProcessor(jobs, ledger, gen, &fakeRecorder{})

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)

	// A failed claim must not strand the job pending with the debit kept.
	stored := jobs.jobs[job.ID]
	assert.Equal(t, domain.JobStatusError, stored.Status)
	assert.Equal(t, "internal error", stored.ErrorMessage)
	assert.Equal(t, 15, ledger.refunds["user-1"])
	assert.Equal(t, 0, gen.calls)
}

func TestProcess_GetFailureResolvesJob(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	jobs.getFailures = 1
	ledger := newFakeLedger()
	gen := &fakeGenerator{output: validPlanOutput()}

	proc := newTestProcessor(jobs, ledger, gen, &fakeRecorder{})

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)

	assert.Equal(t, domain.JobStatusError, jobs.jobs[job.ID].Status)
	assert.Equal(t, 15, ledger.refunds["user-1"])
	assert.Equal(t, 0, gen.calls)
}

func TestProcess_ClaimFailureRaceSkipsRefund(t *testing.T) {
	job := pendingJob()
	jobs := newFakeJobStore(job)
	jobs.claimErr = errors.New("connection reset")
	ledger := newFakeLedger()

	proc := newTestProcessor(jobs, ledger, &fakeGenerator{}, &fakeRecorder{})

	// Another worker claims the job between the failed claim and the
	// abandonment CAS; losing that race must not refund.
	jobs.jobs[job.ID].Status = domain.JobStatusProcessing

	_, err := proc.Process(context.Background(), job.ID)
	require.Error(t, err)

	assert.Equal(t, domain.JobStatusProcessing, jobs.jobs[job.ID].Status)
	assert.Empty(t, ledger.refunds)
}

func TestProcess_MissingJob(t *testing.T) {
	jobs := newFakeJobStore()
	proc := newTestProcessor(jobs, newFakeLedger(), &fakeGenerator{}, &fakeRecorder{})

	_, err := proc.Process(context.Background(), "2b3c4d5e-6f70-4182-93a4-b5c6d7e8f901")
	require.ErrorIs(t, err, domain.ErrJobNotFound)
}
