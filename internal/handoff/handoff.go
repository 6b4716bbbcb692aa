package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgefit/coach-be/internal/domain"
)

// Outcome reports how a job run was delegated. Async means the worker
// acknowledged the hand-off and the caller should poll; otherwise Result
// holds the completed output.
type Outcome struct {
	Async  bool
	Result string
}

// Runner attempts to get a job executed. RemoteRunner delegates out of
// process; InlineRunner degrades to local execution when the hand-off cannot
// be acknowledged.
type Runner interface {
	Run(ctx context.Context, jobID string) (*Outcome, error)
}

// RemoteRunner invokes the worker service over HTTP, sending only the job id
// and the shared secret. The payload never crosses this channel; the worker
// re-reads it from the job store. The short client deadline covers connect
// plus acknowledgment, not job completion.
type RemoteRunner struct {
	baseURL string
	secret  string
	client  *http.Client
	logger  *slog.Logger
}

// NewRemoteRunner creates a remote runner with the hand-off deadline baked
// into its HTTP client.
func NewRemoteRunner(baseURL, secret string, timeout time.Duration, logger *slog.Logger) *RemoteRunner {
	return &RemoteRunner{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Run posts the invocation and treats anything but a 2xx acknowledgment as
// the worker being unreachable.
func (r *RemoteRunner) Run(ctx context.Context, jobID string) (*Outcome, error) {
	body, err := json.Marshal(map[string]string{
		"job_id":        jobID,
		"shared_secret": r.secret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invocation: %w", err)
	}

	url := r.baseURL + "/internal/jobs/run"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build invocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("Worker hand-off failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrWorkerUnreachable, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warn("Worker hand-off rejected",
			slog.String("job_id", jobID),
			slog.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: unexpected status %d", domain.ErrWorkerUnreachable, resp.StatusCode)
	}

	return &Outcome{Async: true}, nil
}

// Processor runs a job to a terminal status; the worker's processor
// implements it.
type Processor interface {
	Process(ctx context.Context, jobID string) (string, error)
}

// InlineRunner executes the job synchronously inside the dispatcher, under a
// deadline strictly shorter than the worker's own, since there is no separate
// invocation left to retry.
type InlineRunner struct {
	proc    Processor
	timeout time.Duration
	logger  *slog.Logger
}

// NewInlineRunner creates an inline runner.
func NewInlineRunner(proc Processor, timeout time.Duration, logger *slog.Logger) *InlineRunner {
	return &InlineRunner{
		proc:    proc,
		timeout: timeout,
		logger:  logger,
	}
}

// Run performs the work locally and returns the completed result.
func (r *InlineRunner) Run(ctx context.Context, jobID string) (*Outcome, error) {
	r.logger.Info("Running job inline",
		slog.String("job_id", jobID),
	)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.proc.Process(runCtx, jobID)
	if err != nil {
		return nil, err
	}

	return &Outcome{Result: result}, nil
}
