package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/forgefit/coach-be/internal/auth"
	"github.com/forgefit/coach-be/internal/domain"
	"github.com/forgefit/coach-be/internal/handoff"
	"github.com/forgefit/coach-be/internal/jobstore"
	"github.com/forgefit/coach-be/internal/pricing"
	"github.com/forgefit/coach-be/internal/usage"
)

// IdentityKey is the gin context key the auth middleware stores the verified
// caller under.
const IdentityKey = "identity"

// Ledger is the slice of the credit ledger the dispatcher needs.
type Ledger interface {
	Debit(ctx context.Context, userID string, cost int, privileged bool) (int, error)
	Refund(ctx context.Context, userID string, amount int)
}

// Limiter bounds per-user, per-feature request rates.
type Limiter interface {
	Allow(ctx context.Context, userID, feature string) bool
}

// JobStore is the slice of the job store the dispatcher needs.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter jobstore.Filter) ([]domain.Job, error)
}

// UsageReader exposes the daily usage rollups.
type UsageReader interface {
	DailyTotals(ctx context.Context, userID string, days int) ([]usage.DailyUsage, error)
}

// Dependencies holds everything the handlers need, constructed once in main
// and injected.
type Dependencies struct {
	Logger   *slog.Logger
	Jobs     JobStore
	Ledger   Ledger
	Limiter  Limiter
	Pricing  *pricing.Table
	Remote   handoff.Runner
	Fallback handoff.Runner
	Usage    UsageReader
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	logger   *slog.Logger
	jobs     JobStore
	ledger   Ledger
	limiter  Limiter
	pricing  *pricing.Table
	remote   handoff.Runner
	fallback handoff.Runner
	usage    UsageReader
}

// NewJobHandler creates a new JobHandler instance.
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		jobs:     deps.Jobs,
		ledger:   deps.Ledger,
		limiter:  deps.Limiter,
		pricing:  deps.Pricing,
		remote:   deps.Remote,
		fallback: deps.Fallback,
		usage:    deps.Usage,
	}
}

// identityFrom pulls the verified caller placed in the context by the auth
// middleware.
func identityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok
}
