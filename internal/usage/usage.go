package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Record is one append-only row per billable AI call. Records are never
// updated or deleted by this service.
type Record struct {
	ID               string    `db:"record_id" json:"record_id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Feature          string    `db:"feature" json:"feature"`
	Model            string    `db:"model" json:"model"`
	TotalTokens      int       `db:"total_tokens" json:"total_tokens"`
	CreditCost       int       `db:"credit_cost" json:"credit_cost"`
	EstimatedCostUSD float64   `db:"estimated_cost_usd" json:"estimated_cost_usd"`
	LatencyMs        int64     `db:"latency_ms" json:"latency_ms"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// DailyUsage is one row of the per-day rollup maintained by the consumer.
type DailyUsage struct {
	UserID           string    `db:"user_id" json:"user_id"`
	Feature          string    `db:"feature" json:"feature"`
	Day              time.Time `db:"day" json:"day"`
	Calls            int       `db:"calls" json:"calls"`
	TotalTokens      int       `db:"total_tokens" json:"total_tokens"`
	EstimatedCostUSD float64   `db:"estimated_cost_usd" json:"estimated_cost_usd"`
}

// Store persists usage records and rollups.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a usage store.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Insert appends one usage record.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO usage_records (
			record_id, user_id, feature, model, total_tokens,
			credit_cost, estimated_cost_usd, latency_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Feature,
		rec.Model,
		rec.TotalTokens,
		rec.CreditCost,
		rec.EstimatedCostUSD,
		rec.LatencyMs,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	return nil
}

// CountSince counts a user's records for a feature newer than since. The rate
// limiter derives its sliding-window counter from this.
func (s *Store) CountSince(ctx context.Context, userID, feature string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM usage_records
		WHERE user_id = $1
		  AND feature = $2
		  AND created_at > $3
	`, userID, feature, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}

	return count, nil
}

// ApplyDaily folds one usage event into the per-day rollup.
func (s *Store) ApplyDaily(ctx context.Context, userID, feature string, day time.Time, tokens int, costUSD float64) error {
	query := `
		INSERT INTO usage_daily (user_id, feature, day, calls, total_tokens, estimated_cost_usd)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (user_id, feature, day)
		DO UPDATE SET calls = usage_daily.calls + 1,
		              total_tokens = usage_daily.total_tokens + EXCLUDED.total_tokens,
		              estimated_cost_usd = usage_daily.estimated_cost_usd + EXCLUDED.estimated_cost_usd
	`

	_, err := s.db.ExecContext(ctx, query, userID, feature, day, tokens, costUSD)
	if err != nil {
		return fmt.Errorf("failed to apply daily usage: %w", err)
	}

	return nil
}

// DailyTotals returns the user's rollup rows for the trailing number of days.
func (s *Store) DailyTotals(ctx context.Context, userID string, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var rows []DailyUsage
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, feature, day, calls, total_tokens, estimated_cost_usd
		FROM usage_daily
		WHERE user_id = $1
		  AND day >= $2
		ORDER BY day DESC, feature
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily usage: %w", err)
	}

	return rows, nil
}
