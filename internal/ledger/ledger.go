package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/forgefit/coach-be/internal/domain"
)

// Store owns the per-user credit balance. All mutation goes through single
// conditional statements so that concurrent debits serialize in the database
// rather than racing in application code.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a ledger store.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Debit atomically decreases the user's balance by cost. The WHERE clause
// guards the balance check inside the same statement that applies the
// decrement, so two concurrent debits can never both observe the pre-debit
// balance. Returns the new balance, or InsufficientCreditsError with the
// balance unchanged. Privileged callers are treated as having infinite
// balance and their debit is a no-op that always succeeds.
func (s *Store) Debit(ctx context.Context, userID string, cost int, privileged bool) (int, error) {
	if privileged || cost == 0 {
		return 0, nil
	}

	query := `
		UPDATE user_credits
		SET balance = balance - $2,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND balance >= $2
		RETURNING balance
	`

	var newBalance int
	err := s.db.QueryRowContext(ctx, query, userID, cost).Scan(&newBalance)
	if err == nil {
		s.logger.Info("Credits debited",
			slog.String("user_id", userID),
			slog.Int("cost", cost),
			slog.Int("new_balance", newBalance),
		)
		return newBalance, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}

	// No row matched: either the balance is too small or the user has no
	// balance row at all. Read the balance only to report need/have.
	have, err := s.balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance after rejected debit: %w", err)
	}

	return 0, &domain.InsufficientCreditsError{Need: cost, Have: have}
}

// Refund increases the user's balance by amount. Refund failures are logged,
// never propagated: a lost refund must not turn into a second user-visible
// error on a path that is already failing.
func (s *Store) Refund(ctx context.Context, userID string, amount int) {
	if amount <= 0 {
		return
	}

	query := `
		INSERT INTO user_credits (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET balance = user_credits.balance + EXCLUDED.balance,
		              updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, userID, amount); err != nil {
		s.logger.Error("Failed to refund credits",
			slog.String("user_id", userID),
			slog.Int("amount", amount),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("Credits refunded",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
	)
}

// Balance returns the user's current balance; users without a row have 0.
func (s *Store) Balance(ctx context.Context, userID string) (int, error) {
	return s.balance(ctx, userID)
}

func (s *Store) balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := s.db.GetContext(ctx, &balance,
		`SELECT balance FROM user_credits WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}
