package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/forgefit/coach-be/internal/config"
)

// Counter counts a user's usage records for a feature since a point in time.
// The usage store implements it.
type Counter interface {
	CountSince(ctx context.Context, userID, feature string, since time.Time) (int, error)
}

// Rule bounds how many requests a user may make within a trailing window.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

// Limiter applies per-user, per-feature sliding-window limits. It is a guard
// rail, not a correctness path: if the underlying count query fails, the
// limiter allows the request rather than blocking all traffic.
type Limiter struct {
	counter  Counter
	rules    map[string]Rule
	fallback Rule
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a limiter from the configured feature table. Features without an
// explicit limit get the conservative default.
func New(counter Counter, features map[string]config.FeatureConfig, defaults config.RateLimitConfig, logger *slog.Logger) *Limiter {
	rules := make(map[string]Rule, len(features))
	for name, f := range features {
		if f.MaxRequests > 0 && f.Window > 0 {
			rules[name] = Rule{MaxRequests: f.MaxRequests, Window: f.Window}
		}
	}

	fallback := Rule{MaxRequests: defaults.DefaultMaxRequests, Window: defaults.DefaultWindow}
	if fallback.MaxRequests <= 0 {
		fallback.MaxRequests = 5
	}
	if fallback.Window <= 0 {
		fallback.Window = time.Minute
	}

	return &Limiter{
		counter:  counter,
		rules:    rules,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow reports whether the user may invoke the feature right now.
func (l *Limiter) Allow(ctx context.Context, userID, feature string) bool {
	rule, ok := l.rules[feature]
	if !ok {
		rule = l.fallback
	}

	since := l.now().Add(-rule.Window)
	count, err := l.counter.CountSince(ctx, userID, feature, since)
	if err != nil {
		// Fail open: availability over strict enforcement.
		l.logger.Warn("Rate limit count failed, allowing request",
			slog.String("user_id", userID),
			slog.String("feature", feature),
			slog.String("error", err.Error()),
		)
		return true
	}

	if count >= rule.MaxRequests {
		l.logger.Info("Rate limit exceeded",
			slog.String("user_id", userID),
			slog.String("feature", feature),
			slog.Int("count", count),
			slog.Int("max_requests", rule.MaxRequests),
		)
		return false
	}

	return true
}
