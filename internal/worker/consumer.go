package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/forgefit/coach-be/internal/usage"
)

// RollupStore folds usage events into the daily rollup; the usage store
// implements it.
type RollupStore interface {
	ApplyDaily(ctx context.Context, userID, feature string, day time.Time, tokens int, costUSD float64) error
}

// Consumer aggregates the fire-and-forget usage event stream into daily
// rollups. Losing an event loses a telemetry data point, never correctness.
type Consumer struct {
	store  RollupStore
	logger *slog.Logger
}

// NewConsumer creates a usage-event consumer.
func NewConsumer(store RollupStore, logger *slog.Logger) *Consumer {
	return &Consumer{
		store:  store,
		logger: logger,
	}
}

// Start drains deliveries until the channel closes or ctx is canceled.
func (c *Consumer) Start(ctx context.Context, deliveries <-chan amqp.Delivery) {
	c.logger.Info("Usage event consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Usage event consumer stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Usage event delivery channel closed")
				return
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var event usage.Event
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		c.logger.Error("Failed to parse usage event",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		// Malformed events can never succeed; drop without requeue.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to NACK malformed usage event",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	day := event.CreatedAt.UTC().Truncate(24 * time.Hour)
	err := c.store.ApplyDaily(ctx, event.UserID, event.Feature, day, event.TotalTokens, event.EstimatedCostUSD)
	if err != nil {
		c.logger.Error("Failed to apply usage event",
			slog.String("user_id", event.UserID),
			slog.String("feature", event.Feature),
			slog.String("error", err.Error()),
		)
		// Store errors are likely transient; requeue for another attempt.
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to NACK usage event",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("Failed to ACK usage event",
			slog.String("error", ackErr.Error()),
		)
	}
}
