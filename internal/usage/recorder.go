package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// recordTimeout bounds each best-effort write so recording can never hold up
// a response.
const recordTimeout = 5 * time.Second

// Inserter appends usage records; the Store implements it.
type Inserter interface {
	Insert(ctx context.Context, rec *Record) error
}

// Publisher sends a usage event onto the telemetry stream; the rabbitmq
// client implements it.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Event is the message published per usage record for downstream aggregation.
type Event struct {
	UserID           string    `json:"user_id"`
	Feature          string    `json:"feature"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}

// Recorder is the fire-and-forget usage sink: it inserts the record and
// publishes a telemetry event, logging failures instead of returning them.
// Usage accounting never affects a job's outcome.
type Recorder struct {
	store  Inserter
	pub    Publisher
	logger *slog.Logger
}

// NewRecorder creates a recorder. pub may be nil when no telemetry stream is
// configured.
func NewRecorder(store Inserter, pub Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		pub:    pub,
		logger: logger,
	}
}

// Record persists rec and publishes the matching event. Always returns; the
// caller's context may already be canceled, so writes run under their own
// deadline.
func (r *Recorder) Record(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.Error("Failed to insert usage record",
			slog.String("user_id", rec.UserID),
			slog.String("feature", rec.Feature),
			slog.String("error", err.Error()),
		)
	}

	if r.pub == nil {
		return
	}

	event := Event{
		UserID:           rec.UserID,
		Feature:          rec.Feature,
		TotalTokens:      rec.TotalTokens,
		EstimatedCostUSD: rec.EstimatedCostUSD,
		CreatedAt:        rec.CreatedAt,
	}

	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Failed to marshal usage event",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.pub.Publish(ctx, body, "application/json"); err != nil {
		r.logger.Warn("Failed to publish usage event",
			slog.String("user_id", rec.UserID),
			slog.String("error", err.Error()),
		)
	}
}
