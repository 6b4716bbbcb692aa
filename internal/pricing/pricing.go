package pricing

import (
	"github.com/forgefit/coach-be/internal/config"
	"github.com/forgefit/coach-be/internal/domain"
)

// Rate used to turn token counts into a dollar estimate for the usage log.
// Rough blended per-token cost; the ledger bills in credits, not dollars.
const usdPerToken = 0.000002

// Quote is the price of one job: how many credits it debits and which model
// tier the provider call uses.
type Quote struct {
	Cost  int
	Model string
}

// Table resolves per-feature pricing from configuration.
type Table struct {
	features map[string]config.FeatureConfig
}

// NewTable builds a pricing table from the configured feature map.
func NewTable(features map[string]config.FeatureConfig) *Table {
	return &Table{features: features}
}

// Lookup returns the quote for a feature. Premium callers get the premium
// cost and model tier when one is configured.
func (t *Table) Lookup(feature string, premium bool) (*Quote, error) {
	f, ok := t.features[feature]
	if !ok {
		return nil, domain.ErrUnknownFeature
	}

	q := &Quote{Cost: f.Cost, Model: f.Model}
	if premium {
		if f.PremiumCost > 0 {
			q.Cost = f.PremiumCost
		}
		if f.PremiumModel != "" {
			q.Model = f.PremiumModel
		}
	}

	return q, nil
}

// EstimateUSD converts a token count into an approximate dollar cost.
func EstimateUSD(totalTokens int) float64 {
	return float64(totalTokens) * usdPerToken
}
