package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgefit/coach-be/internal/config"
	"github.com/forgefit/coach-be/internal/domain"
)

func testTable() *Table {
	return NewTable(map[string]config.FeatureConfig{
		"workout_plan": {
			Cost:         5,
			PremiumCost:  8,
			Model:        "gemini-1.5-flash",
			PremiumModel: "gemini-1.5-pro",
		},
		"form_check": {
			Cost:  3,
			Model: "gemini-1.5-flash",
		},
	})
}

func TestTable_Lookup(t *testing.T) {
	tests := []struct {
		name      string
		feature   string
		premium   bool
		wantCost  int
		wantModel string
		wantErr   error
	}{
		{
			name:      "standard tier",
			feature:   "workout_plan",
			wantCost:  5,
			wantModel: "gemini-1.5-flash",
		},
		{
			name:      "premium tier upgrades cost and model",
			feature:   "workout_plan",
			premium:   true,
			wantCost:  8,
			wantModel: "gemini-1.5-pro",
		},
		{
			name:      "premium falls back to standard when no premium tier configured",
			feature:   "form_check",
			premium:   true,
			wantCost:  3,
			wantModel: "gemini-1.5-flash",
		},
		{
			name:    "unknown feature",
			feature: "meal_plan",
			wantErr: domain.ErrUnknownFeature,
		},
	}

	table := testTable()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := table.Lookup(tt.feature, tt.premium)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantCost, q.Cost)
			assert.Equal(t, tt.wantModel, q.Model)
		})
	}
}

func TestEstimateUSD(t *testing.T) {
	assert.Equal(t, 0.0, EstimateUSD(0))
	assert.InDelta(t, 0.002, EstimateUSD(1000), 1e-9)
}
