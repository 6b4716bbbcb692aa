package plan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forgefit/coach-be/internal/domain"
)

// Bounds on caller-supplied request payloads.
const (
	MaxEquipmentItems   = 20
	MaxObservations     = 20
	DefaultMaxSets      = 5
	DefaultMaxReps      = 20
	MinRestSeconds      = 30
	DefaultProviderWait = 2 * time.Minute
)

// WorkoutPlanParams is the request payload for the workout_plan feature.
type WorkoutPlanParams struct {
	DaysPerWeek        int      `json:"days_per_week"`
	Goal               string   `json:"goal"`
	Experience         string   `json:"experience"`
	Equipment          []string `json:"equipment"`
	MaxSetsPerExercise int      `json:"max_sets_per_exercise,omitempty"`
	MaxRepsPerSet      int      `json:"max_reps_per_set,omitempty"`
}

// FormCheckParams is the request payload for the form_check feature.
type FormCheckParams struct {
	Exercise     string   `json:"exercise"`
	Observations []string `json:"observations"`
}

// ValidateParams checks a feature's raw request payload. It runs after the
// debit, so the dispatcher refunds when it fails.
func ValidateParams(feature string, raw []byte) error {
	switch feature {
	case domain.FeatureWorkoutPlan:
		var p WorkoutPlanParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid workout_plan params: %w", err)
		}
		if p.DaysPerWeek < 1 || p.DaysPerWeek > 7 {
			return fmt.Errorf("days_per_week must be between 1 and 7")
		}
		if strings.TrimSpace(p.Goal) == "" {
			return fmt.Errorf("goal is required")
		}
		if len(p.Equipment) == 0 {
			return fmt.Errorf("equipment must not be empty")
		}
		if len(p.Equipment) > MaxEquipmentItems {
			return fmt.Errorf("equipment must not exceed %d items", MaxEquipmentItems)
		}
		return nil

	case domain.FeatureFormCheck:
		var p FormCheckParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid form_check params: %w", err)
		}
		if strings.TrimSpace(p.Exercise) == "" {
			return fmt.Errorf("exercise is required")
		}
		if len(p.Observations) == 0 {
			return fmt.Errorf("observations must not be empty")
		}
		if len(p.Observations) > MaxObservations {
			return fmt.Errorf("observations must not exceed %d items", MaxObservations)
		}
		return nil
	}

	return domain.ErrUnknownFeature
}
