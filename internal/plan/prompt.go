package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgefit/coach-be/internal/domain"
)

// BuildPrompt turns a job's stored request payload into the provider prompt.
// The provider is instructed to answer with bare JSON matching the feature's
// result shape; PostProcess enforces that shape.
func BuildPrompt(feature string, raw []byte) (string, error) {
	switch feature {
	case domain.FeatureWorkoutPlan:
		var p WorkoutPlanParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return "", fmt.Errorf("invalid workout_plan params: %w", err)
		}
		return fmt.Sprintf(`You are a strength and conditioning coach.
Create a %d-day weekly workout plan.
Goal: %s. Experience level: %s. Available equipment: %s.
Respond with JSON only, no prose, matching exactly:
{"days":[{"day":1,"focus":"...","exercises":[{"name":"...","sets":3,"reps":10,"rest_seconds":90,"notes":"..."}]}]}`,
			p.DaysPerWeek, p.Goal, defaultString(p.Experience, "beginner"),
			strings.Join(p.Equipment, ", ")), nil

	case domain.FeatureFormCheck:
		var p FormCheckParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return "", fmt.Errorf("invalid form_check params: %w", err)
		}
		return fmt.Sprintf(`You are a strength and conditioning coach reviewing exercise form.
Exercise: %s.
Observations from the lifter:
- %s
Respond with JSON only, no prose, matching exactly:
{"summary":"...","issues":[{"area":"...","severity":"low|medium|high","advice":"..."}],"score":75}`,
			p.Exercise, strings.Join(p.Observations, "\n- ")), nil
	}

	return "", domain.ErrUnknownFeature
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
