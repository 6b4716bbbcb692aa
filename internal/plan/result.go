package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgefit/coach-be/internal/domain"
)

// WorkoutPlan is the workout_plan result shape.
type WorkoutPlan struct {
	Days []PlanDay `json:"days"`
}

// PlanDay is one day of a workout plan.
type PlanDay struct {
	Day       int        `json:"day"`
	Focus     string     `json:"focus"`
	Exercises []Exercise `json:"exercises"`
}

// Exercise is one prescribed movement.
type Exercise struct {
	Name        string `json:"name"`
	Sets        int    `json:"sets"`
	Reps        int    `json:"reps"`
	RestSeconds int    `json:"rest_seconds"`
	Notes       string `json:"notes,omitempty"`
}

// FormCheck is the form_check result shape.
type FormCheck struct {
	Summary string      `json:"summary"`
	Issues  []FormIssue `json:"issues"`
	Score   int         `json:"score"`
}

// FormIssue is one identified form problem.
type FormIssue struct {
	Area     string `json:"area"`
	Severity string `json:"severity"`
	Advice   string `json:"advice"`
}

// PostProcess parses the provider's text output and normalizes it into the
// feature's canonical result JSON. Numeric values are clamped against the
// caller-supplied ceilings from the original request. Unparseable output
// yields domain.ErrMalformedOutput; the provider is non-deterministic, so the
// worker treats that as terminal rather than retrying.
func PostProcess(feature string, requestRaw []byte, output string) (string, error) {
	cleaned := stripCodeFence(output)

	switch feature {
	case domain.FeatureWorkoutPlan:
		var params WorkoutPlanParams
		if err := json.Unmarshal(requestRaw, &params); err != nil {
			return "", fmt.Errorf("invalid stored workout_plan params: %w", err)
		}

		var result WorkoutPlan
		if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
		}
		if len(result.Days) == 0 {
			return "", fmt.Errorf("%w: plan has no days", domain.ErrMalformedOutput)
		}

		normalizeWorkoutPlan(&result, &params)
		return marshalResult(&result)

	case domain.FeatureFormCheck:
		var result FormCheck
		if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
		}
		if strings.TrimSpace(result.Summary) == "" {
			return "", fmt.Errorf("%w: form check has no summary", domain.ErrMalformedOutput)
		}

		normalizeFormCheck(&result)
		return marshalResult(&result)
	}

	return "", domain.ErrUnknownFeature
}

func normalizeWorkoutPlan(p *WorkoutPlan, params *WorkoutPlanParams) {
	maxSets := params.MaxSetsPerExercise
	if maxSets <= 0 {
		maxSets = DefaultMaxSets
	}
	maxReps := params.MaxRepsPerSet
	if maxReps <= 0 {
		maxReps = DefaultMaxReps
	}

	for di := range p.Days {
		day := &p.Days[di]
		if day.Day <= 0 {
			day.Day = di + 1
		}
		for ei := range day.Exercises {
			ex := &day.Exercises[ei]
			ex.Sets = clamp(ex.Sets, 1, maxSets)
			ex.Reps = clamp(ex.Reps, 1, maxReps)
			if ex.RestSeconds < MinRestSeconds {
				ex.RestSeconds = MinRestSeconds
			}
		}
	}
}

func normalizeFormCheck(f *FormCheck) {
	f.Score = clamp(f.Score, 0, 100)
	for i := range f.Issues {
		switch strings.ToLower(f.Issues[i].Severity) {
		case "low", "medium", "high":
			f.Issues[i].Severity = strings.ToLower(f.Issues[i].Severity)
		default:
			f.Issues[i].Severity = "medium"
		}
	}
	if f.Issues == nil {
		f.Issues = []FormIssue{}
	}
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}

// stripCodeFence removes a surrounding markdown fence the model sometimes
// wraps its JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
