package plan

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgefit/coach-be/internal/domain"
)

func workoutParams(t *testing.T, p WorkoutPlanParams) []byte {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name      string
		feature   string
		raw       string
		wantErr   bool
		errString string
	}{
		{
			name:    "valid workout plan",
			feature: domain.FeatureWorkoutPlan,
			raw:     `{"days_per_week":3,"goal":"strength","equipment":["barbell"]}`,
		},
		{
			name:      "workout plan with zero days",
			feature:   domain.FeatureWorkoutPlan,
			raw:       `{"days_per_week":0,"goal":"strength","equipment":["barbell"]}`,
			wantErr:   true,
			errString: "days_per_week",
		},
		{
			name:      "workout plan with eight days",
			feature:   domain.FeatureWorkoutPlan,
			raw:       `{"days_per_week":8,"goal":"strength","equipment":["barbell"]}`,
			wantErr:   true,
			errString: "days_per_week",
		},
		{
			name:      "workout plan without equipment",
			feature:   domain.FeatureWorkoutPlan,
			raw:       `{"days_per_week":3,"goal":"strength","equipment":[]}`,
			wantErr:   true,
			errString: "equipment must not be empty",
		},
		{
			name:      "workout plan with oversized equipment list",
			feature:   domain.FeatureWorkoutPlan,
			raw:       `{"days_per_week":3,"goal":"strength","equipment":[` + strings.Repeat(`"x",`, 20) + `"x"]}`,
			wantErr:   true,
			errString: "must not exceed",
		},
		{
			name:    "valid form check",
			feature: domain.FeatureFormCheck,
			raw:     `{"exercise":"squat","observations":["knees cave on ascent"]}`,
		},
		{
			name:      "form check without observations",
			feature:   domain.FeatureFormCheck,
			raw:       `{"exercise":"squat","observations":[]}`,
			wantErr:   true,
			errString: "observations must not be empty",
		},
		{
			name:      "form check without exercise",
			feature:   domain.FeatureFormCheck,
			raw:       `{"exercise":"","observations":["knees cave"]}`,
			wantErr:   true,
			errString: "exercise is required",
		},
		{
			name:      "not json",
			feature:   domain.FeatureWorkoutPlan,
			raw:       `{{{`,
			wantErr:   true,
			errString: "invalid workout_plan params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.feature, []byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateParams_UnknownFeature(t *testing.T) {
	err := ValidateParams("meal_plan", []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnknownFeature)
}

func TestBuildPrompt(t *testing.T) {
	raw := workoutParams(t, WorkoutPlanParams{
		DaysPerWeek: 3,
		Goal:        "hypertrophy",
		Equipment:   []string{"dumbbells", "bench"},
	})

	prompt, err := BuildPrompt(domain.FeatureWorkoutPlan, raw)
	require.NoError(t, err)
	assert.Contains(t, prompt, "3-day weekly workout plan")
	assert.Contains(t, prompt, "hypertrophy")
	assert.Contains(t, prompt, "dumbbells, bench")
	// Experience defaults when omitted.
	assert.Contains(t, prompt, "beginner")

	prompt, err = BuildPrompt(domain.FeatureFormCheck, []byte(`{"exercise":"deadlift","observations":["rounded back"]}`))
	require.NoError(t, err)
	assert.Contains(t, prompt, "deadlift")
	assert.Contains(t, prompt, "rounded back")
}

func TestPostProcess_WorkoutPlanClamps(t *testing.T) {
	request := workoutParams(t, WorkoutPlanParams{
		DaysPerWeek:        2,
		Goal:               "strength",
		Equipment:          []string{"barbell"},
		MaxSetsPerExercise: 4,
		MaxRepsPerSet:      12,
	})

	output := `{"days":[{"day":0,"focus":"push","exercises":[
		{"name":"bench press","sets":10,"reps":30,"rest_seconds":10},
		{"name":"overhead press","sets":0,"reps":8,"rest_seconds":120,"notes":"strict"}
	]}]}`

	result, err := PostProcess(domain.FeatureWorkoutPlan, request, output)
	require.NoError(t, err)

	var parsed WorkoutPlan
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	require.Len(t, parsed.Days, 1)
	assert.Equal(t, 1, parsed.Days[0].Day)

	bench := parsed.Days[0].Exercises[0]
	assert.Equal(t, 4, bench.Sets)
	assert.Equal(t, 12, bench.Reps)
	assert.Equal(t, MinRestSeconds, bench.RestSeconds)

	ohp := parsed.Days[0].Exercises[1]
	assert.Equal(t, 1, ohp.Sets)
	assert.Equal(t, 8, ohp.Reps)
	assert.Equal(t, 120, ohp.RestSeconds)
	assert.Equal(t, "strict", ohp.Notes)
}

func TestPostProcess_WorkoutPlanDefaultCeilings(t *testing.T) {
	request := workoutParams(t, WorkoutPlanParams{
		DaysPerWeek: 1,
		Goal:        "strength",
		Equipment:   []string{"barbell"},
	})

	output := `{"days":[{"day":1,"focus":"full body","exercises":[
		{"name":"squat","sets":9,"reps":50,"rest_seconds":90}
	]}]}`

	result, err := PostProcess(domain.FeatureWorkoutPlan, request, output)
	require.NoError(t, err)

	var parsed WorkoutPlan
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, DefaultMaxSets, parsed.Days[0].Exercises[0].Sets)
	assert.Equal(t, DefaultMaxReps, parsed.Days[0].Exercises[0].Reps)
}

func TestPostProcess_StripsCodeFence(t *testing.T) {
	request := workoutParams(t, WorkoutPlanParams{
		DaysPerWeek: 1,
		Goal:        "strength",
		Equipment:   []string{"barbell"},
	})

	output := "```json\n{\"days\":[{\"day\":1,\"focus\":\"legs\",\"exercises\":[{\"name\":\"squat\",\"sets\":3,\"reps\":5,\"rest_seconds\":180}]}]}\n```"

	result, err := PostProcess(domain.FeatureWorkoutPlan, request, output)
	require.NoError(t, err)
	assert.Contains(t, result, "squat")
}

func TestPostProcess_MalformedOutput(t *testing.T) {
	request := workoutParams(t, WorkoutPlanParams{
		DaysPerWeek: 1,
		Goal:        "strength",
		Equipment:   []string{"barbell"},
	})

	tests := []struct {
		name   string
		output string
	}{
		{"prose instead of json", "Here is your plan! Day 1: squats."},
		{"empty days", `{"days":[]}`},
		{"truncated json", `{"days":[{"day":1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PostProcess(domain.FeatureWorkoutPlan, request, tt.output)
			assert.ErrorIs(t, err, domain.ErrMalformedOutput)
		})
	}
}

func TestPostProcess_FormCheck(t *testing.T) {
	output := `{"summary":"Solid depth, bar path drifts","issues":[
		{"area":"bar path","severity":"HIGH","advice":"keep the bar over midfoot"},
		{"area":"breathing","severity":"unknown","advice":"brace before descent"}
	],"score":140}`

	result, err := PostProcess(domain.FeatureFormCheck, []byte(`{"exercise":"squat","observations":["x"]}`), output)
	require.NoError(t, err)

	var parsed FormCheck
	require.NoError(t, json.Unmarshal([]byte(result), &parsed))
	assert.Equal(t, 100, parsed.Score)
	assert.Equal(t, "high", parsed.Issues[0].Severity)
	assert.Equal(t, "medium", parsed.Issues[1].Severity)
}

func TestPostProcess_FormCheckMissingSummary(t *testing.T) {
	_, err := PostProcess(domain.FeatureFormCheck, []byte(`{}`), `{"summary":"","issues":[],"score":50}`)
	assert.ErrorIs(t, err, domain.ErrMalformedOutput)
}
