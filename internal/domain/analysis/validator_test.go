package analysis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brakeComponents() []SubComponent {
	return []SubComponent{
		{Name: "Brake caliper", Function: "Clamps rotor for braking", Subsystem: "Brakes"},
		{Name: "Brake rotor", Function: "Rotating braking surface", Subsystem: "Brakes"},
		{Name: "Brake pad", Function: "Provides friction", Subsystem: "Brakes"},
		{Name: "Master cylinder", Function: "Generates hydraulic pressure", Subsystem: "Brakes"},
	}
}

func brakeClassifications() []Classification {
	return []Classification{
		{Name: "Brake caliper", Category: CategoryShared, Confidence: 0.92},
		{Name: "Brake rotor", Category: CategoryShared, Confidence: 0.88},
		{Name: "Brake pad", Category: CategoryShared, Confidence: 0.85},
		{Name: "Master cylinder", Category: CategoryShared, Confidence: 0.74},
	}
}

func brakeScores() []ScoreSet {
	return []ScoreSet{
		{Name: "Brake caliper", Tech: 85, Manufacturing: 90, SupplyChain: 88, Demand: 85, Value: 80, Regulatory: 92},
		{Name: "Brake rotor", Tech: 82, Manufacturing: 88, SupplyChain: 85, Demand: 81, Value: 78, Regulatory: 90},
		{Name: "Brake pad", Tech: 80, Manufacturing: 85, SupplyChain: 82, Demand: 80, Value: 75, Regulatory: 88},
		{Name: "Master cylinder", Tech: 83, Manufacturing: 87, SupplyChain: 84, Demand: 83, Value: 77, Regulatory: 91},
	}
}

func hardIssues(v Verdict) []Issue {
	var out []Issue
	for _, is := range v.Issues {
		if is.Severity == SeverityHard {
			out = append(out, is)
		}
	}
	return out
}

func TestValidateCleanRunIsHighAndValid(t *testing.T) {
	v := NewComprehensiveValidator(ValidatorConfig{})

	got := v.Validate(brakeComponents(), brakeClassifications(), brakeScores())

	assert.True(t, got.Valid)
	assert.Equal(t, ConfidenceHigh, got.Confidence)
	assert.Equal(t, 100, got.Quality)
	assert.Empty(t, hardIssues(got))
	assert.Equal(t, StageQuality{Enrich: 100, Classify: 100, Score: 100, Integration: 100}, got.Stages)
}

func TestValidateIsIdempotent(t *testing.T) {
	v := NewComprehensiveValidator(DefaultValidatorConfig())
	comps := brakeComponents()[:3]
	classes := append(brakeClassifications(), Classification{Name: "Ghost", Category: "HYBRID", Confidence: 1.4})

	first := v.Validate(comps, classes, nil)
	second := v.Validate(comps, classes, nil)

	assert.Equal(t, first, second)
}

func TestValidateCompletenessBoundary(t *testing.T) {
	v := NewComprehensiveValidator(DefaultValidatorConfig())
	four := brakeComponents()
	base := v.Validate(four, nil, nil)
	for _, is := range base.Issues {
		assert.NotContains(t, is.Message, "expected 4 components")
	}

	five := append(brakeComponents(), SubComponent{Name: "Brake hose", Function: "Carries fluid", Subsystem: "Brakes"})
	for name, comps := range map[string][]SubComponent{"three": four[:3], "five": five} {
		t.Run(name, func(t *testing.T) {
			got := v.Validate(comps, nil, nil)
			assert.Less(t, got.Quality, base.Quality)
			assert.Contains(t, got.Messages(), fmt.Sprintf("[enrich] expected 4 components, got %d", len(comps)))
		})
	}
}

func TestValidateOrphanNamesAreHardIssues(t *testing.T) {
	v := NewComprehensiveValidator(DefaultValidatorConfig())
	classes := brakeClassifications()
	classes[3].Name = "Fuel injector"

	got := v.Validate(brakeComponents(), classes, brakeScores())

	require.False(t, got.Valid)
	hard := hardIssues(got)
	require.Len(t, hard, 1)
	assert.Equal(t, StageClassify, hard[0].Stage)
	assert.Contains(t, hard[0].Message, "Fuel injector")
	assert.Contains(t, got.Messages(), `[classify] component "Master cylinder" not covered`)
}

func TestValidateRangeViolationsAreReportedNotClamped(t *testing.T) {
	v := NewComprehensiveValidator(DefaultValidatorConfig())
	scores := brakeScores()
	scores[0].Tech = 140
	classes := brakeClassifications()
	classes[1].Confidence = -0.2

	got := v.Validate(brakeComponents(), classes, scores)

	assert.False(t, got.Valid)
	msgs := got.Messages()
	assert.Contains(t, msgs, "[score] score set 1 (Brake caliper) tech out of range: 140")
	assert.Contains(t, msgs, "[classify] classification 2 (Brake rotor) confidence out of range: -0.20")
}

func TestValidateToleratesMissingStages(t *testing.T) {
	v := NewComprehensiveValidator(DefaultValidatorConfig())

	got := v.Validate(brakeComponents(), nil, brakeScores())

	assert.False(t, got.Valid)
	assert.Equal(t, 0, got.Stages.Classify)
	assert.Equal(t, 0, got.Stages.Integration)
	assert.Equal(t, 50, got.Quality)
	assert.Equal(t, ConfidenceLow, got.Confidence)

	none := v.Validate(nil, nil, nil)
	assert.Equal(t, 0, none.Quality)
	assert.Len(t, hardIssues(none), 3)
}

func TestValidateEmptyOutputIsSoftIssue(t *testing.T) {
	v := NewComprehensiveValidator(DefaultValidatorConfig())

	got := v.Validate([]SubComponent{}, []Classification{}, []ScoreSet{})

	assert.Empty(t, hardIssues(got))
	assert.False(t, got.Valid)
	assert.Equal(t, 0, got.Stages.Enrich)
	assert.Equal(t, 0, got.Stages.Classify)
	assert.Equal(t, 0, got.Stages.Score)
}

func TestValidateSoftIssuesDoNotInvalidateAlone(t *testing.T) {
	v := NewComprehensiveValidator(DefaultValidatorConfig())
	classes := brakeClassifications()
	classes[0].Confidence = 0.45

	got := v.Validate(brakeComponents(), classes, brakeScores())

	assert.True(t, got.Valid)
	assert.Empty(t, hardIssues(got))
	assert.Less(t, got.Stages.Classify, 100)
}

func TestTierIsMonotonicAndConfigurable(t *testing.T) {
	cfg := ValidatorConfig{HighThreshold: 90, MediumThreshold: 50}.WithDefaults()

	tests := []struct {
		quality int
		want    Confidence
	}{
		{100, ConfidenceHigh},
		{90, ConfidenceHigh},
		{89, ConfidenceMedium},
		{50, ConfidenceMedium},
		{49, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Tier(tt.quality), "quality=%d", tt.quality)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("call: %w", ErrTimeout), KindTimeout},
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("parse: %w", ErrMalformed), KindMalformed},
		{ErrUnreachable, KindUnreachable},
		{ErrSkipped, KindSkipped},
		{errors.New("boom"), KindError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "err=%v", tt.err)
	}
}

func TestRequestValidate(t *testing.T) {
	assert.ErrorIs(t, Request{Identifier: "  "}.Validate(), ErrInvalidRequest)
	assert.NoError(t, Request{Identifier: "8708.30"}.Validate())
}
