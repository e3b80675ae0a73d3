package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/bryanwahyu/hs-analyzer/internal/application"
	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type enrichFunc func(ctx context.Context, id, desc string) ([]domain.SubComponent, error)

func (f enrichFunc) Enrich(ctx context.Context, id, desc string) ([]domain.SubComponent, error) {
	return f(ctx, id, desc)
}

type classifyFunc func(ctx context.Context, names []string, id string) ([]domain.Classification, error)

func (f classifyFunc) Classify(ctx context.Context, names []string, id string) ([]domain.Classification, error) {
	return f(ctx, names, id)
}

type scoreFunc func(ctx context.Context, names []string, id string) ([]domain.ScoreSet, error)

func (f scoreFunc) Score(ctx context.Context, names []string, id string) ([]domain.ScoreSet, error) {
	return f(ctx, names, id)
}

var brakeNames = []string{"Brake caliper", "Brake rotor", "Brake pad", "Master cylinder"}

func okEnrich(calls *atomic.Int32) enrichFunc {
	return func(ctx context.Context, id, desc string) ([]domain.SubComponent, error) {
		calls.Add(1)
		out := make([]domain.SubComponent, 0, len(brakeNames))
		for _, n := range brakeNames {
			out = append(out, domain.SubComponent{Name: n, Function: "braking function", Subsystem: "Brakes"})
		}
		return out, nil
	}
}

func okClassify(calls *atomic.Int32) classifyFunc {
	return func(ctx context.Context, names []string, id string) ([]domain.Classification, error) {
		calls.Add(1)
		out := make([]domain.Classification, 0, len(names))
		for i, n := range names {
			out = append(out, domain.Classification{Name: n, Category: domain.CategoryShared, Confidence: 0.9 - float64(i)*0.05})
		}
		return out, nil
	}
}

func okScore(calls *atomic.Int32) scoreFunc {
	return func(ctx context.Context, names []string, id string) ([]domain.ScoreSet, error) {
		calls.Add(1)
		out := make([]domain.ScoreSet, 0, len(names))
		for i, n := range names {
			out = append(out, domain.ScoreSet{
				Name: n, Tech: 80 + i, Manufacturing: 85 + i, SupplyChain: 70 + i,
				Demand: 75 + i, Value: 78 + i, Regulatory: 90 + i,
			})
		}
		return out, nil
	}
}

func failing(calls *atomic.Int32, err error) classifyFunc {
	return func(ctx context.Context, names []string, id string) ([]domain.Classification, error) {
		calls.Add(1)
		return nil, err
	}
}

type counters struct{ enrich, classify, score atomic.Int32 }

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newOrchestrator(c *counters, concurrent bool) *Orchestrator {
	return &Orchestrator{
		Enricher:   okEnrich(&c.enrich),
		Classifier: okClassify(&c.classify),
		Scorer:     okScore(&c.score),
		Validator:  domain.NewComprehensiveValidator(domain.DefaultValidatorConfig()),
		Clock:      application.FixedClock(fixedNow),
		Config:     Config{MaxRetries: 2, ConcurrentStages: concurrent},
		Log:        zap.NewNop(),
	}
}

var brakeRequest = domain.Request{Identifier: "8708.30", Description: "Brake systems"}

func TestRunBrakeSystemsScenario(t *testing.T) {
	for _, concurrent := range []bool{true, false} {
		t.Run(fmt.Sprintf("concurrent=%v", concurrent), func(t *testing.T) {
			var c counters
			o := newOrchestrator(&c, concurrent)

			res, err := o.Run(context.Background(), brakeRequest, 2)
			require.NoError(t, err)

			assert.True(t, res.Valid)
			assert.Equal(t, res.Validation.Valid, res.Valid)
			assert.Equal(t, domain.ConfidenceHigh, res.OverallConfidence)
			assert.Empty(t, res.Errors)
			assert.Empty(t, res.Failures)
			assert.Greater(t, res.ProcessingTime, 0.0)
			assert.NotEmpty(t, res.ID)
			assert.Equal(t, brakeRequest, res.Request)
			assert.Equal(t, fixedNow, res.Timestamp)

			for _, attempts := range []int{res.Stages.Enrich.Attempts, res.Stages.Classify.Attempts, res.Stages.Score.Attempts} {
				assert.Equal(t, 1, attempts)
			}
			assert.Len(t, res.Stages.Classify.Output, 4)
			assert.Equal(t, "VALID", res.Summary.Status)
			assert.Equal(t, 4, res.Summary.TotalComponents)
		})
	}
}

func TestRunRetryBudgetIsRespected(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Classifier = failing(&c.classify, fmt.Errorf("call: %w", domain.ErrUnreachable))

	res, err := o.Run(context.Background(), brakeRequest, 2)
	require.NoError(t, err)

	assert.EqualValues(t, 3, c.classify.Load())
	assert.False(t, res.Stages.Classify.Success)
	assert.Equal(t, 3, res.Stages.Classify.Attempts)
	assert.Nil(t, res.Stages.Classify.Output)
	require.Len(t, res.Failures, 3)
	for i, f := range res.Failures {
		assert.Equal(t, domain.StageClassify, f.Stage)
		assert.Equal(t, i+1, f.Attempt)
		assert.Equal(t, domain.KindUnreachable, f.Kind)
	}
}

func TestRunEnrichExhaustedSkipsDownstream(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Enricher = enrichFunc(func(ctx context.Context, id, desc string) ([]domain.SubComponent, error) {
		c.enrich.Add(1)
		return nil, fmt.Errorf("parse: %w", domain.ErrMalformed)
	})

	res, err := o.Run(context.Background(), brakeRequest, 1)
	require.NoError(t, err)

	assert.EqualValues(t, 2, c.enrich.Load())
	assert.Zero(t, c.classify.Load())
	assert.Zero(t, c.score.Load())
	assert.False(t, res.Valid)
	assert.False(t, res.Stages.Enrich.Success)
	assert.False(t, res.Stages.Classify.Success)
	assert.Equal(t, "skipped: upstream failure", res.Stages.Classify.Error)
	assert.False(t, res.Stages.Score.Success)
	assert.Equal(t, "skipped: upstream failure", res.Stages.Score.Error)
	assert.Equal(t, 0, res.Stages.Score.Attempts)
	require.GreaterOrEqual(t, len(res.Errors), 3)
	assert.Contains(t, res.Errors[0], "enrich failed after 2 attempt(s)")
	assert.Equal(t, "classify skipped: upstream failure", res.Errors[1])
	assert.Equal(t, "score skipped: upstream failure", res.Errors[2])
}

func TestRunPartialFailureKeepsOtherStage(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Scorer = scoreFunc(func(ctx context.Context, names []string, id string) ([]domain.ScoreSet, error) {
		c.score.Add(1)
		return nil, domain.ErrTimeout
	})

	res, err := o.Run(context.Background(), brakeRequest, 0)
	require.NoError(t, err)

	assert.True(t, res.Stages.Classify.Success)
	assert.Len(t, res.Stages.Classify.Output, 4)
	assert.False(t, res.Stages.Score.Success)
	assert.False(t, res.Valid)

	want := domain.NewComprehensiveValidator(domain.DefaultValidatorConfig()).
		Validate(res.Stages.Enrich.Output, res.Stages.Classify.Output, nil)
	assert.Equal(t, want.Quality, res.OverallQuality)
	assert.Equal(t, want.Confidence, res.OverallConfidence)
	assert.Positive(t, res.OverallQuality)
}

func TestRunRecoveredAttemptBecomesWarning(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, false)
	inner := okEnrich(&c.enrich)
	o.Enricher = enrichFunc(func(ctx context.Context, id, desc string) ([]domain.SubComponent, error) {
		if c.enrich.Load() == 0 {
			c.enrich.Add(1)
			return nil, domain.ErrTimeout
		}
		return inner(ctx, id, desc)
	})

	res, err := o.Run(context.Background(), brakeRequest, 2)
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.Stages.Enrich.Attempts)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, domain.KindTimeout, res.Failures[0].Kind)
	assert.Contains(t, res.Warnings, "enrich attempt 1/3 failed (TIMEOUT): stage timeout")
	assert.Equal(t, 1, res.Summary.Timeouts)
}

func TestRunEnforcesStageTimeoutWhenStageIgnoresContext(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Config.ScoreTimeout = 20 * time.Millisecond
	release := make(chan struct{})
	defer close(release)
	o.Scorer = scoreFunc(func(ctx context.Context, names []string, id string) ([]domain.ScoreSet, error) {
		c.score.Add(1)
		<-release
		return nil, nil
	})

	res, err := o.Run(context.Background(), brakeRequest, 1)
	require.NoError(t, err)

	assert.EqualValues(t, 2, c.score.Load())
	assert.False(t, res.Stages.Score.Success)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, domain.KindTimeout, res.Failures[0].Kind)
	assert.Equal(t, domain.KindTimeout, res.Failures[1].Kind)
}

func TestRunDeterministicErrorOrderUnderConcurrency(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Classifier = failing(&c.classify, errors.New("classify boom"))
	o.Scorer = scoreFunc(func(ctx context.Context, names []string, id string) ([]domain.ScoreSet, error) {
		return nil, errors.New("score boom")
	})

	res, err := o.Run(context.Background(), brakeRequest, 0)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(res.Errors), 2)
	assert.Equal(t, "classify failed after 1 attempt(s): classify boom", res.Errors[0])
	assert.Equal(t, "score failed after 1 attempt(s): score boom", res.Errors[1])
	require.Len(t, res.Failures, 2)
	assert.Equal(t, domain.StageClassify, res.Failures[0].Stage)
	assert.Equal(t, domain.StageScore, res.Failures[1].Stage)
	assert.Equal(t, domain.KindError, res.Failures[0].Kind)
}

func TestRunEmptyEnrichOutputIsStageSuccess(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Enricher = enrichFunc(func(ctx context.Context, id, desc string) ([]domain.SubComponent, error) {
		return nil, nil
	})

	res, err := o.Run(context.Background(), brakeRequest, 2)
	require.NoError(t, err)

	assert.True(t, res.Stages.Enrich.Success)
	assert.NotNil(t, res.Stages.Enrich.Output)
	assert.Empty(t, res.Stages.Enrich.Output)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Warnings, "[enrich] no components identified")
}

func TestRunNegativeMaxRetriesUsesConfig(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Config.MaxRetries = 1
	o.Classifier = failing(&c.classify, domain.ErrMalformed)

	_, err := o.Run(context.Background(), brakeRequest, -1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, c.classify.Load())
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)

	res, err := o.Run(context.Background(), domain.Request{Description: "Brake systems"}, 2)

	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Nil(t, res)
	assert.Zero(t, c.enrich.Load())
}

func TestRunStopsRetryingWhenCallerGivesUp(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Config.RetryBackoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	o.Enricher = enrichFunc(func(context.Context, string, string) ([]domain.SubComponent, error) {
		c.enrich.Add(1)
		cancel()
		return nil, domain.ErrUnreachable
	})

	res, err := o.Run(ctx, brakeRequest, 5)
	require.NoError(t, err)

	assert.EqualValues(t, 1, c.enrich.Load())
	assert.False(t, res.Stages.Enrich.Success)
	assert.Equal(t, 1, res.Stages.Enrich.Attempts)
}

func TestRunRecoversStagePanic(t *testing.T) {
	var c counters
	o := newOrchestrator(&c, true)
	o.Scorer = scoreFunc(func(context.Context, []string, string) ([]domain.ScoreSet, error) {
		panic("bad parser")
	})

	res, err := o.Run(context.Background(), brakeRequest, 0)
	require.NoError(t, err)
	assert.False(t, res.Stages.Score.Success)
	assert.Contains(t, res.Stages.Score.Error, "stage panic: bad parser")
}
