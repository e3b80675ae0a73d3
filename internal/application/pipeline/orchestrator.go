package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/hs-analyzer/internal/application"
	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

// Config is the per-orchestrator run policy. Passed at construction, never global.
type Config struct {
	MaxRetries       int
	RetryBackoff     time.Duration
	ConcurrentStages bool
	EnrichTimeout    time.Duration
	ClassifyTimeout  time.Duration
	ScoreTimeout     time.Duration
}

func (c Config) timeoutFor(stage domain.Stage) time.Duration {
	switch stage {
	case domain.StageEnrich:
		return c.EnrichTimeout
	case domain.StageClassify:
		return c.ClassifyTimeout
	case domain.StageScore:
		return c.ScoreTimeout
	}
	return 0
}

// Orchestrator runs enrich → classify → score → validate for one request.
// Safe for concurrent use; each Run owns its own Result.
type Orchestrator struct {
	Enricher   domain.Enricher
	Classifier domain.Classifier
	Scorer     domain.Scorer
	Validator  domain.Validator
	Clock      application.Clock
	Config     Config
	Log        *zap.Logger
}

var errNotConfigured = errors.New("pipeline: enricher, classifier and scorer are required")

// Run executes one analysis. maxRetries < 0 uses Config.MaxRetries.
// The returned error is only set for precondition violations; stage failures
// are recorded in the Result.
func (o *Orchestrator) Run(ctx context.Context, req domain.Request, maxRetries int) (*domain.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if o.Enricher == nil || o.Classifier == nil || o.Scorer == nil {
		return nil, errNotConfigured
	}
	if maxRetries < 0 {
		maxRetries = o.Config.MaxRetries
	}

	start := time.Now()
	res := &domain.Result{
		ID:        domain.AnalysisID(uuid.NewString()),
		Timestamp: o.now(),
		Request:   req,
		Errors:    []string{},
		Warnings:  []string{},
		Failures:  []domain.AttemptFailure{},
	}
	log := o.logger().With(zap.String("analysis_id", string(res.ID)), zap.String("identifier", req.Identifier))
	log.Info("analysis started", zap.Int("max_retries", maxRetries))

	enrich := runStage(ctx, o, log, domain.StageEnrich, maxRetries, func(ctx context.Context) ([]domain.SubComponent, error) {
		return o.Enricher.Enrich(ctx, req.Identifier, req.Description)
	})
	res.Stages.Enrich = enrich.result

	classify := stageOutcome[domain.Classification]{}
	score := stageOutcome[domain.ScoreSet]{}
	if enrich.result.Success {
		names := componentNames(enrich.result.Output)
		runClassify := func() {
			classify = runStage(ctx, o, log, domain.StageClassify, maxRetries, func(ctx context.Context) ([]domain.Classification, error) {
				return o.Classifier.Classify(ctx, slices.Clone(names), req.Identifier)
			})
		}
		runScore := func() {
			score = runStage(ctx, o, log, domain.StageScore, maxRetries, func(ctx context.Context) ([]domain.ScoreSet, error) {
				return o.Scorer.Score(ctx, slices.Clone(names), req.Identifier)
			})
		}
		if o.Config.ConcurrentStages {
			var g errgroup.Group
			g.Go(func() error { runClassify(); return nil })
			g.Go(func() error { runScore(); return nil })
			_ = g.Wait()
		} else {
			runClassify()
			runScore()
		}
	} else {
		classify = skipped[domain.Classification](domain.StageClassify, o.now())
		score = skipped[domain.ScoreSet](domain.StageScore, o.now())
	}
	res.Stages.Classify = classify.result
	res.Stages.Score = score.result

	// merge in fixed stage order so concurrent runs stay deterministic
	for _, rec := range []stageRecord{enrich.record, classify.record, score.record} {
		res.Failures = append(res.Failures, rec.failures...)
		res.Errors = append(res.Errors, rec.errors...)
		res.Warnings = append(res.Warnings, rec.warnings...)
	}

	verdict := o.validator().Validate(
		outputOrNil(res.Stages.Enrich),
		outputOrNil(res.Stages.Classify),
		outputOrNil(res.Stages.Score),
	)
	for _, is := range verdict.Issues {
		if is.Severity == domain.SeverityHard {
			res.Errors = append(res.Errors, is.String())
		} else {
			res.Warnings = append(res.Warnings, is.String())
		}
	}

	res.Validation = verdict
	res.OverallQuality = verdict.Quality
	res.OverallConfidence = verdict.Confidence
	res.Valid = verdict.Valid && res.Stages.AllSucceeded()
	res.ProcessingTime = time.Since(start).Seconds()
	res.Summary = domain.Summarize(res)

	log.Info("analysis finished",
		zap.Bool("valid", res.Valid),
		zap.Int("quality", res.OverallQuality),
		zap.String("confidence", string(res.OverallConfidence)),
		zap.Int("errors", len(res.Errors)),
		zap.Float64("processing_time", res.ProcessingTime),
	)
	return res, nil
}

// stageRecord collects the messages one stage contributes to the result
type stageRecord struct {
	failures []domain.AttemptFailure
	errors   []string
	warnings []string
}

type stageOutcome[E any] struct {
	result domain.StageResult[[]E]
	record stageRecord
}

// runStage calls a stage with up to 1+maxRetries attempts. Every failure kind
// consumes an attempt; only a done caller context stops retrying early.
func runStage[E any](ctx context.Context, o *Orchestrator, log *zap.Logger, stage domain.Stage, maxRetries int, call func(context.Context) ([]E, error)) stageOutcome[E] {
	var out stageOutcome[E]
	total := maxRetries + 1
	timeout := o.Config.timeoutFor(stage)

	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		if attempt > 1 {
			if err := o.backoff(ctx, attempt-1); err != nil {
				lastErr = err
				break
			}
		}
		out.result.Attempts = attempt

		got, err := callWithTimeout(ctx, timeout, call)
		if err == nil {
			if got == nil {
				got = make([]E, 0)
			}
			out.result.Success = true
			out.result.Output = got
			// earlier failed attempts become warnings once the stage recovers
			for _, f := range out.record.failures {
				out.record.warnings = append(out.record.warnings,
					fmt.Sprintf("%s attempt %d/%d failed (%s): %s", stage, f.Attempt, total, f.Kind, f.Error))
			}
			return out
		}

		lastErr = err
		kind := domain.KindOf(err)
		out.record.failures = append(out.record.failures, domain.AttemptFailure{
			Stage:     stage,
			Attempt:   attempt,
			Kind:      kind,
			Error:     err.Error(),
			Timestamp: o.now(),
		})
		log.Warn("stage attempt failed",
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Int("attempts_total", total),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	out.result.Success = false
	out.result.Error = lastErr.Error()
	out.record.errors = append(out.record.errors,
		fmt.Sprintf("%s failed after %d attempt(s): %v", stage, out.result.Attempts, lastErr))
	log.Error("stage failed permanently", zap.String("stage", string(stage)), zap.Int("attempts", out.result.Attempts), zap.Error(lastErr))
	return out
}

func skipped[E any](stage domain.Stage, at time.Time) stageOutcome[E] {
	msg := domain.ErrSkipped.Error()
	return stageOutcome[E]{
		result: domain.StageResult[[]E]{Success: false, Error: msg},
		record: stageRecord{
			failures: []domain.AttemptFailure{{Stage: stage, Kind: domain.KindSkipped, Error: msg, Timestamp: at}},
			errors:   []string{fmt.Sprintf("%s %s", stage, msg)},
		},
	}
}

// callWithTimeout enforces the stage deadline even when the stage ignores ctx.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{zero, fmt.Errorf("stage panic: %v", r)}
			}
		}()
		v, err := call(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(o.err, domain.ErrTimeout) {
			o.err = fmt.Errorf("%w: %v", domain.ErrTimeout, o.err)
		}
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", domain.ErrTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

func (o *Orchestrator) backoff(ctx context.Context, retry int) error {
	d := o.Config.RetryBackoff * time.Duration(retry)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock.Now()
	}
	return time.Now()
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Log != nil {
		return o.Log
	}
	return zap.NewNop()
}

func (o *Orchestrator) validator() domain.Validator {
	if o.Validator != nil {
		return o.Validator
	}
	return domain.NewComprehensiveValidator(domain.DefaultValidatorConfig())
}

func componentNames(components []domain.SubComponent) []string {
	names := make([]string, 0, len(components))
	for _, c := range components {
		if n := strings.TrimSpace(c.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// outputOrNil hides the output of failed stages from the validator.
func outputOrNil[E any](r domain.StageResult[[]E]) []E {
	if !r.Success {
		return nil
	}
	return r.Output
}
