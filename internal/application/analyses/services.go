package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

// Runner runs one analysis; implemented by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req domain.Request, maxRetries int) (*domain.Result, error)
}

// Metrics receives run counters; implemented by middleware.Recorder.
type Metrics interface {
	AnalysisStarted()
	AnalysisFinished(valid bool)
	StageFailed(stage domain.Stage)
}

// Service implements use-cases untuk analisis HS code
// Service is designed to be used concurrently and is thread-safe
type Service struct {
	Runner   Runner
	Repo     domain.Repository
	Failures domain.FailureRepository
	Results  domain.ResultStore
	Metrics  Metrics
	Log      *zap.Logger

	// BatchParallelism caps concurrent runs inside AnalyzeBatch (<= 0 means 4).
	BatchParallelism int
}

//
// ==== USE CASES ====
//

// Command untuk trigger analisis
type AnalyzeCommand struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
	// MaxRetries overrides the configured retry budget when set.
	MaxRetries *int `json:"max_retries,omitempty"`
}

// BatchItem is the outcome of one command in a batch.
type BatchItem struct {
	Index  int            `json:"index"`
	Result *domain.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Analyze jalankan pipeline → simpan dokumen hasil → index ke repo
func (s *Service) Analyze(ctx context.Context, cmd AnalyzeCommand) (*domain.Result, error) {
	req := domain.Request{
		Identifier:  strings.TrimSpace(cmd.Identifier),
		Description: strings.TrimSpace(cmd.Description),
	}
	retries := -1
	if cmd.MaxRetries != nil && *cmd.MaxRetries >= 0 {
		retries = *cmd.MaxRetries
	}

	if s.Metrics != nil {
		s.Metrics.AnalysisStarted()
	}
	res, err := s.Runner.Run(ctx, req, retries)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.AnalysisFinished(false)
		}
		return nil, err
	}
	if s.Metrics != nil {
		for _, f := range res.Failures {
			s.Metrics.StageFailed(f.Stage)
		}
		s.Metrics.AnalysisFinished(res.Valid)
	}

	// persistence is best effort; the caller still gets the result
	s.persist(context.WithoutCancel(ctx), res)
	return res, nil
}

// AnalyzeBatch runs independent analyses concurrently. Invalid items are
// reported per item and do not stop the batch.
func (s *Service) AnalyzeBatch(ctx context.Context, cmds []AnalyzeCommand) []BatchItem {
	out := make([]BatchItem, len(cmds))
	limit := s.BatchParallelism
	if limit <= 0 {
		limit = 4
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, cmd := range cmds {
		i, cmd := i, cmd
		g.Go(func() error {
			item := BatchItem{Index: i}
			res, err := s.Analyze(ctx, cmd)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Result = res
			}
			out[i] = item
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) persist(ctx context.Context, res *domain.Result) {
	log := s.logger().With(zap.String("analysis_id", string(res.ID)))

	if s.Results != nil {
		url, err := s.Results.Save(ctx, res)
		if err != nil {
			log.Error("result store save failed", zap.Error(err))
		} else {
			res.ResultURL = url
		}
	}

	if s.Repo != nil {
		body, err := json.Marshal(res)
		if err != nil {
			log.Error("marshal result failed", zap.Error(err))
			body = []byte("{}")
		}
		rec := &domain.Record{
			ID:                res.ID,
			Identifier:        res.Request.Identifier,
			Description:       res.Request.Description,
			Valid:             res.Valid,
			OverallQuality:    res.OverallQuality,
			OverallConfidence: res.OverallConfidence,
			ProcessingMS:      int64(res.ProcessingTime * 1000),
			ResultURL:         res.ResultURL,
			ResultJSON:        string(body),
			CreatedAt:         res.Timestamp,
		}
		if err := s.Repo.Save(ctx, rec); err != nil {
			log.Error("repository save failed", zap.Error(err))
		}
	}

	if s.Failures != nil {
		for _, f := range res.Failures {
			sf := &domain.StageFailure{
				AnalysisID: res.ID,
				Identifier: res.Request.Identifier,
				Stage:      f.Stage,
				Attempt:    f.Attempt,
				Kind:       f.Kind,
				Message:    f.Error,
				CreatedAt:  f.Timestamp,
			}
			if err := s.Failures.Save(ctx, sf); err != nil {
				log.Error("stage failure save failed", zap.Error(err), zap.String("stage", string(f.Stage)))
			}
		}
	}
}

// Get ambil 1 record by id
func (s *Service) Get(ctx context.Context, id domain.AnalysisID) (*domain.Record, error) {
	if s.Repo == nil {
		return nil, domain.ErrNotFound
	}
	return s.Repo.Get(ctx, id)
}

// GetResult returns the full stored result document of a run.
func (s *Service) GetResult(ctx context.Context, id domain.AnalysisID) (*domain.Result, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.ResultJSON) == "" {
		return nil, fmt.Errorf("analysis %s has no stored result: %w", id, domain.ErrNotFound)
	}
	var res domain.Result
	if err := json.Unmarshal([]byte(rec.ResultJSON), &res); err != nil {
		return nil, fmt.Errorf("decode stored result %s: %w", id, err)
	}
	return &res, nil
}

// List returns a page of records, newest first
func (s *Service) List(ctx context.Context, page, pageSize int) (domain.PaginatedRecords, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	out := domain.PaginatedRecords{Page: page, PageSize: pageSize, Data: []*domain.Record{}}
	if s.Repo == nil {
		return out, nil
	}
	recs, err := s.Repo.Paginate(ctx, page, pageSize)
	if err != nil {
		return out, err
	}
	if recs != nil {
		out.Data = recs
	}
	return out, nil
}

// StageFailures lists the failed attempts recorded for a run.
func (s *Service) StageFailures(ctx context.Context, id domain.AnalysisID, limit int) ([]*domain.StageFailure, error) {
	if s.Failures == nil {
		return nil, errors.New("stage failure repository not configured")
	}
	return s.Failures.ListByAnalysis(ctx, id, limit)
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
