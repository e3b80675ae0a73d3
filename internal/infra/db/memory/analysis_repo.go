package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

// AnalysisRepository keeps records in process memory. Used when no database is configured.
type AnalysisRepository struct {
	mu      sync.RWMutex
	records map[domain.AnalysisID]domain.Record
}

func NewAnalysisRepository() *AnalysisRepository {
	return &AnalysisRepository{records: make(map[domain.AnalysisID]domain.Record)}
}

func (r *AnalysisRepository) Save(ctx context.Context, rec *domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.records[cp.ID] = cp
	return nil
}

func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Paginate returns records ordered by created_at desc, id desc
func (r *AnalysisRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	r.mu.RLock()
	all := make([]domain.Record, 0, len(r.records))
	for _, rec := range r.records {
		all = append(all, rec)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	offset := (page - 1) * pageSize
	if offset >= len(all) {
		return []*domain.Record{}, nil
	}
	end := min(offset+pageSize, len(all))
	out := make([]*domain.Record, 0, end-offset)
	for i := offset; i < end; i++ {
		rec := all[i]
		out = append(out, &rec)
	}
	return out, nil
}

// StageFailureRepository keeps failed attempts in memory.
type StageFailureRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  []domain.StageFailure
}

func NewStageFailureRepository() *StageFailureRepository {
	return &StageFailureRepository{}
}

func (r *StageFailureRepository) Save(ctx context.Context, f *domain.StageFailure) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *f
	cp.ID = r.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.items = append(r.items, cp)
	return nil
}

// ListByAnalysis returns failures newest first
func (r *StageFailureRepository) ListByAnalysis(ctx context.Context, id domain.AnalysisID, limit int) ([]*domain.StageFailure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.StageFailure{}
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if r.items[i].AnalysisID == id {
			f := r.items[i]
			out = append(out, &f)
		}
	}
	return out, nil
}
