package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

type StageFailureRepository struct {
	db *sql.DB
}

func NewStageFailureRepository(db *sql.DB) *StageFailureRepository {
	return &StageFailureRepository{db: db}
}

func (r *StageFailureRepository) Save(ctx context.Context, f *domain.StageFailure) error {
	const q = `
INSERT INTO hs_stage_failures
  (analysis_id, identifier, stage, attempt, kind, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id
`
	msg := f.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx, q,
		f.AnalysisID, stringOrDash(f.Identifier), string(f.Stage), f.Attempt,
		stringOrDash(string(f.Kind)), msg, created,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("save stage failure: %w", err)
	}
	return nil
}

func (r *StageFailureRepository) ListByAnalysis(ctx context.Context, id domain.AnalysisID, limit int) ([]*domain.StageFailure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, analysis_id, identifier, stage, attempt, kind, message, created_at
FROM hs_stage_failures
WHERE analysis_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, id, limit)
	if err != nil {
		return nil, fmt.Errorf("querying stage failures: %w", err)
	}
	defer rows.Close()

	var out []*domain.StageFailure
	for rows.Next() {
		var f domain.StageFailure
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.Identifier, &f.Stage, &f.Attempt, &f.Kind, &f.Message, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
