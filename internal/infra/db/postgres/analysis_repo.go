package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save inserts or updates an analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Record) error {
	const q = `
INSERT INTO hs_analyses
  (id, identifier, description, valid, overall_quality, overall_confidence,
   processing_ms, result_url, result_json, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  valid=EXCLUDED.valid,
  overall_quality=EXCLUDED.overall_quality,
  overall_confidence=EXCLUDED.overall_confidence,
  processing_ms=EXCLUDED.processing_ms,
  result_url=EXCLUDED.result_url,
  result_json=EXCLUDED.result_json;
`
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	confidence := string(a.OverallConfidence)
	if confidence == "" {
		confidence = string(domain.ConfidenceLow)
	}
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.Identifier, a.Description, a.Valid, a.OverallQuality, confidence,
		a.ProcessingMS, stringOrDash(a.ResultURL), jsonOrEmpty(a.ResultJSON), createdAt,
	)
	if err != nil {
		return fmt.Errorf("save analysis %s: %w", a.ID, err)
	}
	return nil
}

func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Record, error) {
	const q = `
SELECT id, identifier, description, valid, overall_quality, overall_confidence,
       processing_ms, result_url, result_json::text, created_at
FROM hs_analyses
WHERE id=$1 LIMIT 1;
`
	a, err := scanRecord(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", id, err)
	}
	return a, nil
}

// Paginate returns a page of analysis records ordered by created_at desc
func (r *AnalysisRepository) Paginate(ctx context.Context, page, pageSize int) ([]*domain.Record, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, identifier, description, valid, overall_quality, overall_confidence,
       processing_ms, result_url, '' AS result_json, created_at
FROM hs_analyses
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		a, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanRecord(row interface{ Scan(dest ...any) error }) (*domain.Record, error) {
	var a domain.Record
	if err := row.Scan(
		&a.ID, &a.Identifier, &a.Description, &a.Valid, &a.OverallQuality, &a.OverallConfidence,
		&a.ProcessingMS, &a.ResultURL, &a.ResultJSON, &a.CreatedAt,
	); err != nil {
		return nil, err
	}
	a.ResultURL = dashToEmpty(a.ResultURL)
	return &a, nil
}
