package mysql

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

// Save insert/update satu record analisis
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Record) error {
	const q = `
INSERT INTO hs_analyses
  (id, identifier, description, valid, overall_quality, overall_confidence,
   processing_ms, result_url, result_json, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  valid=VALUES(valid), overall_quality=VALUES(overall_quality),
  overall_confidence=VALUES(overall_confidence), processing_ms=VALUES(processing_ms),
  result_url=VALUES(result_url), result_json=VALUES(result_json);
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

// Get by ID
func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Record, error) {
	const q = `
SELECT id, identifier, description, valid, overall_quality, overall_confidence,
       processing_ms, result_url, result_json, created_at
FROM hs_analyses
WHERE id=? LIMIT 1;
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

	// result_json sengaja tidak diambil di listing
	const q = `
SELECT id, identifier, description, valid, overall_quality, overall_confidence,
       processing_ms, result_url, '' AS result_json, created_at
FROM hs_analyses
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var a domain.Record
	var created time.Time
	if err := row.Scan(
		&a.ID, &a.Identifier, &a.Description, &a.Valid, &a.OverallQuality, &a.OverallConfidence,
		&a.ProcessingMS, &a.ResultURL, &a.ResultJSON, &created,
	); err != nil {
		return nil, err
	}
	a.ResultURL = dashToEmpty(a.ResultURL)
	a.CreatedAt = created
	return &a, nil
}
