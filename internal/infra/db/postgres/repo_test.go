package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

func TestAnalysisRepositorySaveUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewAnalysisRepository(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec("INSERT INTO hs_analyses (.+) ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs("id-1", "8708.30", "", false, 40, "MEDIUM", int64(10), "file:///r.json", "{}", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Save(context.Background(), &domain.Record{
		ID: "id-1", Identifier: "8708.30", OverallQuality: 40, OverallConfidence: domain.ConfidenceMedium,
		ProcessingMS: 10, ResultURL: "file:///r.json", CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalysisRepositoryGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT (.+) FROM hs_analyses WHERE id=\\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewAnalysisRepository(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalysisRepositoryPaginateOffset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM hs_analyses ORDER BY created_at DESC, id DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "identifier", "description", "valid", "overall_quality", "overall_confidence",
			"processing_ms", "result_url", "result_json", "created_at",
		}).AddRow("a", "8708.30", "Brake systems", true, 92, "HIGH", 1200, "-", "", now))

	recs, err := NewAnalysisRepository(db).Paginate(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Valid)
	assert.Empty(t, recs[0].ResultURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStageFailureRepositoryReturningID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewStageFailureRepository(db)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO hs_stage_failures (.+) RETURNING id").
		WithArgs("id-1", "8708.30", "enrich", 1, "MALFORMED", "no components in response", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	f := &domain.StageFailure{
		AnalysisID: "id-1", Identifier: "8708.30", Stage: domain.StageEnrich, Attempt: 1,
		Kind: domain.KindMalformed, Message: "no components in response", CreatedAt: at,
	}
	require.NoError(t, repo.Save(context.Background(), f))
	assert.EqualValues(t, 42, f.ID)

	mock.ExpectQuery("SELECT (.+) FROM hs_stage_failures WHERE analysis_id = \\$1").
		WithArgs("id-1", 5).
		WillReturnError(sql.ErrConnDone)

	_, err = repo.ListByAnalysis(context.Background(), "id-1", 5)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
