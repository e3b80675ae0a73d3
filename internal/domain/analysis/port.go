package analysis

import "context"

// Enricher port: identify the sub-components of an HS code
type Enricher interface {
	Enrich(ctx context.Context, identifier, description string) ([]SubComponent, error)
}

// Classifier port: ICE/EV/SHARED classification for a batch of component names
type Classifier interface {
	Classify(ctx context.Context, names []string, identifier string) ([]Classification, error)
}

// Scorer port: six-dimension scoring for a batch of component names
type Scorer interface {
	Score(ctx context.Context, names []string, identifier string) ([]ScoreSet, error)
}

// Validator computes the quality verdict. A nil slice means the stage output is missing.
type Validator interface {
	Validate(enrich []SubComponent, classify []Classification, score []ScoreSet) Verdict
}

// ResultStore persists the full result document and returns its location.
type ResultStore interface {
	Save(ctx context.Context, r *Result) (string, error)
}

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id AnalysisID) (*Record, error)
	Paginate(ctx context.Context, page, pageSize int) ([]*Record, error)
}

// FailureRepository persists failed stage attempts.
type FailureRepository interface {
	Save(ctx context.Context, f *StageFailure) error
	ListByAnalysis(ctx context.Context, id AnalysisID, limit int) ([]*StageFailure, error)
}
