package analysis

import (
	"strings"
	"time"
)

// AnalysisID identifier type
type AnalysisID string

// Stage names one pipeline step
type Stage string

const (
	StageEnrich   Stage = "enrich"
	StageClassify Stage = "classify"
	StageScore    Stage = "score"

	// StageIntegration is only used by the validator for cross-stage checks.
	StageIntegration Stage = "integration"
)

// Category enum untuk hasil klasifikasi drivetrain
type Category string

const (
	CategoryICEOnly Category = "ICE_ONLY"
	CategoryEVOnly  Category = "EV_ONLY"
	CategoryShared  Category = "SHARED"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryICEOnly, CategoryEVOnly, CategoryShared:
		return true
	}
	return false
}

// Confidence tier
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Request is the immutable input of one run.
type Request struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
}

// Validate checks the run preconditions.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return ErrInvalidRequest
	}
	return nil
}

// SubComponent produced by the enrich stage
type SubComponent struct {
	Name      string `json:"name"`
	Function  string `json:"function"`
	Subsystem string `json:"subsystem"`
}

// Classification produced by the classify stage
type Classification struct {
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// ScoreSet produced by the score stage, six dimensions 0-100
type ScoreSet struct {
	Name          string `json:"name"`
	Tech          int    `json:"tech"`
	Manufacturing int    `json:"manufacturing"`
	SupplyChain   int    `json:"supply_chain"`
	Demand        int    `json:"demand"`
	Value         int    `json:"value"`
	Regulatory    int    `json:"regulatory"`
}

// Dimension is one named axis of a ScoreSet.
type Dimension struct {
	Name  string
	Value int
}

// Dimensions returns the six scores in a fixed order.
func (s ScoreSet) Dimensions() []Dimension {
	return []Dimension{
		{"tech", s.Tech},
		{"manufacturing", s.Manufacturing},
		{"supply_chain", s.SupplyChain},
		{"demand", s.Demand},
		{"value", s.Value},
		{"regulatory", s.Regulatory},
	}
}

// StageResult wraps the outcome of one stage including retry count.
type StageResult[T any] struct {
	Success  bool   `json:"success"`
	Output   T      `json:"output"`
	Error    string `json:"error,omitempty"`
	Attempts int    `json:"attempts"`
}

// StageResults groups the three pipeline stages.
type StageResults struct {
	Enrich   StageResult[[]SubComponent]   `json:"enrich"`
	Classify StageResult[[]Classification] `json:"classify"`
	Score    StageResult[[]ScoreSet]       `json:"score"`
}

// AllSucceeded reports whether every stage completed.
func (s StageResults) AllSucceeded() bool {
	return s.Enrich.Success && s.Classify.Success && s.Score.Success
}

// AttemptFailure records one failed stage attempt.
type AttemptFailure struct {
	Stage     Stage     `json:"stage"`
	Attempt   int       `json:"attempt"`
	Kind      ErrorKind `json:"kind"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the aggregate record of one run (aggregate root).
type Result struct {
	ID                AnalysisID       `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	Request           Request          `json:"request"`
	Stages            StageResults     `json:"stages"`
	Validation        Verdict          `json:"validation"`
	OverallQuality    int              `json:"overall_quality"`
	OverallConfidence Confidence       `json:"overall_confidence"`
	Valid             bool             `json:"valid"`
	Errors            []string         `json:"errors"`
	Warnings          []string         `json:"warnings"`
	Failures          []AttemptFailure `json:"failures"`
	ProcessingTime    float64          `json:"processing_time"`
	Summary           Summary          `json:"summary"`
	ResultURL         string           `json:"result_url,omitempty"`
}

// Record is the indexed row kept by the Repository.
type Record struct {
	ID                AnalysisID `json:"id"`
	Identifier        string     `json:"identifier"`
	Description       string     `json:"description"`
	Valid             bool       `json:"valid"`
	OverallQuality    int        `json:"overall_quality"`
	OverallConfidence Confidence `json:"overall_confidence"`
	ProcessingMS      int64      `json:"processing_ms"`
	ResultURL         string     `json:"result_url,omitempty"`
	ResultJSON        string     `json:"result_json,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// StageFailure is a persisted AttemptFailure tied to its run.
type StageFailure struct {
	ID         int64      `json:"id"`
	AnalysisID AnalysisID `json:"analysis_id"`
	Identifier string     `json:"identifier"`
	Stage      Stage      `json:"stage"`
	Attempt    int        `json:"attempt"`
	Kind       ErrorKind  `json:"kind"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PaginatedRecords represents a page of records with metadata
type PaginatedRecords struct {
	Data     []*Record `json:"data"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
}
