// Package stages adapts an ai.Client into the three pipeline stages.
package stages

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/hs-analyzer/internal/domain/ai"
	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/hs-analyzer/internal/infra/ai/prompt"
)

// Enricher asks the model for the sub-components of an HS code.
type Enricher struct {
	Client      ai.Client
	Components  int
	Temperature float32
}

func (e *Enricher) Enrich(ctx context.Context, identifier, description string) ([]domain.SubComponent, error) {
	raw, err := e.Client.Complete(ctx, ai.Request{
		System:      prompt.EnrichSystemPrompt(e.Components),
		User:        prompt.EnrichUserPrompt(identifier, description),
		Temperature: e.Temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", identifier, err)
	}
	out, err := prompt.ParseComponents(raw)
	if err != nil {
		return nil, fmt.Errorf("enrich %s: %w", identifier, err)
	}
	return out, nil
}

type Classifier struct {
	Client      ai.Client
	Temperature float32
}

func (c *Classifier) Classify(ctx context.Context, names []string, identifier string) ([]domain.Classification, error) {
	if len(names) == 0 {
		return []domain.Classification{}, nil
	}
	raw, err := c.Client.Complete(ctx, ai.Request{
		System:      prompt.ClassifySystemPrompt(),
		User:        prompt.ClassifyUserPrompt(names, identifier),
		Temperature: c.Temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", identifier, err)
	}
	out, err := prompt.ParseClassifications(raw, names)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", identifier, err)
	}
	return out, nil
}

type Scorer struct {
	Client      ai.Client
	Temperature float32
}

func (s *Scorer) Score(ctx context.Context, names []string, identifier string) ([]domain.ScoreSet, error) {
	if len(names) == 0 {
		return []domain.ScoreSet{}, nil
	}
	raw, err := s.Client.Complete(ctx, ai.Request{
		System:      prompt.ScoreSystemPrompt(),
		User:        prompt.ScoreUserPrompt(names, identifier),
		Temperature: s.Temperature,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", identifier, err)
	}
	out, err := prompt.ParseScores(raw, names)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", identifier, err)
	}
	return out, nil
}

var (
	_ domain.Enricher   = (*Enricher)(nil)
	_ domain.Classifier = (*Classifier)(nil)
	_ domain.Scorer     = (*Scorer)(nil)
)
