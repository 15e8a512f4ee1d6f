package signal

import (
	"context"
	"fmt"

	"github.com/siftdata/sift/internal/concept"
	"github.com/siftdata/sift/internal/embedding"
	"github.com/siftdata/sift/internal/schema"
)

// ConceptScoreName is the registry name of the concept scoring signal.
const ConceptScoreName = "concept_score"

// ConceptScore scores text values against a trained concept model. The
// signal embeds each value with the configured embedder, so it works on raw
// text without a precomputed index.
type ConceptScore struct {
	concepts  *concept.Registry
	embedders *embedding.Registry

	namespace string
	name      string
	embedName string
}

// NewConceptScoreFactory builds the concept_score factory bound to the
// application's concept and embedder registries. Config keys: namespace,
// concept_name, embedding.
func NewConceptScoreFactory(concepts *concept.Registry, embedders *embedding.Registry) Factory {
	return func(config map[string]any) (Signal, error) {
		s := &ConceptScore{concepts: concepts, embedders: embedders}
		var ok bool
		if s.namespace, ok = config["namespace"].(string); !ok || s.namespace == "" {
			return nil, fmt.Errorf("%w: concept_score requires a namespace", ErrBadConfig)
		}
		if s.name, ok = config["concept_name"].(string); !ok || s.name == "" {
			return nil, fmt.Errorf("%w: concept_score requires a concept_name", ErrBadConfig)
		}
		if s.embedName, ok = config["embedding"].(string); !ok || s.embedName == "" {
			return nil, fmt.Errorf("%w: concept_score requires an embedding", ErrBadConfig)
		}
		return s, nil
	}
}

func (s *ConceptScore) Name() string { return ConceptScoreName }

func (s *ConceptScore) OutputSchema(input schema.DType) (*schema.Field, error) {
	if err := requireText(s.Name(), input); err != nil {
		return nil, err
	}
	return &schema.Field{DType: schema.DTypeFloat32}, nil
}

func (s *ConceptScore) Compute(ctx context.Context, values []any) ([]any, error) {
	embedder, err := s.embedders.Get(s.embedName)
	if err != nil {
		return nil, err
	}
	model, err := s.concepts.Model(ctx, s.namespace, s.name, embedder)
	if err != nil {
		return nil, err
	}

	// Embed only the rows that carry text, in one batch.
	texts := make([]string, 0, len(values))
	rows := make([]int, 0, len(values))
	for i, v := range values {
		if text, ok := v.(string); ok {
			texts = append(texts, text)
			rows = append(rows, i)
		}
	}
	out := make([]any, len(values))
	if len(texts) == 0 {
		return out, nil
	}
	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for j, i := range rows {
		out[i] = model.Score(vecs[j])
	}
	return out, nil
}
