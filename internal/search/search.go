// Package search defines the search vocabulary for sift select_rows
// requests: keyword, semantic and concept searches anchored to a text path.
//
// Searches are a closed tagged variant. Each kind contributes derived schema
// fields (scores, matched spans) through the schema resolver and, for
// semantic and concept searches, an implicit descending relevance sort.
package search

import (
	"errors"
	"fmt"

	"github.com/siftdata/sift/internal/schema"
)

// Type discriminates the search variants.
type Type string

const (
	TypeKeyword  Type = "keyword"
	TypeSemantic Type = "semantic"
	TypeConcept  Type = "concept"
)

var (
	ErrUnknownType      = errors.New("unknown search type")
	ErrQueryRequired    = errors.New("search requires a query string")
	ErrEmbeddingMissing = errors.New("search requires an embedding name")
	ErrConceptMissing   = errors.New("concept search requires concept_namespace and concept_name")
	ErrNotText          = errors.New("search path must resolve to a string field")
)

// IsValid returns true if the type is a recognized search variant.
func (t Type) IsValid() bool {
	switch t {
	case TypeKeyword, TypeSemantic, TypeConcept:
		return true
	default:
		return false
	}
}

// Search is one search clause of a select_rows request.
type Search struct {
	Path schema.Path `json:"path"`
	Type Type        `json:"type"`

	// Keyword and semantic searches carry the literal query string.
	Query string `json:"query,omitempty"`

	// Semantic and concept searches rank through a named embedding.
	Embedding string `json:"embedding,omitempty"`

	// Concept searches name a trained concept model.
	ConceptNamespace string `json:"concept_namespace,omitempty"`
	ConceptName      string `json:"concept_name,omitempty"`

	// Stem enables stemmed token matching for keyword searches.
	Stem bool `json:"stem,omitempty"`
}

// Validate checks the payload against its variant's requirements and the
// anchored field. field may carry one repetition level (list of strings).
func (s *Search) Validate(field *schema.Field) error {
	if err := schema.ValidatePath(s.Path); err != nil {
		return err
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
	if field == nil {
		return fmt.Errorf("%w: %q", schema.ErrFieldNotFound, s.Path.String())
	}
	dtype := field.DType
	if dtype == schema.DTypeList && field.RepeatedField != nil {
		dtype = field.RepeatedField.DType
	}
	if dtype != schema.DTypeString {
		return fmt.Errorf("%w: %q has dtype %q", ErrNotText, s.Path.String(), dtype)
	}

	switch s.Type {
	case TypeKeyword:
		if s.Query == "" {
			return ErrQueryRequired
		}
	case TypeSemantic:
		if s.Query == "" {
			return ErrQueryRequired
		}
		if s.Embedding == "" {
			return ErrEmbeddingMissing
		}
	case TypeConcept:
		if s.ConceptNamespace == "" || s.ConceptName == "" {
			return ErrConceptMissing
		}
		if s.Embedding == "" {
			return ErrEmbeddingMissing
		}
	}
	return nil
}

// ResultName returns the deterministic name of the derived field this search
// grafts next to its anchored path. Distinct searches get distinct names;
// identical searches collapse onto the same field.
func (s *Search) ResultName() string {
	switch s.Type {
	case TypeKeyword:
		return fmt.Sprintf("keyword_search(%s)", s.Query)
	case TypeSemantic:
		return fmt.Sprintf("semantic_similarity(%s)", s.Embedding)
	case TypeConcept:
		return fmt.Sprintf("concept_score(%s/%s,%s)", s.ConceptNamespace, s.ConceptName, s.Embedding)
	default:
		return ""
	}
}

// ResultPath returns the full path of the derived field.
func (s *Search) ResultPath() schema.Path {
	return s.Path.Child(s.ResultName())
}

// ResultField returns the schema of the derived field: a float32 score for
// semantic and concept searches, a list of matched spans for keyword.
func (s *Search) ResultField() *schema.Field {
	info := &schema.SignalInfo{Name: string(s.Type), Config: s.provenance()}
	switch s.Type {
	case TypeKeyword:
		return &schema.Field{
			DType:         schema.DTypeList,
			RepeatedField: schema.SpanField(),
			Signal:        info,
			SignalRoot:    true,
			DerivedFrom:   []schema.Path{s.Path.Clone()},
		}
	case TypeSemantic, TypeConcept:
		return &schema.Field{
			DType:       schema.DTypeFloat32,
			Signal:      info,
			SignalRoot:  true,
			DerivedFrom: []schema.Path{s.Path.Clone()},
		}
	default:
		return nil
	}
}

func (s *Search) provenance() map[string]any {
	cfg := map[string]any{}
	if s.Query != "" {
		cfg["query"] = s.Query
	}
	if s.Embedding != "" {
		cfg["embedding"] = s.Embedding
	}
	if s.Type == TypeConcept {
		cfg["concept_namespace"] = s.ConceptNamespace
		cfg["concept_name"] = s.ConceptName
	}
	if s.Stem {
		cfg["stem"] = true
	}
	return cfg
}

// RanksRows returns true if the search imposes a relevance order.
func (s *Search) RanksRows() bool {
	return s.Type == TypeSemantic || s.Type == TypeConcept
}
