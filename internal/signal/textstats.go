package signal

import (
	"context"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"

	"github.com/siftdata/sift/internal/schema"
)

// TextStatisticsName is the registry name of the text statistics signal.
const TextStatisticsName = "text_statistics"

// TextStatistics computes basic per-value text metrics: character count,
// token count, and the number of distinct word stems.
type TextStatistics struct{}

// NewTextStatistics is the factory for the text statistics signal.
func NewTextStatistics(config map[string]any) (Signal, error) {
	return &TextStatistics{}, nil
}

func (s *TextStatistics) Name() string { return TextStatisticsName }

func (s *TextStatistics) OutputSchema(input schema.DType) (*schema.Field, error) {
	if err := requireText(s.Name(), input); err != nil {
		return nil, err
	}
	return &schema.Field{
		DType: schema.DTypeStruct,
		Fields: schema.FieldList{
			{Name: "num_characters", Field: &schema.Field{DType: schema.DTypeInt64}},
			{Name: "num_tokens", Field: &schema.Field{DType: schema.DTypeInt64}},
			{Name: "num_distinct_stems", Field: &schema.Field{DType: schema.DTypeInt64}},
		},
	}, nil
}

func (s *TextStatistics) Compute(ctx context.Context, values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, ok := v.(string)
		if !ok {
			continue
		}
		tokens := splitTokens(text)
		stems := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			stem, err := snowball.Stem(tok, "english", true)
			if err != nil {
				stem = strings.ToLower(tok)
			}
			stems[stem] = struct{}{}
		}
		out[i] = map[string]any{
			"num_characters":     int64(len([]rune(text))),
			"num_tokens":         int64(len(tokens)),
			"num_distinct_stems": int64(len(stems)),
		}
	}
	return out, nil
}

func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
