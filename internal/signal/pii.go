package signal

import (
	"context"
	"regexp"

	"github.com/siftdata/sift/internal/schema"
)

// PIIName is the registry name of the PII detection signal.
const PIIName = "pii"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d{1,3}[ .\-]?\(?\d{2,3}\)?[ .\-]?\d{3,4}[ .\-]?\d{4}`)
)

// PII detects emails and phone numbers in text, emitting span annotations
// over the source field.
type PII struct{}

// NewPII is the factory for the PII signal. It takes no config.
func NewPII(config map[string]any) (Signal, error) {
	return &PII{}, nil
}

func (s *PII) Name() string { return PIIName }

func (s *PII) OutputSchema(input schema.DType) (*schema.Field, error) {
	if err := requireText(s.Name(), input); err != nil {
		return nil, err
	}
	return &schema.Field{
		DType: schema.DTypeStruct,
		Fields: schema.FieldList{
			{Name: "emails", Field: &schema.Field{
				DType:         schema.DTypeList,
				RepeatedField: schema.SpanField(),
			}},
			{Name: "phone_numbers", Field: &schema.Field{
				DType:         schema.DTypeList,
				RepeatedField: schema.SpanField(),
			}},
		},
	}, nil
}

func (s *PII) Compute(ctx context.Context, values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = map[string]any{
			"emails":        matchSpans(emailRe, text),
			"phone_numbers": matchSpans(phoneRe, text),
		}
	}
	return out, nil
}

// matchSpans returns rune-offset spans for every regexp match. The regexps
// match byte offsets; rows store rune offsets, so we convert.
func matchSpans(re *regexp.Regexp, text string) []any {
	spans := []any{}
	for _, loc := range re.FindAllStringIndex(text, -1) {
		start := len([]rune(text[:loc[0]]))
		end := start + len([]rune(text[loc[0]:loc[1]]))
		spans = append(spans, schema.Span{Start: start, End: end}.ToValue())
	}
	return spans
}
