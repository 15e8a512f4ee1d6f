package schema

// Span is the value form of a string_span field: a half-open [Start, End)
// character-offset annotation over a text field.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SpanField returns the canonical field for a string_span annotation.
func SpanField() *Field {
	return &Field{DType: DTypeStringSpan, IsEntity: true}
}

// ToValue returns the JSON-object form of the span, as stored in rows.
func (s Span) ToValue() map[string]any {
	return map[string]any{"start": s.Start, "end": s.End}
}
