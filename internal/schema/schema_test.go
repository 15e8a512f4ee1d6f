package schema

import (
	"encoding/json"
	"errors"
	"testing"
)

// testSchema builds a schema resembling a loaded dataset:
//
//	question: string
//	answer: string
//	comments: list<struct{text: string, score: float32}>
//	tags: list<string>
func testSchema() *Schema {
	s := New()
	s.Root.Fields = FieldList{
		{Name: "question", Field: &Field{DType: DTypeString}},
		{Name: "answer", Field: &Field{DType: DTypeString}},
		{Name: "comments", Field: &Field{
			DType: DTypeList,
			RepeatedField: &Field{
				DType: DTypeStruct,
				Fields: FieldList{
					{Name: "text", Field: &Field{DType: DTypeString}},
					{Name: "score", Field: &Field{DType: DTypeFloat32}},
				},
			},
		}},
		{Name: "tags", Field: &Field{
			DType:         DTypeList,
			RepeatedField: &Field{DType: DTypeString},
		}},
	}
	return s
}

func TestListFieldsOrder(t *testing.T) {
	s := testSchema()
	entries := s.ListFields()

	want := []string{
		"question",
		"answer",
		"comments",
		"comments.*",
		"comments.*.text",
		"comments.*.score",
		"tags",
		"tags.*",
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(entries))
	}
	for i, entry := range entries {
		if entry.Path.String() != want[i] {
			t.Errorf("field %d: got path %q, want %q", i, entry.Path.String(), want[i])
		}
	}
}

func TestGetFieldMatchesListFields(t *testing.T) {
	s := testSchema()
	for _, entry := range s.ListFields() {
		got := s.GetField(entry.Path)
		if got != entry.Field {
			t.Errorf("GetField(%q) did not return the listed field", entry.Path.String())
		}
	}
}

func TestGetFieldMissing(t *testing.T) {
	s := testSchema()
	if f := s.GetField(PathOf("nope")); f != nil {
		t.Error("expected nil for missing field")
	}
	if f := s.GetField(PathOf("question", "pii")); f != nil {
		t.Error("expected nil for missing child")
	}
	if f := s.GetField(PathOf("question", "*")); f != nil {
		t.Error("wildcard on non-list field should not resolve")
	}
}

func TestChildFields(t *testing.T) {
	s := testSchema()

	comments := s.GetField(PathOf("comments"))
	children := ChildFields(comments)
	if len(children) != 2 {
		t.Fatalf("expected 2 children through one repetition level, got %d", len(children))
	}
	if children[0].Name != "text" || children[1].Name != "score" {
		t.Errorf("unexpected children: %v", []string{children[0].Name, children[1].Name})
	}

	question := s.GetField(PathOf("question"))
	if got := ChildFields(question); len(got) != 0 {
		t.Errorf("expected no children for scalar field, got %d", len(got))
	}
}

func TestValidate(t *testing.T) {
	if err := testSchema().Validate(); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}

	bad := New()
	bad.Root.Fields = FieldList{
		{Name: "xs", Field: &Field{DType: DTypeList}}, // missing repeated_field
	}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidDType) {
		t.Errorf("list without repeated_field: expected ErrInvalidDType, got %v", err)
	}

	bad2 := New()
	bad2.Root.Fields = FieldList{
		{Name: "s", Field: &Field{DType: DTypeString, RepeatedField: &Field{DType: DTypeString}}},
	}
	if err := bad2.Validate(); !errors.Is(err, ErrInvalidDType) {
		t.Errorf("repeated_field on scalar: expected ErrInvalidDType, got %v", err)
	}

	bad3 := New()
	bad3.Root.Fields = FieldList{
		{Name: "st", Field: &Field{DType: DTypeStruct}},
	}
	if err := bad3.Validate(); !errors.Is(err, ErrInvalidDType) {
		t.Errorf("struct without fields: expected ErrInvalidDType, got %v", err)
	}
}

func TestGraftDisjoint(t *testing.T) {
	s := testSchema()

	pii := &Field{
		DType:      DTypeStruct,
		SignalRoot: true,
		Signal:     &SignalInfo{Name: "pii"},
		Fields: FieldList{
			{Name: "emails", Field: &Field{
				DType:         DTypeList,
				RepeatedField: &Field{DType: DTypeStringSpan, IsEntity: true},
			}},
		},
	}
	if err := s.Graft(PathOf("question", "pii"), pii); err != nil {
		t.Fatalf("graft failed: %v", err)
	}

	lang := &Field{DType: DTypeString, SignalRoot: true, Signal: &SignalInfo{Name: "lang"}}
	if err := s.Graft(PathOf("answer", "lang"), lang); err != nil {
		t.Fatalf("second graft failed: %v", err)
	}

	if f := s.GetField(PathOf("question", "pii", "emails", "*")); f == nil || f.DType != DTypeStringSpan {
		t.Error("grafted subtree not resolvable")
	}
	if f := s.GetField(PathOf("answer", "lang")); f == nil || !f.SignalRoot {
		t.Error("second grafted subtree not resolvable")
	}
}

func TestGraftIdempotentAndConflict(t *testing.T) {
	s := testSchema()
	score := &Field{DType: DTypeFloat32, SignalRoot: true, Signal: &SignalInfo{Name: "score"}}

	if err := s.Graft(PathOf("question", "score"), score); err != nil {
		t.Fatalf("graft failed: %v", err)
	}
	// Same shape again: no-op.
	if err := s.Graft(PathOf("question", "score"), score.Clone()); err != nil {
		t.Fatalf("identical re-graft should succeed: %v", err)
	}
	// Different shape: conflict.
	other := &Field{DType: DTypeString, SignalRoot: true, Signal: &SignalInfo{Name: "score"}}
	if err := s.Graft(PathOf("question", "score"), other); !errors.Is(err, ErrSchemaConflict) {
		t.Errorf("expected ErrSchemaConflict, got %v", err)
	}
}

func TestGraftUnderRepeated(t *testing.T) {
	s := testSchema()
	lang := &Field{DType: DTypeString, SignalRoot: true}
	if err := s.Graft(PathOf("comments", "*", "text", "lang"), lang); err != nil {
		t.Fatalf("graft under repeated failed: %v", err)
	}
	if f := s.GetField(PathOf("comments", "*", "text", "lang")); f == nil {
		t.Error("grafted field under repeated path not resolvable")
	}
}

func TestGraftMissingParent(t *testing.T) {
	s := testSchema()
	if err := s.Graft(PathOf("nope", "child"), &Field{DType: DTypeString}); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestDeleteField(t *testing.T) {
	s := testSchema()
	if err := s.Graft(PathOf("question", "pii"), &Field{DType: DTypeString, SignalRoot: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteField(PathOf("question", "pii")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if f := s.GetField(PathOf("question", "pii")); f != nil {
		t.Error("field still present after delete")
	}
	if err := s.DeleteField(PathOf("question", "pii")); !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestSchemaJSONRoundTrip(t *testing.T) {
	s := testSchema()
	if err := s.Graft(PathOf("question", "pii"), &Field{
		DType:      DTypeStruct,
		SignalRoot: true,
		Signal:     &SignalInfo{Name: "pii", Config: map[string]any{"kinds": "emails"}},
		Fields: FieldList{
			{Name: "emails", Field: &Field{
				DType:         DTypeList,
				RepeatedField: &Field{DType: DTypeStringSpan, IsEntity: true},
			}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got Schema
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !got.Root.Equal(s.Root) {
		t.Error("schema changed across JSON round trip")
	}

	// Field order must survive the round trip.
	before := s.ListFields()
	after := got.ListFields()
	if len(before) != len(after) {
		t.Fatalf("field count changed: %d != %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Path.String() != after[i].Path.String() {
			t.Errorf("field %d: order changed: %q != %q", i, before[i].Path.String(), after[i].Path.String())
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := testSchema()
	clone := s.Clone()
	if err := clone.Graft(PathOf("question", "extra"), &Field{DType: DTypeString}); err != nil {
		t.Fatal(err)
	}
	if f := s.GetField(PathOf("question", "extra")); f != nil {
		t.Error("graft on clone mutated the original")
	}
}
