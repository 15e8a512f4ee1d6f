package schema

import (
	"errors"
	"testing"
)

func TestSerializePathRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		path Path
	}{
		{"single", PathOf("question")},
		{"nested", PathOf("question", "pii", "emails")},
		{"wildcard", PathOf("comments", "*", "text")},
		{"dot in segment", PathOf("a.b", "c")},
		{"backslash in segment", PathOf(`a\b`, "c")},
		{"dot and backslash", PathOf(`a\.b`, "c.d")},
		{"trailing wildcard", PathOf("tags", "*")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeserializePath(SerializePath(tt.path))
			if err != nil {
				t.Fatalf("DeserializePath failed: %v", err)
			}
			if !got.Equal(tt.path) {
				t.Errorf("round trip mismatch: got %v, want %v", got, tt.path)
			}
		})
	}
}

func TestSerializePath(t *testing.T) {
	if got := SerializePath(PathOf("a", "b", "c")); got != "a.b.c" {
		t.Errorf("got %q, want %q", got, "a.b.c")
	}
	if got := SerializePath(PathOf("a.b", "c")); got != `a\.b.c` {
		t.Errorf("got %q, want %q", got, `a\.b.c`)
	}
}

func TestDeserializePathErrors(t *testing.T) {
	for _, s := range []string{`a\`, `a\x`} {
		if _, err := DeserializePath(s); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("DeserializePath(%q): expected ErrInvalidPath, got %v", s, err)
		}
	}
}

func TestPathEqual(t *testing.T) {
	if !PathOf("a", "*", "b").Equal(PathOf("a", "*", "b")) {
		t.Error("identical paths should be equal")
	}
	if PathOf("a").Equal(PathOf("a", "b")) {
		t.Error("different length paths should not be equal")
	}
	if PathOf("a", "b").Equal(PathOf("a", "c")) {
		t.Error("different segments should not be equal")
	}
}

func TestPathHasPrefix(t *testing.T) {
	p := PathOf("a", "b", "c")
	if !p.HasPrefix(PathOf("a", "b")) {
		t.Error("expected prefix match")
	}
	if p.HasPrefix(PathOf("a", "c")) {
		t.Error("unexpected prefix match")
	}
	if p.HasPrefix(PathOf("a", "b", "c", "d")) {
		t.Error("longer prefix should not match")
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath(Path{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty path: expected ErrInvalidPath, got %v", err)
	}
	if err := ValidatePath(PathOf("a", "", "b")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty segment: expected ErrInvalidPath, got %v", err)
	}
	if err := ValidatePath(PathOf("a", "*")); err != nil {
		t.Errorf("wildcard segment should be valid: %v", err)
	}
}
