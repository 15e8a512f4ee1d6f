// Package schema provides the hierarchical, self-describing schema model for
// sift datasets: typed field trees, wildcard-aware path lookup, and
// shape-validated merging of signal-derived subtrees.
package schema

import (
	"fmt"
	"strings"
)

// Wildcard is the path segment that denotes one level of repetition.
// It resolves to the repeated child of a list field.
const Wildcard = "*"

// Path identifies a field in a schema as an ordered sequence of segments.
// A Wildcard segment dereferences the repeated child of a list field.
type Path []string

// PathOf builds a Path from literal segments.
func PathOf(segments ...string) Path {
	return Path(segments)
}

// Equal returns true if both paths have identical segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix returns true if the path starts with the given prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Child returns a new path with the segment appended.
func (p Path) Child(segment string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = segment
	return out
}

// Clone returns a copy of the path.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// String returns the serialized form of the path.
func (p Path) String() string {
	return SerializePath(p)
}

// SerializePath joins path segments with "." for use as map keys and URL
// fragments. Literal dots and backslashes inside a segment are escaped so
// that DeserializePath is an exact inverse.
func SerializePath(p Path) string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = escapeSegment(seg)
	}
	return strings.Join(parts, ".")
}

// DeserializePath parses a serialized path back into segments.
// DeserializePath(SerializePath(p)) == p for all well-formed paths.
func DeserializePath(s string) (Path, error) {
	if s == "" {
		return Path{}, nil
	}
	var (
		path    Path
		current strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			if r != '.' && r != '\\' {
				return nil, fmt.Errorf("%w: invalid escape %q in %q", ErrInvalidPath, string(r), s)
			}
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			path = append(path, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		return nil, fmt.Errorf("%w: trailing escape in %q", ErrInvalidPath, s)
	}
	path = append(path, current.String())
	return path, nil
}

func escapeSegment(seg string) string {
	if !strings.ContainsAny(seg, `.\`) {
		return seg
	}
	var b strings.Builder
	for _, r := range seg {
		if r == '.' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidatePath checks that the path is non-empty and contains no empty
// segments.
func ValidatePath(p Path) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for i, seg := range p {
		if seg == "" {
			return fmt.Errorf("%w: empty segment at position %d", ErrInvalidPath, i)
		}
	}
	return nil
}
