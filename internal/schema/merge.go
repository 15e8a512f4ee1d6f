package schema

import (
	"fmt"
)

// Graft attaches a subtree at the given target path. The parent of the
// target must already resolve; the final segment names the new child.
//
// Grafting is how signal outputs and search-derived fields enter a schema:
// the base tree stays immutable and callers graft onto a clone. Grafting the
// identical shape twice is a no-op; a different shape at an occupied path
// fails with ErrSchemaConflict.
func (s *Schema) Graft(target Path, sub *Field) error {
	if err := ValidatePath(target); err != nil {
		return err
	}
	name := target[len(target)-1]
	if name == Wildcard {
		return fmt.Errorf("%w: graft target cannot end in a wildcard", ErrInvalidPath)
	}
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("graft at %q: %w", target.String(), err)
	}

	parent := getField(s.Root, target[:len(target)-1])
	if parent == nil {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, target[:len(target)-1].String())
	}
	// Grafting under a list field lands on its repeated child.
	if parent.DType == DTypeList && parent.RepeatedField != nil {
		parent = parent.RepeatedField
	}

	if existing := parent.Fields.Get(name); existing != nil {
		if existing.Equal(sub) {
			return nil
		}
		return fmt.Errorf("%w: field %q already exists with a different shape", ErrSchemaConflict, target.String())
	}
	parent.Fields.Set(name, sub)
	return nil
}

// DeleteField removes the field at the target path. Wildcard segments may
// appear in the prefix but not as the final segment.
func (s *Schema) DeleteField(target Path) error {
	if err := ValidatePath(target); err != nil {
		return err
	}
	name := target[len(target)-1]
	if name == Wildcard {
		return fmt.Errorf("%w: cannot delete a repeated child", ErrInvalidPath)
	}
	parent := getField(s.Root, target[:len(target)-1])
	if parent == nil {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, target[:len(target)-1].String())
	}
	if parent.DType == DTypeList && parent.RepeatedField != nil {
		parent = parent.RepeatedField
	}
	if !parent.Fields.Delete(name) {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, target.String())
	}
	return nil
}
