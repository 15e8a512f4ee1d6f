package dataset

import (
	"github.com/siftdata/sift/internal/schema"
)

// extractTree walks a row value along a path, preserving the list nesting at
// wildcard segments. The result mirrors the wildcard structure: each
// wildcard contributes one level of []any, and everything below a missing
// segment is nil.
func extractTree(v any, p schema.Path) any {
	if len(p) == 0 {
		return v
	}
	if v == nil {
		return nil
	}
	if p[0] == schema.Wildcard {
		list, ok := v.([]any)
		if !ok {
			return nil
		}
		out := make([]any, len(list))
		for i, elem := range list {
			out[i] = extractTree(elem, p[1:])
		}
		return out
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return extractTree(obj[p[0]], p[1:])
}

// collectLeaves appends the leaves of a tree produced by extractTree, where
// depth is the number of wildcard levels still to descend.
func collectLeaves(tree any, depth int, out *[]any) {
	if depth == 0 {
		*out = append(*out, tree)
		return
	}
	list, _ := tree.([]any)
	for _, elem := range list {
		collectLeaves(elem, depth-1, out)
	}
}

// rebuildTree reproduces the shape of a tree produced by extractTree,
// replacing its leaves with successive values from next.
func rebuildTree(tree any, depth int, next func() any) any {
	if depth == 0 {
		return next()
	}
	list, ok := tree.([]any)
	if !ok {
		return nil
	}
	out := make([]any, len(list))
	for i, elem := range list {
		out[i] = rebuildTree(elem, depth-1, next)
	}
	return out
}

// leafValues flattens a tree produced by extractTree into the values a
// filter or keyword matcher sees for one row: all wildcard levels are
// descended, and a leaf that is itself a list contributes its elements.
func leafValues(tree any, depth int) []any {
	var leaves []any
	collectLeaves(tree, depth, &leaves)
	out := make([]any, 0, len(leaves))
	for _, leaf := range leaves {
		if leaf == nil {
			continue
		}
		if list, ok := leaf.([]any); ok {
			for _, elem := range list {
				if elem != nil {
					out = append(out, elem)
				}
			}
			continue
		}
		out = append(out, leaf)
	}
	return out
}

func wildcardDepth(p schema.Path) int {
	n := 0
	for _, seg := range p {
		if seg == schema.Wildcard {
			n++
		}
	}
	return n
}
