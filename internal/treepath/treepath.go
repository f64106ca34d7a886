// Package treepath reads and writes values inside dynamically shaped response
// trees built from map[string]any, []any and scalars.
//
// A Path is an ordered list of keys. Map members are addressed by name and
// slice elements by their decimal index ("0", "1", ...).
package treepath

import (
	"strconv"
	"strings"
)

// Path addresses a location in a response tree.
type Path []string

// String renders the path with dot separators, e.g. "viewer.friends".
func (p Path) String() string { return strings.Join(p, ".") }

// Append returns a new path with seg added. The receiver is never modified.
func (p Path) Append(seg string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Get returns the value found at path and whether it exists.
// An empty path yields tree itself. Descending into a scalar, a nil value,
// a missing key or an out-of-range index reports false.
func Get(tree any, path Path) (any, bool) {
	cur := tree
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := index(c, seg)
			if !ok {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set writes value at path.
//
// Intermediate members that are missing, nil or not containers are replaced
// with an empty map before descending. Slice intermediates are only entered
// through an existing index; an invalid index leaves the tree untouched, as
// does a non-container root or an empty path.
func Set(tree any, path Path, value any) {
	if len(path) == 0 {
		return
	}
	cur := tree
	for _, seg := range path[:len(path)-1] {
		switch c := cur.(type) {
		case map[string]any:
			child := c[seg]
			if !isContainer(child) {
				child = map[string]any{}
				c[seg] = child
			}
			cur = child
		case []any:
			i, ok := index(c, seg)
			if !ok {
				return
			}
			child := c[i]
			if !isContainer(child) {
				child = map[string]any{}
				c[i] = child
			}
			cur = child
		default:
			return
		}
	}
	last := path[len(path)-1]
	switch c := cur.(type) {
	case map[string]any:
		c[last] = value
	case []any:
		if i, ok := index(c, last); ok {
			c[i] = value
		}
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func index(s []any, seg string) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= len(s) {
		return 0, false
	}
	return i, true
}
