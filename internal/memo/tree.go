// Package memo implements the auxiliary memo tree that carries per-node state
// between dispatches.
//
// A Tree is one immutable generation: a VALUE slot holding the last value the
// node at this address produced, a small map of stored bookkeeping values, and
// child subtrees keyed by path segment. A Builder is the next generation under
// construction. Freeze publishes a Builder as a Tree and reuses any subtree of
// the previous generation that came out identical, so only the path from the
// root to a changed node is newly allocated.
//
// The nil *Tree is the empty tree and every read on it is valid.
package memo

import "sort"

// Tree is an immutable auxiliary generation.
type Tree struct {
	kind     any
	value    any
	hasValue bool
	stored   map[string]any
	children map[string]*Tree
}

// Kind returns the tag of the node that wrote this address, nil if none.
func (t *Tree) Kind() any {
	if t == nil {
		return nil
	}
	return t.kind
}

// Value returns the VALUE slot.
func (t *Tree) Value() (any, bool) {
	if t == nil {
		return nil, false
	}
	return t.value, t.hasValue
}

// Stored returns a bookkeeping value written with Builder.Store.
func (t *Tree) Stored(key string) (any, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.stored[key]
	return v, ok
}

// Child returns the subtree at key, or nil.
func (t *Tree) Child(key string) *Tree {
	if t == nil {
		return nil
	}
	return t.children[key]
}

// Keys returns the child path segments in sorted order.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.children))
	for k := range t.children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size counts the addresses in the tree, including t itself.
func (t *Tree) Size() int {
	if t == nil {
		return 0
	}
	n := 1
	for _, c := range t.children {
		n += c.Size()
	}
	return n
}

// Lookup walks a path of segments from t.
func (t *Tree) Lookup(path ...string) *Tree {
	cur := t
	for _, seg := range path {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}
