package memo

// Builder is the next generation of a Tree while a dispatch is running.
// It is owned by exactly one dispatch and never handed out.
type Builder struct {
	kind     any
	value    any
	hasValue bool
	stored   map[string]any
	children map[string]*Builder
}

// NewBuilder returns an empty next generation.
func NewBuilder() *Builder {
	return &Builder{}
}

// Child starts a fresh next generation at key, replacing anything already
// written there during this dispatch. Colliding keys overwrite each other.
func (b *Builder) Child(key string) *Builder {
	if b.children == nil {
		b.children = make(map[string]*Builder)
	}
	c := &Builder{}
	b.children[key] = c
	return c
}

// DropChild removes whatever was written at key during this dispatch.
func (b *Builder) DropChild(key string) {
	delete(b.children, key)
}

// SetKind tags the address with the node writing it. Tags must be
// comparable. A tag alone does not keep an address in the frozen tree.
func (b *Builder) SetKind(k any) {
	b.kind = k
}

// SetValue fills the VALUE slot.
func (b *Builder) SetValue(v any) {
	b.value = v
	b.hasValue = true
}

// Value returns the VALUE slot written so far.
func (b *Builder) Value() (any, bool) {
	return b.value, b.hasValue
}

// Store writes a bookkeeping value at this address.
func (b *Builder) Store(key string, v any) {
	if b.stored == nil {
		b.stored = make(map[string]any)
	}
	b.stored[key] = v
}

func (b *Builder) empty() bool {
	return !b.hasValue && len(b.stored) == 0 && len(b.children) == 0
}

// Freeze publishes the builder as an immutable Tree. Subtrees identical to
// their counterpart in prev are shared rather than copied, and prev itself
// is returned when nothing at or below this address changed.
func (b *Builder) Freeze(prev *Tree) *Tree {
	if b == nil || b.empty() {
		return nil
	}

	unchanged := prev != nil &&
		prev.kind == b.kind &&
		prev.hasValue == b.hasValue &&
		Same(prev.value, b.value) &&
		sameStored(prev.stored, b.stored)

	var children map[string]*Tree
	for k, cb := range b.children {
		ct := cb.Freeze(prev.Child(k))
		if ct == nil {
			continue
		}
		if children == nil {
			children = make(map[string]*Tree, len(b.children))
		}
		children[k] = ct
		if ct != prev.Child(k) {
			unchanged = false
		}
	}
	if !b.hasValue && len(b.stored) == 0 && children == nil {
		return nil
	}
	if unchanged && len(children) != len(prev.children) {
		unchanged = false
	}
	if unchanged {
		return prev
	}

	return &Tree{
		kind:     b.kind,
		value:    b.value,
		hasValue: b.hasValue,
		stored:   b.stored,
		children: children,
	}
}

func sameStored(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Same(av, bv) {
			return false
		}
	}
	return true
}
