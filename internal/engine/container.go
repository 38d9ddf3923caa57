package engine

import (
	"slices"
	"sort"

	"github.com/roach88/requex/internal/plist"
)

// Container is the published representation of a collection. Delta
// application always runs against a private entries builder owned by one
// tick; the container only converts between that builder and the immutable
// snapshot it hands out.
type Container interface {
	// Empty returns the empty published container.
	Empty() any

	// entries rebuilds an owned builder from a previously published
	// container and the key order recorded alongside it. A container that
	// does not line up with keys yields an empty builder.
	entries(published any, keys []any) *entries

	// publish snapshots the builder.
	publish(e *entries) any
}

var (
	// ArrayContainer publishes []any in arrival order.
	ArrayContainer Container = arrayContainer{}

	// DictionaryContainer publishes map[any]any keyed by delta key.
	DictionaryContainer Container = dictionaryContainer{}

	// ListContainer publishes a *plist.List[any] in arrival order.
	ListContainer Container = listContainer{}
)

// entries is an ordered key/value builder. put overwrites in place when the
// key exists and appends otherwise.
type entries struct {
	keys   []any
	values map[any]any
}

func newEntries() *entries {
	return &entries{values: make(map[any]any)}
}

func (e *entries) put(key, v any) {
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = v
}

func (e *entries) remove(key any) {
	if _, ok := e.values[key]; !ok {
		return
	}
	delete(e.values, key)
	e.keys = slices.DeleteFunc(e.keys, func(k any) bool { return k == key })
}

func (e *entries) ordered() []any {
	out := make([]any, len(e.keys))
	for i, k := range e.keys {
		out[i] = e.values[k]
	}
	return out
}

func alignedEntries(values []any, keys []any) *entries {
	e := newEntries()
	if len(values) != len(keys) {
		return e
	}
	e.keys = slices.Clone(keys)
	for i, k := range keys {
		e.values[k] = values[i]
	}
	return e
}

type arrayContainer struct{}

func (arrayContainer) Empty() any { return []any{} }

func (arrayContainer) entries(published any, keys []any) *entries {
	values, _ := published.([]any)
	return alignedEntries(values, keys)
}

func (arrayContainer) publish(e *entries) any { return e.ordered() }

type dictionaryContainer struct{}

func (dictionaryContainer) Empty() any { return map[any]any{} }

func (dictionaryContainer) entries(published any, keys []any) *entries {
	m, _ := published.(map[any]any)
	e := newEntries()
	for _, k := range keys {
		if v, ok := m[k]; ok {
			e.put(k, v)
		}
	}
	if len(e.keys) == len(m) {
		return e
	}

	// Key order was lost; fall back to a deterministic order.
	e = newEntries()
	rest := make([]any, 0, len(m))
	for k := range m {
		rest = append(rest, k)
	}
	sort.Slice(rest, func(i, j int) bool { return itemKey(rest[i]) < itemKey(rest[j]) })
	for _, k := range rest {
		e.put(k, m[k])
	}
	return e
}

func (dictionaryContainer) publish(e *entries) any {
	out := make(map[any]any, len(e.keys))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

type listContainer struct{}

func (listContainer) Empty() any { return plist.Nil[any]() }

func (listContainer) entries(published any, keys []any) *entries {
	l, _ := published.(*plist.List[any])
	return alignedEntries(l.Slice(), keys)
}

func (listContainer) publish(e *entries) any { return plist.Of(e.ordered()...) }
