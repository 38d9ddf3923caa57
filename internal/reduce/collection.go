package reduce

import (
	"github.com/roach88/requex/internal/engine"
)

// Item is what an item factory returns for one collection entry.
type Item = engine.Item

// ItemFactory builds the item for an Added(key, args) delta. It is called
// again with the same args on later dispatches, so it must be
// deterministic.
type ItemFactory func(args any) Item

// Constant stores v as the item value.
func Constant(v any) Item { return engine.Constant(v) }

// Derived reduces b per item, with the item's own auxiliary state. A
// builder carrying a construction error fails the dispatch that adds it.
func Derived(b *Builder) Item { return engine.Derived(mustNode("derived", b)) }

// ArrayOf maintains a []any in arrival order from the given delta sources.
func ArrayOf(factory ItemFactory, deltas ...*Builder) *Builder {
	return collection("arrayOf", engine.ArrayContainer, factory, deltas)
}

// DictionaryOf maintains a map[any]any keyed by delta key.
func DictionaryOf(factory ItemFactory, deltas ...*Builder) *Builder {
	return collection("dictionaryOf", engine.DictionaryContainer, factory, deltas)
}

// LinkedListOf maintains a *plist.List[any] in arrival order.
func LinkedListOf(factory ItemFactory, deltas ...*Builder) *Builder {
	return collection("linkedListOf", engine.ListContainer, factory, deltas)
}

func collection(op string, c engine.Container, factory ItemFactory, deltas []*Builder) *Builder {
	if factory == nil {
		return failed(engine.ErrCodeInvalidArgument, op, "missing item factory")
	}
	nodes, err := nodesOf(op, deltas)
	if err != nil {
		return &Builder{err: err}
	}
	return wrap(engine.Collection(c, engine.ItemFactory(factory), nodes...))
}
