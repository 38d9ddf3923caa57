package engine

import (
	"fmt"
	"reflect"

	"github.com/roach88/requex/internal/delta"
	"github.com/roach88/requex/internal/option"
)

// Item is what an item factory returns: either a constant value stored as
// is, or a nested node reduced per tick with its own memoized state.
type Item struct {
	node  Node
	value any
}

// Constant wraps a plain item value.
func Constant(v any) Item { return Item{value: v} }

// Derived wraps a nested node; the collection stores whatever it emits.
func Derived(n Node) Item { return Item{node: n} }

// IsDerived reports whether the item is backed by a node.
func (i Item) IsDerived() bool { return i.node != nil }

// ItemFactory builds the item for the Added(key, args) delta. It is called
// again with the same args on later ticks to re-reduce derived items, so it
// must be deterministic.
type ItemFactory func(args any) Item

// ledger is the collection's bookkeeping stored under KeyExtra: the key
// order of the published container and the args each key was built from.
type ledger struct {
	keys []any
	args map[any]any
}

type collection struct {
	container Container
	factory   ItemFactory
	deltas    Node
}

// Collection maintains a keyed container from the deltas emitted by the
// delta sources. Each source may emit a delta.Delta, a []delta.Delta, or a
// []any of deltas per tick; they are merged under KeySource and applied in
// source order.
func Collection(container Container, factory ItemFactory, deltaSources ...Node) Node {
	return collection{
		container: container,
		factory:   factory,
		deltas:    Merge(deltaSources...),
	}
}

type collectionKind struct{ container reflect.Type }

func (n collection) kind() any { return collectionKind{container: reflect.TypeOf(n.container)} }

func (n collection) Reduce(ctx *Context) option.Option[any] {
	prev := ctx.PreviousReduction()
	old, _ := ctx.Stored(KeyExtra).Otherwise(&ledger{}).(*ledger)
	if old == nil {
		old = &ledger{}
	}
	emitted := ctx.Value(KeySource, n.deltas)

	if emitted.IsNone() && prev.IsNone() {
		return option.Some(n.container.Empty())
	}

	items := newEntries()
	if p, ok := prev.Value(); ok {
		items = n.container.entries(p, old.keys)
	}

	args := make(map[any]any, len(old.args))
	fresh := make(map[any]bool)
	changed := false

	for _, d := range flattenDeltas(ctx, emitted.Otherwise(nil)) {
		changed = true
		switch d.Kind {
		case delta.KindAdded:
			key := d.Key
			if !hashable(key) {
				panic(ctx.invariant(ErrCodeUnhashableKey, "collection key %v (%T) is not comparable", key, key))
			}
			items.put(key, n.build(ctx, key, d.Args))
			args[key] = d.Args
			fresh[key] = true
		case delta.KindRemoved:
			if !hashable(d.Key) {
				continue
			}
			items.remove(d.Key)
			delete(args, d.Key)
			if fresh[d.Key] {
				ctx.dropChild(itemKey(d.Key))
				delete(fresh, d.Key)
			}
		case delta.KindCleared:
			items = newEntries()
			for k := range fresh {
				ctx.dropChild(itemKey(k))
			}
			args = make(map[any]any)
			fresh = make(map[any]bool)
		default:
			panic(ctx.invariant(ErrCodeUnknownDelta, "delta kind out of range: %v", d.Kind))
		}
	}

	for _, key := range items.keys {
		if fresh[key] {
			continue
		}
		a, ok := old.args[key]
		if !ok {
			continue
		}
		args[key] = a
		item := n.factory(a)
		if !item.IsDerived() {
			continue
		}
		if v, ok := ctx.Value(itemKey(key), item.node).Value(); ok {
			items.put(key, v)
			changed = true
		}
	}

	next := &ledger{keys: items.keys, args: args}
	if !changed && sameLedger(old, next) {
		ctx.Store(KeyExtra, old)
	} else {
		ctx.Store(KeyExtra, next)
	}

	if !changed {
		return option.None[any]()
	}
	return option.Some(n.container.publish(items))
}

// build constructs the item for a freshly added key. A derived item is
// seeded synchronously with fresh auxiliary state.
func (n collection) build(ctx *Context, key, args any) any {
	item := n.factory(args)
	if !item.IsDerived() {
		return item.value
	}
	return ctx.FreshValue(itemKey(key), item.node).Otherwise(nil)
}

// flattenDeltas turns the merged source output into one ordered delta list.
func flattenDeltas(ctx *Context, emitted any) []delta.Delta {
	if emitted == nil {
		return nil
	}
	perSource, ok := emitted.([]any)
	if !ok {
		panic(ctx.invariant(ErrCodeNotADelta, "merged delta sources produced %T", emitted))
	}

	var out []delta.Delta
	var add func(v any)
	add = func(v any) {
		switch d := v.(type) {
		case delta.Delta:
			out = append(out, d)
		case []delta.Delta:
			out = append(out, d...)
		case []any:
			for _, x := range d {
				add(x)
			}
		default:
			panic(ctx.invariant(ErrCodeNotADelta, "delta source emitted %T, want delta.Delta or a list of deltas", v))
		}
	}
	for _, v := range perSource {
		add(v)
	}
	return out
}

// itemKey addresses a collection item in auxiliary state. The dynamic type
// is part of the address so IRInt(1) and IRString("1") never collide.
func itemKey(key any) string {
	return fmt.Sprintf("%T:%v", key, key)
}

func hashable(key any) bool {
	if key == nil {
		return false
	}
	return reflect.ValueOf(key).Comparable()
}

func sameLedger(a, b *ledger) bool {
	if len(a.keys) != len(b.keys) || len(a.args) != len(b.args) {
		return false
	}
	for i := range a.keys {
		if a.keys[i] != b.keys[i] {
			return false
		}
	}
	return true
}
