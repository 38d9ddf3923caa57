package engine

import (
	"reflect"
	"sort"
	"strconv"

	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/option"
)

// Node is one derivation node: a pure function of the context to an
// optional new value. Nodes are immutable once constructed and may be
// shared between graphs.
//
// Constructors in this package expect non-nil arguments; the reduce
// builder validates them and reports ConstructionErrors.
type Node interface {
	Reduce(ctx *Context) option.Option[any]
}

// kinded is implemented by nodes whose memoized state depends on more than
// their Go type.
type kinded interface {
	kind() any
}

// kindOf tags the address a node writes. A node whose tag differs from the
// one recorded at its address in the previous generation starts empty.
func kindOf(n Node) any {
	if k, ok := n.(kinded); ok {
		return k.kind()
	}
	return reflect.TypeOf(n)
}

// NodeFunc adapts a function to Node.
type NodeFunc func(ctx *Context) option.Option[any]

// Reduce implements Node.
func (f NodeFunc) Reduce(ctx *Context) option.Option[any] { return f(ctx) }

type never struct{}

// Never returns a node that never emits.
func Never() Node { return never{} }

func (never) Reduce(*Context) option.Option[any] { return option.None[any]() }

type value struct{ v any }

// Value returns a node that emits v on the first tick it is evaluated and
// never again.
func Value(v any) Node { return value{v: v} }

func (n value) Reduce(ctx *Context) option.Option[any] {
	if ctx.PreviousReduction().IsSome() {
		return option.None[any]()
	}
	return option.Some(n.v)
}

type eventOfType struct{ eventType string }

// EventOfType emits the event in scope when its type is eventType.
func EventOfType(eventType string) Node { return eventOfType{eventType: eventType} }

func (n eventOfType) Reduce(ctx *Context) option.Option[any] {
	ev, ok := ctx.Event().Value()
	if !ok || ev.Type != n.eventType {
		return option.None[any]()
	}
	return option.Some[any](ev)
}

type anyEvent struct{}

// AnyEvent emits every event in scope.
func AnyEvent() Node { return anyEvent{} }

func (anyEvent) Reduce(ctx *Context) option.Option[any] {
	return option.Map(ctx.Event(), func(ev ir.Event) any { return ev })
}

type mapped struct {
	src Node
	f   func(any) any
}

// Mapped applies f to every value src emits.
func Mapped(src Node, f func(any) any) Node { return mapped{src: src, f: f} }

func (n mapped) Reduce(ctx *Context) option.Option[any] {
	return option.Map(ctx.Value(KeySource, n.src), n.f)
}

type filtered struct {
	src  Node
	pred func(any) bool
}

// Filtered passes on the values of src that pred accepts.
func Filtered(src Node, pred func(any) bool) Node { return filtered{src: src, pred: pred} }

func (n filtered) Reduce(ctx *Context) option.Option[any] {
	return ctx.Value(KeySource, n.src).Filter(n.pred)
}

type folding struct {
	src  Node
	f    func(acc, v any) any
	zero any
}

// Folding accumulates src with f. It emits zero on its very first
// evaluation when src is silent, so a seeded value exists before the first
// matching event.
func Folding(src Node, f func(acc, v any) any, zero any) Node {
	return folding{src: src, f: f, zero: zero}
}

type foldKind struct{ zero reflect.Type }

// A fold's accumulator has the type of its zero.
func (n folding) kind() any { return foldKind{zero: reflect.TypeOf(n.zero)} }

func (n folding) Reduce(ctx *Context) option.Option[any] {
	cur := ctx.Value(KeySource, n.src)
	prev := ctx.PreviousReduction()
	if v, ok := cur.Value(); ok {
		return option.Some(n.f(prev.Otherwise(n.zero), v))
	}
	if prev.IsNone() {
		return option.Some(n.zero)
	}
	return option.None[any]()
}

type scoped struct {
	src  Node
	pred func(ir.Event) bool
}

// Scoped hides events that fail pred from src and everything beneath it.
func Scoped(src Node, pred func(ir.Event) bool) Node { return scoped{src: src, pred: pred} }

func (n scoped) Reduce(ctx *Context) option.Option[any] {
	return ctx.ScopedBy(n.pred, func() option.Option[any] {
		return ctx.Value(KeySource, n.src)
	})
}

type flatReduced struct {
	src      Node
	selector func(any) Node
}

// FlatReduced switches to the latest nested node. Whenever src emits a seed,
// selector(seed) is evaluated with fresh auxiliary state; while src is silent
// the node built from the previous seed keeps running on its carried state.
func FlatReduced(src Node, selector func(any) Node) Node {
	return flatReduced{src: src, selector: selector}
}

func (n flatReduced) Reduce(ctx *Context) option.Option[any] {
	if seed, ok := ctx.Value(KeySource, n.src).Value(); ok {
		return ctx.FreshValue(KeyInner, n.selector(seed))
	}
	if seed, ok := ctx.PreviousReductionOf(KeySource).Value(); ok {
		return ctx.Value(KeyInner, n.selector(seed))
	}
	return option.None[any]()
}

type merge struct{ sources []Node }

// Merge emits, in source order, the values of every source that emitted
// this tick. Silent sources are dropped, not carried.
func Merge(sources ...Node) Node {
	return merge{sources: append([]Node(nil), sources...)}
}

func (n merge) Reduce(ctx *Context) option.Option[any] {
	var out []any
	for i, src := range n.sources {
		if v, ok := ctx.Value(sourceKey(i), src).Value(); ok {
			out = append(out, v)
		}
	}
	if out == nil {
		return option.None[any]()
	}
	return option.Some[any](out)
}

type combineLatest struct{ sources []Node }

// CombineLatest emits the latest value of every source whenever at least
// one source emitted this tick and every source has emitted at least once.
func CombineLatest(sources ...Node) Node {
	return combineLatest{sources: append([]Node(nil), sources...)}
}

func (n combineLatest) Reduce(ctx *Context) option.Option[any] {
	out := make([]any, len(n.sources))
	changed, complete := false, true
	for i, src := range n.sources {
		key := sourceKey(i)
		if v, ok := ctx.Value(key, src).Value(); ok {
			out[i] = v
			changed = true
			continue
		}
		if v, ok := ctx.PreviousReductionOf(key).Value(); ok {
			out[i] = v
			continue
		}
		complete = false
	}
	if !changed || !complete {
		return option.None[any]()
	}
	return option.Some[any](out)
}

func sourceKey(i int) string {
	return KeySource + "." + strconv.Itoa(i)
}

type structure struct {
	constants map[string]any
	fields    []string
	nodes     map[string]Node
}

// Structure builds a record from constant fields and nested nodes. It emits
// the previous record (or the constants) merged with every nested field that
// emitted this tick. When nothing changed and a record was already emitted
// it stays silent, keeping the previous record's identity.
//
// The published record is a map[string]any and must be treated as
// immutable.
func Structure(constants map[string]any, nodes map[string]Node) Node {
	s := structure{
		constants: make(map[string]any, len(constants)),
		nodes:     make(map[string]Node, len(nodes)),
	}
	for k, v := range constants {
		s.constants[k] = v
	}
	for k, n := range nodes {
		s.nodes[k] = n
		s.fields = append(s.fields, k)
	}
	sort.Strings(s.fields)
	return s
}

func (n structure) Reduce(ctx *Context) option.Option[any] {
	prev := ctx.PreviousReduction()

	var changed map[string]any
	for _, k := range n.fields {
		if v, ok := ctx.Value(k, n.nodes[k]).Value(); ok {
			if changed == nil {
				changed = make(map[string]any, len(n.fields))
			}
			changed[k] = v
		}
	}

	basis := n.constants
	if p, ok := prev.Value(); ok {
		if m, ok := p.(map[string]any); ok {
			basis = m
		}
	}

	if changed == nil {
		if prev.IsSome() {
			return option.None[any]()
		}
		return option.Some[any](copyRecord(basis, nil))
	}
	return option.Some[any](copyRecord(basis, changed))
}

func copyRecord(basis, changed map[string]any) map[string]any {
	out := make(map[string]any, len(basis)+len(changed))
	for k, v := range basis {
		out[k] = v
	}
	for k, v := range changed {
		out[k] = v
	}
	return out
}
