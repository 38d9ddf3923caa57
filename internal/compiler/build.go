package compiler

import (
	"fmt"

	"github.com/roach88/requex/internal/delta"
	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/option"
	"github.com/roach88/requex/internal/reduce"
)

// BuildQuery validates spec and compiles it into an engine query.
func BuildQuery(spec *ir.QuerySpec) (*engine.Query, error) {
	if errs := Validate(spec); len(errs) > 0 {
		return nil, fmt.Errorf("query %s: %w", spec.Name, errs[0])
	}
	return Build(spec.Root).Build()
}

// Build translates a node spec into a builder. Specs are expected to be
// validated; a malformed spec yields a builder carrying a construction
// error.
func Build(n *ir.NodeSpec) *reduce.Builder {
	return build(n, option.None[any]())
}

// build compiles n against env, the constructor args of the enclosing
// collection item or the seed of the enclosing flat_reduce.
func build(n *ir.NodeSpec, env option.Option[any]) *reduce.Builder {
	if n == nil {
		return nil
	}

	b := source(n, env)
	if n.Where != nil {
		b = b.Where(matcher(n.Where, env))
	}
	if n.Select != "" {
		path := n.Select
		b = b.Where(func(v any) bool {
			_, ok := ir.Lookup(v, path)
			return ok
		}).Select(func(v any) any {
			out, _ := ir.Lookup(v, path)
			return out
		})
	}
	if n.Fold != "" {
		b = fold(b, n.Fold, n.Zero)
	}
	if n.FlatReduce != nil {
		inner := n.FlatReduce
		b = b.FlatReduce(func(seed any) *reduce.Builder {
			return build(inner, option.Some(seed))
		})
	}
	if n.Scope != nil {
		b = b.Scoped(scopePredicate(n.Scope, env))
	}
	return b
}

func source(n *ir.NodeSpec, env option.Option[any]) *reduce.Builder {
	switch {
	case n.Constant != nil:
		return reduce.Value(n.Constant)
	case n.Value != nil:
		return reduce.Value(n.Value)
	case n.Never:
		return reduce.Never()
	case n.Events == ir.AnyEventType:
		return reduce.AllEvents()
	case n.Events != "":
		return reduce.EventsOfType(n.Events)
	case n.Arg != "":
		if v, ok := lookupArg(env, n.Arg); ok {
			return reduce.Value(v)
		}
		return reduce.Never()
	case n.Structure != nil:
		return structure(n.Structure, env)
	case n.Merge != nil:
		return reduce.Merge(buildAll(n.Merge, env)...)
	case n.CombineLatest != nil:
		return reduce.CombineLatest(buildAll(n.CombineLatest, env)...)
	case n.Collection != nil:
		return collection(n.Collection)
	}
	return reduce.Structure(nil)
}

func buildAll(nodes []*ir.NodeSpec, env option.Option[any]) []*reduce.Builder {
	out := make([]*reduce.Builder, len(nodes))
	for i, n := range nodes {
		out[i] = build(n, env)
	}
	return out
}

// structure turns literal fields and bare arg references into constants;
// everything else becomes a nested node.
func structure(fields map[string]*ir.NodeSpec, env option.Option[any]) *reduce.Builder {
	out := make(map[string]any, len(fields))
	for name, f := range fields {
		if c, ok := constantOf(f, env); ok {
			out[name] = c
			continue
		}
		out[name] = build(f, env)
	}
	return reduce.Structure(out)
}

// constantOf reports whether n is a literal (or a bare arg reference) and
// returns its value.
func constantOf(n *ir.NodeSpec, env option.Option[any]) (any, bool) {
	switch {
	case n.Constant != nil:
		return n.Constant, true
	case n.Arg != "" && !n.HasTransforms():
		return lookupArg(env, n.Arg)
	}
	return nil, false
}

func collection(c *ir.CollectionSpec) *reduce.Builder {
	item := c.Item
	factory := func(args any) reduce.Item {
		env := option.Some(args)
		if v, ok := constantOf(item, env); ok {
			return reduce.Constant(v)
		}
		return reduce.Derived(build(item, env))
	}

	var deltas []*reduce.Builder
	key := c.Key
	for _, t := range c.Add {
		deltas = append(deltas, keyed(t, key, func(k any, ev ir.Event) any {
			return delta.Added(k, ev.Payload)
		}))
	}
	for _, t := range c.Remove {
		deltas = append(deltas, keyed(t, key, func(k any, _ ir.Event) any {
			return delta.Removed(k)
		}))
	}
	for _, t := range c.Clear {
		deltas = append(deltas, reduce.EventsOfType(t).Select(func(any) any {
			return delta.Cleared()
		}))
	}

	switch c.Kind {
	case ir.KindDictionary:
		return reduce.DictionaryOf(factory, deltas...)
	case ir.KindList:
		return reduce.LinkedListOf(factory, deltas...)
	default:
		return reduce.ArrayOf(factory, deltas...)
	}
}

// keyed emits f(payload[key], event) for events of type t carrying key.
func keyed(t, key string, f func(k any, ev ir.Event) any) *reduce.Builder {
	return reduce.EventsOfType(t).
		Where(func(v any) bool {
			_, ok := v.(ir.Event).Field(key)
			return ok
		}).
		Select(func(v any) any {
			ev := v.(ir.Event)
			k, _ := ev.Field(key)
			return f(k, ev)
		})
}

func fold(b *reduce.Builder, op string, zero ir.IRValue) *reduce.Builder {
	switch op {
	case ir.FoldSum:
		if zero == nil {
			zero = ir.IRInt(0)
		}
		return b.Sum(zero)
	case ir.FoldCount:
		if zero == nil {
			zero = ir.IRInt(0)
		}
		return b.Fold(func(acc, _ any) any { return acc.(ir.IRInt) + 1 }, zero)
	case ir.FoldToggle:
		if zero == nil {
			zero = ir.IRBool(false)
		}
		return b.Fold(func(acc, _ any) any { return !acc.(ir.IRBool) }, zero)
	case ir.FoldLast:
		return b.Fold(func(_, v any) any { return v }, zero)
	case ir.FoldCollect:
		var start []any
		if arr, ok := zero.(ir.IRArray); ok {
			for _, v := range arr {
				start = append(start, v)
			}
		}
		if start == nil {
			start = []any{}
		}
		return b.Fold(func(acc, v any) any {
			prev := acc.([]any)
			out := make([]any, len(prev), len(prev)+1)
			copy(out, prev)
			return append(out, v)
		}, start)
	}
	return b.Fold(nil, zero)
}

// matcher builds a where predicate over emitted values.
func matcher(m *ir.MatchSpec, env option.Option[any]) func(any) bool {
	target, ok := matchTarget(m, env)
	return func(v any) bool {
		if !ok {
			return false
		}
		got, found := ir.Lookup(v, m.Field)
		return found && ir.Equal(got, target)
	}
}

// scopePredicate hides events whose field is present and differs from the
// target. Events without the field pass through.
func scopePredicate(m *ir.MatchSpec, env option.Option[any]) func(ir.Event) bool {
	target, ok := matchTarget(m, env)
	return func(ev ir.Event) bool {
		got, found := ev.Field(m.Field)
		if !found {
			return true
		}
		return ok && ir.Equal(got, target)
	}
}

func matchTarget(m *ir.MatchSpec, env option.Option[any]) (any, bool) {
	if m.Arg != "" {
		return lookupArg(env, m.Arg)
	}
	return m.Equals, m.Equals != nil
}

func lookupArg(env option.Option[any], path string) (any, bool) {
	v, ok := env.Value()
	if !ok {
		return nil, false
	}
	if path == ir.WholeArg {
		return v, true
	}
	return ir.Lookup(v, path)
}
