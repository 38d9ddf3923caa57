// Package reduce is the fluent surface for assembling derivation graphs.
//
// Every combinator returns a new Builder wrapping a new node whose source is
// the previous node; builders are immutable and may be shared and extended
// from several places:
//
//	todos := reduce.ArrayOf(newTodo, added, removed)
//	count := reduce.EventsOfType("inc").Select(func(any) any { return 1 }).Sum(0)
//	q, err := reduce.Structure(map[string]any{"todos": todos, "count": count}).Build()
//
// Construction failures (a nil selector, a structure field that is not a
// builder or a plain value) stick to the builder and are reported by Build,
// never deferred to dispatch.
package reduce

import (
	"fmt"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
)

// Builder wraps the current node of a fluent chain.
type Builder struct {
	node engine.Node
	err  error
}

func wrap(n engine.Node) *Builder { return &Builder{node: n} }

func failed(code engine.ErrorCode, op, format string, args ...any) *Builder {
	return &Builder{err: engine.NewConstructionError(code, op, format, args...)}
}

// Err returns the first construction error in the chain, if any.
func (b *Builder) Err() error {
	if b == nil {
		return engine.NewConstructionError(engine.ErrCodeInvalidArgument, "build", "nil builder")
	}
	return b.err
}

// Node returns the wrapped node, or the construction error.
func (b *Builder) Node() (engine.Node, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	return b.node, nil
}

// Build compiles the chain into a query rooted at engine.KeyRoot.
func (b *Builder) Build() (*engine.Query, error) {
	n, err := b.Node()
	if err != nil {
		return nil, err
	}
	return engine.NewQuery(n), nil
}

// MustBuild is like Build but panics on error.
// Use only in tests or for graphs known to be valid.
func (b *Builder) MustBuild() *engine.Query {
	q, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q
}

// then extends the chain unless it already failed.
func (b *Builder) then(op string, ok bool, next func() engine.Node) *Builder {
	if err := b.Err(); err != nil {
		return &Builder{err: err}
	}
	if !ok {
		return failed(engine.ErrCodeInvalidArgument, op, "missing argument")
	}
	return wrap(next())
}

// Value emits v once, on the first evaluation.
func Value(v any) *Builder { return wrap(engine.Value(v)) }

// EventsOfType emits every event whose type is eventType.
func EventsOfType(eventType string) *Builder {
	if eventType == "" {
		return failed(engine.ErrCodeInvalidArgument, "eventsOfType", "empty event type")
	}
	return wrap(engine.EventOfType(eventType))
}

// AllEvents emits every event.
func AllEvents() *Builder { return wrap(engine.AnyEvent()) }

// Never never emits.
func Never() *Builder { return wrap(engine.Never()) }

// Structure builds a record. Fields holding a *Builder become nested nodes;
// every other value is a constant copied into each emitted record.
func Structure(fields map[string]any) *Builder {
	if fields == nil {
		return failed(engine.ErrCodeInvalidStructure, "structure", "fields must be a mapping, got nil")
	}
	constants := make(map[string]any)
	nodes := make(map[string]engine.Node)
	for k, v := range fields {
		child, ok := v.(*Builder)
		if !ok {
			constants[k] = v
			continue
		}
		n, err := child.Node()
		if err != nil {
			return &Builder{err: fmt.Errorf("structure field %q: %w", k, err)}
		}
		nodes[k] = n
	}
	return wrap(engine.Structure(constants, nodes))
}

// Merge emits, per tick, the values of every source that emitted.
func Merge(sources ...*Builder) *Builder {
	nodes, err := nodesOf("merge", sources)
	if err != nil {
		return &Builder{err: err}
	}
	return wrap(engine.Merge(nodes...))
}

// CombineLatest emits the latest value of every source once all have
// emitted, whenever any of them emits.
func CombineLatest(sources ...*Builder) *Builder {
	nodes, err := nodesOf("combineLatest", sources)
	if err != nil {
		return &Builder{err: err}
	}
	return wrap(engine.CombineLatest(nodes...))
}

func nodesOf(op string, sources []*Builder) ([]engine.Node, error) {
	if len(sources) == 0 {
		return nil, engine.NewConstructionError(engine.ErrCodeInvalidArgument, op, "no sources")
	}
	nodes := make([]engine.Node, len(sources))
	for i, src := range sources {
		n, err := src.Node()
		if err != nil {
			return nil, fmt.Errorf("%s source %d: %w", op, i, err)
		}
		nodes[i] = n
	}
	return nodes, nil
}

// Select maps every emitted value through f.
func (b *Builder) Select(f func(any) any) *Builder {
	return b.then("select", f != nil, func() engine.Node { return engine.Mapped(b.node, f) })
}

// Map is an alias for Select.
func (b *Builder) Map(f func(any) any) *Builder { return b.Select(f) }

// Where keeps the emitted values pred accepts.
func (b *Builder) Where(pred func(any) bool) *Builder {
	return b.then("where", pred != nil, func() engine.Node { return engine.Filtered(b.node, pred) })
}

// Filter is an alias for Where.
func (b *Builder) Filter(pred func(any) bool) *Builder { return b.Where(pred) }

// Fold accumulates the emitted values with f, starting from zero.
func (b *Builder) Fold(f func(acc, v any) any, zero any) *Builder {
	return b.then("fold", f != nil, func() engine.Node { return engine.Folding(b.node, f, zero) })
}

// Sum adds the emitted values to zero. Integers (int, int64, ir.IRInt) add
// numerically and strings concatenate; the result keeps zero's type.
func (b *Builder) Sum(zero any) *Builder {
	if err := b.Err(); err != nil {
		return &Builder{err: err}
	}
	if _, ok := summable(zero); !ok {
		return failed(engine.ErrCodeInvalidArgument, "sum", "zero must be an integer or a string, got %T", zero)
	}
	return b.Fold(add, zero)
}

// Scoped hides events failing pred from this node and everything below it.
func (b *Builder) Scoped(pred func(ir.Event) bool) *Builder {
	return b.then("scoped", pred != nil, func() engine.Node { return engine.Scoped(b.node, pred) })
}

// FlatReduce switches to the builder selector returns for the latest
// emitted value, discarding the state of the one before.
func (b *Builder) FlatReduce(selector func(any) *Builder) *Builder {
	return b.then("flatReduce", selector != nil, func() engine.Node {
		return engine.FlatReduced(b.node, func(seed any) engine.Node {
			return mustNode("flatReduce", selector(seed))
		})
	})
}

// mustNode unwraps a builder produced while a dispatch is running. The
// panic is recovered by engine.Query.Reduce and returned from Dispatch.
func mustNode(op string, b *Builder) engine.Node {
	n, err := b.Node()
	if err != nil {
		if ce, ok := err.(*engine.ConstructionError); ok {
			panic(ce)
		}
		panic(engine.NewConstructionError(engine.ErrCodeInvalidArgument, op, "%v", err))
	}
	return n
}
