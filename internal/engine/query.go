package engine

import (
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/memo"
	"github.com/roach88/requex/internal/option"
)

// Query is a compiled derivation graph: a root node evaluated under the
// fixed address KeyRoot. Queries are immutable and safe to share between
// stores.
type Query struct {
	root Node
}

// NewQuery compiles root into a query.
func NewQuery(root Node) *Query {
	return &Query{root: root}
}

// Root returns the root node.
func (q *Query) Root() Node {
	return q.root
}

// Input is the argument to Reduce.
type Input struct {
	// PreviousState is returned untouched if no event produces a new value.
	PreviousState any

	// PreviousAux is the auxiliary tree returned by the prior Reduce, or nil.
	PreviousAux *memo.Tree

	// Events are folded one at a time, in order.
	Events []ir.Event
}

// Result is the outcome of Reduce.
type Result struct {
	State any
	Aux   *memo.Tree

	// Changed reports whether any event (or the seeding pass) emitted a new
	// state. When false, State is the input's PreviousState.
	Changed bool
}

// Reduce folds the events through the graph.
//
// With no events and no previous auxiliary tree, the graph is evaluated once
// with no event in scope (the seeding pass). With no events but an existing
// tree, nothing is evaluated. Otherwise every event is reduced in order
// against the running auxiliary tree and the new state is the last value the
// root emitted.
//
// An InvariantError or ConstructionError raised during evaluation aborts the
// whole call and the previous pair is returned alongside the error.
func (q *Query) Reduce(in Input) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = asEngineError(r)
			res = Result{State: in.PreviousState, Aux: in.PreviousAux}
		}
	}()

	res = Result{State: in.PreviousState, Aux: in.PreviousAux}
	if len(in.Events) == 0 {
		if in.PreviousAux != nil {
			return res, nil
		}
		q.step(&res, option.None[ir.Event]())
		return res, nil
	}

	for _, ev := range in.Events {
		q.step(&res, option.Some(ev))
	}
	return res, nil
}

func (q *Query) step(res *Result, ev option.Option[ir.Event]) {
	next := memo.NewBuilder()
	ctx := newContext(ev, res.Aux, next)
	if v, ok := ctx.Value(KeyRoot, q.root).Value(); ok {
		res.State = v
		res.Changed = true
	}
	res.Aux = next.Freeze(res.Aux)
}

// asEngineError converts a recovered engine error panic into an error. Any
// other panic is a programming error and is re-raised.
func asEngineError(r any) error {
	switch e := r.(type) {
	case *InvariantError:
		return e
	case *ConstructionError:
		return e
	default:
		panic(r)
	}
}
