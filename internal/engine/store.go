package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/memo"
)

// Store holds the current (state, auxiliary) pair of one query and is the
// only thing that ever replaces it.
//
// Thread-safety: none. Dispatch calls on one store must be serialized by
// the caller; the store performs no locking.
type Store struct {
	query    *Query
	state    any
	aux      *memo.Tree
	clock    Ticker
	observer Observer
	snapshot bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSnapshot seeds the store from a prior (state, auxiliary) pair instead
// of running the seeding pass.
func WithSnapshot(state any, aux *memo.Tree) StoreOption {
	return func(s *Store) {
		s.state = state
		s.aux = aux
		s.snapshot = true
	}
}

// WithObserver attaches an observer notified after every dispatch.
func WithObserver(o Observer) StoreOption {
	return func(s *Store) {
		s.observer = o
	}
}

// WithLogger logs dispatches through logger (see SlogObserver). It composes
// with WithObserver.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.observer = NewMultiObserver(s.observer, NewSlogObserver(logger))
	}
}

// WithClock numbers dispatches with c. Used to continue numbering across
// ReplaceReducer, and by tests that need resettable numbering.
func WithClock(c Ticker) StoreOption {
	return func(s *Store) {
		s.clock = c
	}
}

// NewStore wraps q. Unless WithSnapshot is given, the seeding pass runs
// immediately so State is defined before the first dispatch.
func NewStore(q *Query, opts ...StoreOption) (*Store, error) {
	s := &Store{query: q, clock: NewClock()}
	for _, opt := range opts {
		opt(s)
	}
	if s.snapshot {
		return s, nil
	}

	res, err := q.Reduce(Input{})
	if err != nil {
		return nil, err
	}
	s.state, s.aux = res.State, res.Aux
	return s, nil
}

// Dispatch reduces exactly one event and replaces the current pair. The
// state reference changes only if the graph emitted a new value. On error
// the previous pair is kept.
func (s *Store) Dispatch(ev ir.Event) error {
	return s.dispatch(ev.Type, []ir.Event{ev})
}

// DispatchBatch reduces events in order as one dispatch. The result equals
// dispatching them one at a time.
func (s *Store) DispatchBatch(events ...ir.Event) error {
	eventType := ""
	if len(events) > 0 {
		eventType = events[len(events)-1].Type
	}
	return s.dispatch(eventType, events)
}

func (s *Store) dispatch(eventType string, events []ir.Event) error {
	tick := s.clock.Next()
	start := time.Now()

	res, err := s.query.Reduce(Input{
		PreviousState: s.state,
		PreviousAux:   s.aux,
		Events:        events,
	})
	if err == nil {
		s.state, s.aux = res.State, res.Aux
	}

	if s.observer != nil {
		s.observer.OnDispatch(context.Background(), DispatchInfo{
			Tick:      tick,
			EventType: eventType,
			Events:    len(events),
			Changed:   err == nil && res.Changed,
			Duration:  time.Since(start),
			Err:       err,
		})
	}
	return err
}

// State returns the current state. The reference is stable until a
// dispatch produces a new value; callers must treat it as immutable.
func (s *Store) State() any {
	return s.state
}

// Aux returns the current auxiliary tree.
func (s *Store) Aux() *memo.Tree {
	return s.aux
}

// Tick returns the number of dispatches attempted so far.
func (s *Store) Tick() int64 {
	return s.clock.Current()
}

// Query returns the query the store runs.
func (s *Store) Query() *Query {
	return s.query
}

// ReplaceReducer returns a new store running next, seeded with this store's
// current pair. Memoized state is found by address and tagged with the kind
// of node that wrote it: a subtree of next keeps the state at its address
// when the kinds agree, and reseeds when the address is new or was written
// by another kind of node (a fold whose zero changed type included).
func (s *Store) ReplaceReducer(next *Query) (*Store, error) {
	return NewStore(next,
		WithSnapshot(s.state, s.aux),
		WithObserver(s.observer),
		WithClock(NewClockAt(s.clock.Current())),
	)
}
