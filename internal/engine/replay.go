package engine

// # Replay and Determinism
//
// The engine holds no hidden inputs: a Query is a pure function from
// (previous auxiliary tree, events) to (state, next tree). Replaying the same
// event sequence through the same graph therefore produces the same state,
// and canonical JSON makes "the same" checkable with a hash:
//
//	[journal events] -> Replay -> state -> ir.StateHash
//
// Two properties make this hold:
//
//  1. Strict one-event-at-a-time folding. A batch is never collapsed to its
//     last event, so filters and folds see the same sequence whether events
//     arrive singly or together.
//  2. Deterministic addresses. Every node's auxiliary state is addressed by
//     its position in the graph (field names, source indices, item keys), so
//     the same graph always reads the state it wrote.

import (
	"errors"
	"fmt"

	"github.com/roach88/requex/internal/ir"
)

// ErrNondeterministic is returned by VerifyDeterminism when two replays of
// the same events disagree.
var ErrNondeterministic = errors.New("replay is not deterministic")

// Replay dispatches events one at a time through a fresh store over q.
func Replay(q *Query, events []ir.Event, opts ...StoreOption) (*Store, error) {
	s, err := NewStore(q, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay: seed: %w", err)
	}
	for i, ev := range events {
		if err := s.Dispatch(ev); err != nil {
			return nil, fmt.Errorf("replay: event %d (%s): %w", i, ev.Type, err)
		}
	}
	return s, nil
}

// VerifyDeterminism replays events twice through fresh stores and compares
// the canonical state hashes. It returns the hash on success.
func VerifyDeterminism(q *Query, events []ir.Event) (string, error) {
	var hashes [2]string
	for i := range hashes {
		s, err := Replay(q, events)
		if err != nil {
			return "", err
		}
		h, err := ir.StateHash(s.State())
		if err != nil {
			return "", err
		}
		hashes[i] = h
	}
	if hashes[0] != hashes[1] {
		return "", fmt.Errorf("%w: %s != %s", ErrNondeterministic, hashes[0], hashes[1])
	}
	return hashes[0], nil
}
