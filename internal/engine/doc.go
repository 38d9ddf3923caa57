// Package engine implements the requex derivation engine.
//
// A graph of derivation nodes is compiled once into a Query and then fed
// events one at a time. Each node is a pure function of a Context to an
// optional new value; the Context gives it a private, path-addressed slice
// of the auxiliary memo tree (see package memo) so folds, collections, and
// switch-latest nodes can carry their own bookkeeping between ticks without
// recomputing unrelated subtrees.
//
// EXECUTION MODEL:
//
// Single-threaded and synchronous. Reduce never blocks, performs no I/O, and
// has no suspension points. A Store owns the current (state, auxiliary)
// pair exclusively and replaces it only in Dispatch.
//
// Change detection is by reference: Dispatch replaces State only when the
// root node emits. A structure that saw no changes stays silent, so callers
// can skip work when State returns the same reference as before.
//
// ERRORS:
//
// Graph definition problems are ConstructionErrors reported by the reduce
// builder at build time. Invariant violations inside a reduction (an
// unknown delta kind, a non-delta emitted to a collection) are
// InvariantErrors; they abort the dispatch and leave the store untouched.
// Events no node matches are ignored; that is normal operation.
package engine
