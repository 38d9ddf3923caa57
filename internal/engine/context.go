package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/memo"
	"github.com/roach88/requex/internal/option"
)

// Storage keys used to address auxiliary state. Field names of a structure
// and collection item keys are used as path segments alongside these.
const (
	KeyRoot   = "ROOT"
	KeySource = "SOURCE"
	KeyInner  = "INNER"
	KeyExtra  = "EXTRA"
)

// Context is the execution environment of one tick. It hands every node a
// private, path-addressed view of the previous auxiliary generation and the
// next one being built.
//
// Nodes never see each other's addresses: a parent picks a key for each
// child and calls Value or FreshValue, which rebinds both views to that
// child's subtree for the duration of the call.
type Context struct {
	event option.Option[ir.Event]
	prev  *memo.Tree
	next  *memo.Builder
	path  []string
}

func newContext(event option.Option[ir.Event], prev *memo.Tree, next *memo.Builder) *Context {
	return &Context{event: event, prev: prev, next: next}
}

// Event returns the event in scope, or None if there is none this tick or
// an enclosing scope has hidden it.
func (c *Context) Event() option.Option[ir.Event] {
	return c.event
}

// Value evaluates child at key with its carried auxiliary state.
//
// If the child emits, the value is written to the VALUE slot of the next
// generation at key. If it does not, the previous VALUE (if any) is carried
// forward, so absence of emission never resets. The child's result is
// returned unchanged.
func (c *Context) Value(key string, child Node) option.Option[any] {
	return c.descend(key, child, c.prev.Child(key))
}

// FreshValue is Value with the previous generation forced empty, so a newly
// constructed node cannot inherit leftover state from a reused key.
func (c *Context) FreshValue(key string, child Node) option.Option[any] {
	return c.descend(key, child, nil)
}

func (c *Context) descend(key string, child Node, prev *memo.Tree) option.Option[any] {
	outerPrev, outerNext := c.prev, c.next
	next := outerNext.Child(key)

	// State left by another kind of node reseeds instead of being read.
	kind := kindOf(child)
	next.SetKind(kind)
	if k := prev.Kind(); k != nil && k != kind {
		prev = nil
	}

	c.prev, c.next = prev, next
	c.path = append(c.path, key)
	defer func() {
		c.prev, c.next = outerPrev, outerNext
		c.path = c.path[:len(c.path)-1]
	}()

	result := child.Reduce(c)
	if v, ok := result.Value(); ok {
		next.SetValue(v)
	} else if pv, ok := prev.Value(); ok {
		next.SetValue(pv)
	}
	return result
}

// Store writes a bookkeeping value at the current address, independent of
// the VALUE slot.
func (c *Context) Store(key string, v any) {
	c.next.Store(key, v)
}

// Stored reads a bookkeeping value written at the current address during
// the previous tick.
func (c *Context) Stored(key string) option.Option[any] {
	return option.FromPair(c.prev.Stored(key))
}

// PreviousReduction reads the current node's own VALUE from the previous
// generation.
func (c *Context) PreviousReduction() option.Option[any] {
	return option.FromPair(c.prev.Value())
}

// PreviousReductionOf reads the previous VALUE of the child at key.
func (c *Context) PreviousReductionOf(key string) option.Option[any] {
	return option.FromPair(c.prev.Child(key).Value())
}

// ScopedBy evaluates action with the event hidden when it fails pred.
// An already hidden event stays hidden and pred is not consulted.
func (c *Context) ScopedBy(pred func(ir.Event) bool, action func() option.Option[any]) option.Option[any] {
	ev, ok := c.event.Value()
	if !ok || pred(ev) {
		return action()
	}

	c.event = option.None[ir.Event]()
	defer func() { c.event = option.Some(ev) }()
	return action()
}

// dropChild discards anything written at key during this tick.
func (c *Context) dropChild(key string) {
	c.next.DropChild(key)
}

// Address renders the current memo path, e.g. "ROOT/todos/SOURCE".
func (c *Context) Address() string {
	return strings.Join(c.path, "/")
}

func (c *Context) invariant(code ErrorCode, format string, args ...any) *InvariantError {
	return &InvariantError{Code: code, Message: fmt.Sprintf(format, args...), Address: c.Address()}
}
