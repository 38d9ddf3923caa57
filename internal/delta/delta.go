// Package delta describes changes to a keyed collection.
package delta

import "fmt"

// Kind discriminates the Delta variants.
type Kind int

const (
	// KindAdded inserts or overwrites the item at Key.
	KindAdded Kind = iota + 1

	// KindRemoved drops the item at Key. Removing a missing key is a no-op.
	KindRemoved

	// KindCleared empties the collection.
	KindCleared
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindAdded:
		return "added"
	case KindRemoved:
		return "removed"
	case KindCleared:
		return "cleared"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Delta is one change to a collection.
//
// Key must be comparable and unique within a collection instance. Args is
// whatever the collection's item factory needs to build the item.
type Delta struct {
	Kind Kind
	Key  any
	Args any
}

// Added constructs an Added(key, args) delta.
func Added(key, args any) Delta {
	return Delta{Kind: KindAdded, Key: key, Args: args}
}

// Removed constructs a Removed(key) delta.
func Removed(key any) Delta {
	return Delta{Kind: KindRemoved, Key: key}
}

// Cleared constructs a Cleared() delta.
func Cleared() Delta {
	return Delta{Kind: KindCleared}
}

// String implements fmt.Stringer.
func (d Delta) String() string {
	switch d.Kind {
	case KindAdded:
		return fmt.Sprintf("added(%v)", d.Key)
	case KindRemoved:
		return fmt.Sprintf("removed(%v)", d.Key)
	default:
		return d.Kind.String()
	}
}
