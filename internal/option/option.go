// Package option provides Option, the "no applicable update" vs "new value"
// result threaded through every derivation node.
//
// Option is a value type. The zero Option is None, so there is no shared
// empty singleton to guard.
package option

import "errors"

// ErrEmptyValue is returned by Get when the option holds no value.
var ErrEmptyValue = errors.New("option: empty value")

// Option holds either exactly one value of type T or nothing.
type Option[T any] struct {
	value T
	ok    bool
}

// Some wraps v.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

// None returns the empty option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// FromPair builds an option from the common (value, ok) return shape.
func FromPair[T any](v T, ok bool) Option[T] {
	if !ok {
		return None[T]()
	}
	return Some(v)
}

// IsSome reports whether the option holds a value.
func (o Option[T]) IsSome() bool { return o.ok }

// IsNone reports whether the option is empty.
func (o Option[T]) IsNone() bool { return !o.ok }

// Get returns the held value, or ErrEmptyValue if the option is empty.
func (o Option[T]) Get() (T, error) {
	if !o.ok {
		var zero T
		return zero, ErrEmptyValue
	}
	return o.value, nil
}

// MustGet is like Get but panics with ErrEmptyValue on an empty option.
// Unwrapping None is a programming error, not a runtime condition.
func (o Option[T]) MustGet() T {
	if !o.ok {
		panic(ErrEmptyValue)
	}
	return o.value
}

// Value returns the held value and whether it was present.
func (o Option[T]) Value() (T, bool) {
	return o.value, o.ok
}

// Otherwise returns the held value, or def when empty.
func (o Option[T]) Otherwise(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// Filter keeps the value only if pred accepts it.
func (o Option[T]) Filter(pred func(T) bool) Option[T] {
	if !o.ok || !pred(o.value) {
		return None[T]()
	}
	return o
}

// Map applies f to the held value.
func Map[T, U any](o Option[T], f func(T) U) Option[U] {
	if !o.ok {
		return None[U]()
	}
	return Some(f(o.value))
}

// Bind returns None if o is empty, else f(value).
func Bind[T, U any](o Option[T], f func(T) Option[U]) Option[U] {
	if !o.ok {
		return None[U]()
	}
	return f(o.value)
}

// Reduce returns f(seed, value) if o holds a value, else seed.
func Reduce[T, A any](o Option[T], f func(A, T) A, seed A) A {
	if !o.ok {
		return seed
	}
	return f(seed, o.value)
}
