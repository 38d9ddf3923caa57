// Package plist implements a persistent cons list with structural sharing.
//
// The nil *List is the empty list. Every operation returns a new list and
// never mutates its input, so tails are freely shared between generations.
package plist

// List is an immutable cons cell.
type List[T any] struct {
	head T
	tail *List[T]
}

// Nil returns the empty list.
func Nil[T any]() *List[T] {
	return nil
}

// Cons prepends head to tail.
func Cons[T any](head T, tail *List[T]) *List[T] {
	return &List[T]{head: head, tail: tail}
}

// IsEmpty reports whether l is the empty list.
func (l *List[T]) IsEmpty() bool {
	return l == nil
}

// Head returns the first element. It panics on the empty list.
func (l *List[T]) Head() T {
	if l == nil {
		panic("plist: head of empty list")
	}
	return l.head
}

// Tail returns the list without its first element. The tail of the empty
// list is the empty list.
func (l *List[T]) Tail() *List[T] {
	if l == nil {
		return nil
	}
	return l.tail
}

// Len counts the elements.
func (l *List[T]) Len() int {
	return Reduce(l, func(n int, _ T) int { return n + 1 }, 0)
}

// Slice copies the elements head to tail into a new slice.
func (l *List[T]) Slice() []T {
	return Reduce(l, func(acc []T, x T) []T { return append(acc, x) }, make([]T, 0, l.Len()))
}

// Values is Slice with the element type erased. It lets renderers treat
// lists like any other sequence without knowing T.
func (l *List[T]) Values() []any {
	return Reduce(l, func(acc []any, x T) []any { return append(acc, x) }, make([]any, 0, l.Len()))
}

// Reduce folds over l from head to tail.
func Reduce[T, A any](l *List[T], f func(A, T) A, seed A) A {
	acc := seed
	for cur := l; cur != nil; cur = cur.tail {
		acc = f(acc, cur.head)
	}
	return acc
}

// Reverse returns the elements in reverse order.
func Reverse[T any](l *List[T]) *List[T] {
	return Reduce(l, func(acc *List[T], x T) *List[T] { return Cons(x, acc) }, Nil[T]())
}

// Map applies f to every element, preserving order.
func Map[T, U any](l *List[T], f func(T) U) *List[U] {
	return Reverse(Reduce(l, func(acc *List[U], x T) *List[U] { return Cons(f(x), acc) }, Nil[U]()))
}

// Filter keeps the elements pred accepts, preserving order.
func Filter[T any](l *List[T], pred func(T) bool) *List[T] {
	return Reverse(Reduce(l, func(acc *List[T], x T) *List[T] {
		if pred(x) {
			return Cons(x, acc)
		}
		return acc
	}, Nil[T]()))
}

// Of builds a list whose head is xs[0].
func Of[T any](xs ...T) *List[T] {
	l := Nil[T]()
	for i := len(xs) - 1; i >= 0; i-- {
		l = Cons(xs[i], l)
	}
	return l
}
