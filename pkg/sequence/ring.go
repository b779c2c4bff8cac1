// Package sequence provides generic in-memory sequences.
package sequence

import "iter"

// Ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest
// element. Ring is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding at most capacity elements. capacity < 1 is
// treated as 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v and returns the evicted element, if any.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	tail := (r.head + r.size) % len(r.items)
	if r.size == len(r.items) {
		evicted, ok = r.items[r.head], true
		r.items[r.head] = v
		r.head = (r.head + 1) % len(r.items)
		return evicted, ok
	}
	r.items[tail] = v
	r.size++
	return evicted, false
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// At returns the i-th element counted from the oldest.
func (r *Ring[T]) At(i int) (T, bool) {
	if i < 0 || i >= r.size {
		var zero T
		return zero, false
	}
	return r.items[(r.head+i)%len(r.items)], true
}

// Last returns the newest element.
func (r *Ring[T]) Last() (T, bool) {
	return r.At(r.size - 1)
}

// All yields elements oldest first.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < r.size; i++ {
			if !yield(r.items[(r.head+i)%len(r.items)]) {
				return
			}
		}
	}
}

// Slice copies the elements, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, 0, r.size)
	for v := range r.All() {
		out = append(out, v)
	}
	return out
}
