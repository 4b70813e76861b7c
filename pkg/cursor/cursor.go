// Copyright 2024-2026 Aiku AI

// Package cursor implements an append-only sequence with a selection cursor
// that wraps around in both directions.
package cursor

// Cursor is never empty and its index is always inside the sequence.
// It is not safe for concurrent use.
type Cursor[T any] struct {
	index int
	items []T
}

// New returns a cursor over a single element, positioned on it.
func New[T any](first T) *Cursor[T] {
	return &Cursor[T]{items: []T{first}}
}

// Current returns the element under the cursor.
func (c *Cursor[T]) Current() T {
	return c.items[c.index]
}

// Index returns the position of the cursor.
func (c *Cursor[T]) Index() int {
	return c.index
}

func (c *Cursor[T]) Len() int {
	return len(c.items)
}

// First returns the element the cursor was created with.
func (c *Cursor[T]) First() T {
	return c.items[0]
}

// Advance moves the cursor forward, wrapping to the first element.
func (c *Cursor[T]) Advance() {
	c.index = (c.index + 1) % len(c.items)
}

// Retreat moves the cursor backward, wrapping to the last element.
func (c *Cursor[T]) Retreat() {
	c.index = (c.index - 1 + len(c.items)) % len(c.items)
}

// Seek moves the cursor to i modulo the current length. Negative values wrap
// from the end.
func (c *Cursor[T]) Seek(i int) {
	n := len(c.items)
	c.index = ((i % n) + n) % n
}

// Get returns the element at i without moving the cursor.
func (c *Cursor[T]) Get(i int) (T, bool) {
	if i < 0 || i >= len(c.items) {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

// IndexFunc returns the first index whose element satisfies pred, or -1.
func (c *Cursor[T]) IndexFunc(pred func(T) bool) int {
	for i, item := range c.items {
		if pred(item) {
			return i
		}
	}
	return -1
}

// Append adds item at the end. The cursor stays where it is.
func (c *Cursor[T]) Append(item T) {
	c.items = append(c.items, item)
}
