// Package sequence provides the infinite, explicitly stoppable generators that
// feed actors and workflows into a simulation.
package sequence

import (
	"sync/atomic"

	"github.com/wesleyorama2/rhino/internal/simerr"
)

// Cyclic repeats a fixed list forever until Stop is called.
//
// Next is safe for concurrent callers: each call atomically advances a shared
// cursor and returns the item at the new position, so N concurrent calls over
// a list of N items return every item exactly once.
type Cyclic[T any] struct {
	items    []T
	cursor   atomic.Int64
	stopped  atomic.Bool
	stopWhen func(T) bool
}

// New creates a sequence over a copy of items. An empty list is a definition
// error.
func New[T any](items []T) (*Cyclic[T], error) {
	if len(items) == 0 {
		return nil, simerr.Invalid("sequence", "items", "must not be empty")
	}
	c := &Cyclic[T]{items: append([]T(nil), items...)}
	c.cursor.Store(-1)
	return c, nil
}

// NewConditional creates a sequence that stops itself right after yielding the
// first item for which stopWhen returns true.
func NewConditional[T any](items []T, stopWhen func(T) bool) (*Cyclic[T], error) {
	if stopWhen == nil {
		return nil, simerr.Invalid("sequence", "stopWhen", "must not be nil")
	}
	c, err := New(items)
	if err != nil {
		return nil, err
	}
	c.stopWhen = stopWhen
	return c, nil
}

// Next returns the next item, wrapping to the first after the last.
// After Stop it returns simerr.ErrSequenceExhausted.
func (c *Cyclic[T]) Next() (T, error) {
	var zero T
	if c.stopped.Load() {
		return zero, simerr.ErrSequenceExhausted
	}

	n := c.cursor.Add(1)
	item := c.items[int(n%int64(len(c.items)))]

	if c.stopWhen != nil && c.stopWhen(item) {
		c.Stop()
	}
	return item, nil
}

// HasNext reports whether Next will still yield items.
func (c *Cyclic[T]) HasNext() bool {
	return !c.stopped.Load()
}

// Stop permanently disables the sequence. Calling it twice is harmless.
func (c *Cyclic[T]) Stop() {
	c.stopped.Store(true)
}

// Len returns the size of the backing list.
func (c *Cyclic[T]) Len() int {
	return len(c.items)
}
