package tls

import "context"

// Collect gives every thread its own instance of T and keeps the instance
// when the thread exits, so it can be gathered later.
//
// Typical use: workers accumulate into Local(), the coordinator calls
// Gather after joining them.
//
//	sums := tls.NewCollect[int]()
//	var g errgroup.Group
//	for _, part := range parts {
//		g.Go(tls.Wrap(func() error {
//			for _, v := range part {
//				*sums.Local() += v
//			}
//			return nil
//		}))
//	}
//	_ = g.Wait()
//	total := 0
//	for _, v := range sums.Gather() {
//		total += v
//	}
type Collect[T any] struct {
	r *registry[T]
}

// NewCollect returns an empty Collect.
func NewCollect[T any](opts ...Option) *Collect[T] {
	return &Collect[T]{r: newRegistry[T](kindCollect, preserve[T]{}, opts)}
}

// Local returns the calling goroutine's instance, registering it on first
// access.
func (c *Collect[T]) Local() *T {
	return c.r.local(current())
}

// LocalAt returns the instance of th.
func (c *Collect[T]) LocalAt(th *Thread) *T {
	return c.r.local(th.t)
}

// Gather returns the instances kept from exited threads followed by those
// of every live thread, and resets them. Live threads stay registered with
// the zero value; kept instances are dropped. Every payload is returned by
// exactly one Gather.
func (c *Collect[T]) Gather() []T {
	return c.r.gather()
}

// ForEach calls fn on every live instance and every kept one, without
// resetting them. The registry is locked for the duration.
func (c *Collect[T]) ForEach(fn func(*T)) {
	c.r.forEach(fn)
}

// Walk is like ForEach but stops at, and returns, the first error from fn.
func (c *Collect[T]) Walk(fn func(*T) error) error {
	return c.r.walk(fn)
}

// Combine folds fn over every live and kept instance, starting from the zero
// value. Nothing is reset.
func (c *Collect[T]) Combine(fn func(acc, v T) T) T {
	var acc T
	c.r.forEach(func(v *T) {
		acc = fn(acc, *v)
	})
	return acc
}

// Clear detaches every thread and drops all live and kept instances.
func (c *Collect[T]) Clear() {
	c.r.clear()
}

// Close clears c and makes it unusable. Any later use other than Len panics
// with an error wrapping ErrClosed.
func (c *Collect[T]) Close() {
	c.r.close()
}

// Len returns the number of live registered threads.
func (c *Collect[T]) Len() int {
	return c.r.count()
}

// GatherFlattened passes every element of every live and kept slice to
// sink, then empties the slices. Live slices keep their capacity.
// sink runs with the registry locked.
func GatherFlattened[E any](c *Collect[[]E], sink func(E)) {
	r := c.r
	r.lockOpen()
	defer r.mu.Unlock()
	r.settleLocked()

	items := 0
	for s := r.head; s != nil; s = s.next {
		for _, e := range s.data {
			sink(e)
		}
		items += len(s.data)
		clear(s.data)
		s.data = s.data[:0]
	}
	for _, sub := range r.buf {
		for _, e := range sub {
			sink(e)
		}
		items += len(sub)
	}
	r.buf = nil

	r.metrics.RecordGather(context.Background(), r.kind, r.id, items)
}

// AppendGathered appends the flattened contents of c to dst and returns the
// extended slice.
func AppendGathered[E any](dst []E, c *Collect[[]E]) []E {
	GatherFlattened(c, func(e E) {
		dst = append(dst, e)
	})
	return dst
}
