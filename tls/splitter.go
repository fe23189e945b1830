package tls

import (
	"cmp"
	"context"
	"iter"
	"slices"
)

// Splitter gives every thread its own instance of T and keeps the instance
// linked and enumerable after the thread exits, until Clear, Close or
// Compact removes it.
//
// Without WithRetainLimit a Splitter used by short-lived goroutines grows
// with every goroutine that ever touched it. Call Compact periodically or
// set a limit in that case.
type Splitter[T any] struct {
	r *registry[T]
}

// NewSplitter returns an empty Splitter.
func NewSplitter[T any](opts ...Option) *Splitter[T] {
	return &Splitter[T]{r: newRegistry[T](kindSplitter, retain[T]{}, opts)}
}

// Local returns the calling goroutine's instance, registering it on first
// access.
func (s *Splitter[T]) Local() *T {
	return s.r.local(current())
}

// LocalAt returns the instance of th.
func (s *Splitter[T]) LocalAt(th *Thread) *T {
	return s.r.local(th.t)
}

// All returns an iterator over every linked instance. The Splitter stays
// locked until the loop ends or breaks.
//
//	for v := range s.All() {
//		total += *v
//	}
func (s *Splitter[T]) All() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		r := s.r
		r.lockOpen()
		defer r.mu.Unlock()
		r.settleLocked()

		for sl := r.head; sl != nil; sl = sl.next {
			if !yield(&sl.data) {
				return
			}
		}
	}
}

// Values returns a copy of every linked instance in enumeration order.
func (s *Splitter[T]) Values() []T {
	r := s.r
	r.lockOpen()
	defer r.mu.Unlock()
	r.settleLocked()

	out := make([]T, 0, r.n)
	for sl := r.head; sl != nil; sl = sl.next {
		out = append(out, sl.data)
	}
	return out
}

// ForEach calls fn on every linked instance. The Splitter is locked for the
// duration.
func (s *Splitter[T]) ForEach(fn func(*T)) {
	s.r.forEach(fn)
}

// Walk is like ForEach but stops at, and returns, the first error from fn.
func (s *Splitter[T]) Walk(fn func(*T) error) error {
	return s.r.walk(fn)
}

// Sort reorders the enumeration by cmp. The sort is stable and moves
// slots, not payloads: every thread keeps its own instance.
func (s *Splitter[T]) Sort(cmp func(a, b T) int) {
	r := s.r
	r.lockOpen()
	defer r.mu.Unlock()
	r.settleLocked()

	slots := make([]*slot[T], 0, r.n)
	for sl := r.head; sl != nil; sl = sl.next {
		slots = append(slots, sl)
	}
	slices.SortStableFunc(slots, func(a, b *slot[T]) int {
		return cmp(a.data, b.data)
	})

	var prev *slot[T]
	for _, sl := range slots {
		sl.prev = prev
		sl.next = nil
		if prev != nil {
			prev.next = sl
		} else {
			r.head = sl
		}
		prev = sl
	}
}

// SortOrdered sorts s in ascending order.
func SortOrdered[T cmp.Ordered](s *Splitter[T]) {
	s.Sort(cmp.Compare[T])
}

// Compact unlinks the instances of exited threads and returns how many were
// removed. fold, if not nil, sees each instance before it is dropped, which
// lets the caller merge it into a live one.
func (s *Splitter[T]) Compact(fold func(*T)) int {
	r := s.r
	r.lockOpen()
	defer r.mu.Unlock()
	r.settleLocked()

	removed := 0
	for sl := r.head; sl != nil; {
		next := sl.next
		if sl.dead {
			if fold != nil {
				fold(&sl.data)
			}
			r.detach(sl)
			r.metrics.RecordDeregistration(context.Background(), r.kind, r.id, outcomeCompacted)
			removed++
		}
		sl = next
	}
	r.dead = nil

	return removed
}

// Clear detaches every thread and drops all instances, including those of
// exited threads.
func (s *Splitter[T]) Clear() {
	s.r.clear()
}

// Close clears s and makes it unusable. Any later use other than Len panics
// with an error wrapping ErrClosed.
func (s *Splitter[T]) Close() {
	s.r.close()
}

// Len returns the number of linked instances, live or retained.
func (s *Splitter[T]) Len() int {
	return s.r.count()
}
