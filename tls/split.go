package tls

// Split gives every thread its own instance of T. The instance of a thread
// is dropped when the thread exits.
//
// Two Split[T] values without distinguishing options share the instance of
// a given thread. Use WithTag or Unique to keep them apart.
//
// Thread Safety: Local is safe for concurrent use; each thread gets its own
// *T, which only that thread may modify without further synchronization.
// ForEach, Walk, Clear and Close serialize with registration and exit.
type Split[T any] struct {
	r *registry[T]
}

// NewSplit returns an empty Split.
func NewSplit[T any](opts ...Option) *Split[T] {
	return &Split[T]{r: newRegistry[T](kindSplit, discard[T]{}, opts)}
}

// Local returns the calling goroutine's instance, registering it on first
// access.
func (s *Split[T]) Local() *T {
	return s.r.local(current())
}

// LocalAt returns the instance of th.
func (s *Split[T]) LocalAt(th *Thread) *T {
	return s.r.local(th.t)
}

// ForEach calls fn on the instance of every registered thread.
//
// The registry is locked for the duration; fn must not call Local for a
// thread that is not yet registered, or touch the registry in any other
// way.
func (s *Split[T]) ForEach(fn func(*T)) {
	s.r.forEach(fn)
}

// Walk is like ForEach but stops at, and returns, the first error from fn.
func (s *Split[T]) Walk(fn func(*T) error) error {
	return s.r.walk(fn)
}

// Clear detaches every thread and drops all instances. The next Local of
// any thread starts over from the zero value.
func (s *Split[T]) Clear() {
	s.r.clear()
}

// Close clears s and makes it unusable. Any later use other than Len panics
// with an error wrapping ErrClosed. Close is idempotent.
func (s *Split[T]) Close() {
	s.r.close()
}

// Len returns the number of registered threads.
func (s *Split[T]) Len() int {
	return s.r.count()
}
