// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sys/cpu"

	"github.com/kolkov/threadlocal/internal/tls/observability"
	"github.com/kolkov/threadlocal/internal/tls/thread"
)

// Registry kinds. They are part of the cell key, so registries of different
// kinds never share storage.
const (
	kindSplit     = "split"
	kindCollect   = "collect"
	kindSplitter  = "splitter"
	kindBroadcast = "broadcast"
)

// Deregistration outcomes reported to logs and metrics.
const (
	outcomeDropped   = "dropped"
	outcomePreserved = "preserved"
	outcomeRetained  = "retained"
	outcomeEvicted   = "evicted"
	outcomeCompacted = "compacted"
)

// slot is the per-thread storage of a registry.
//
// The slot lives in the thread's cell table, so it can outlive the registry
// that linked it. owner is the weak back-reference: non-nil exactly while the
// slot is linked into owner's list. Every transition of owner happens under
// the owner's lock.
type slot[T any] struct {
	data T

	owner atomic.Pointer[registry[T]]

	// orphaned is set when the reaper released s. The owner applies its
	// exit policy on its next coordinator operation.
	orphaned atomic.Bool

	// Guarded by owner.mu.
	prev, next *slot[T]
	dead       bool

	th *thread.Thread
}

// Release is the thread-exit hook.
//
// A reaped slot is only flagged: its payload was written by a goroutine the
// reaper has no ordering with, so it is left for the owner's coordinator,
// which has joined the workers before it looks.
func (s *slot[T]) Release(reaped bool) {
	r := s.owner.Load()
	if r == nil {
		return
	}
	if reaped {
		s.orphaned.Store(true)
		r.orphans.Add(1)
		return
	}
	r.removeThread(s)
}

// exitPolicy decides what happens to a slot when its thread exits.
// onThreadExit runs with r.mu held and returns the outcome name.
type exitPolicy[T any] interface {
	onThreadExit(r *registry[T], s *slot[T]) string
}

// discard drops the payload of exited threads.
type discard[T any] struct{}

func (discard[T]) onThreadExit(r *registry[T], s *slot[T]) string {
	r.detach(s)
	return outcomeDropped
}

// preserve moves the payload of exited threads into the buffer.
type preserve[T any] struct{}

func (preserve[T]) onThreadExit(r *registry[T], s *slot[T]) string {
	r.buf = append(r.buf, s.data)
	r.detach(s)
	return outcomePreserved
}

// retain keeps slots of exited threads linked and enumerable.
type retain[T any] struct{}

func (retain[T]) onThreadExit(r *registry[T], s *slot[T]) string {
	s.dead = true
	r.dead = append(r.dead, s)
	r.enforceRetainLimit()
	return outcomeRetained
}

// registry is the shared core of Split, Collect and Splitter.
//
// Locking: mu guards the slot list, the buffer and the dead queue. It is
// taken once per thread on registration, once on thread exit, and by every
// coordinator operation. Local on an already registered slot takes no lock.
type registry[T any] struct {
	mu sync.Mutex

	head *slot[T]
	n    int

	// buf holds payloads of exited threads (preserve policy).
	buf []T

	// dead holds slots of exited threads in exit order (retain policy).
	dead        []*slot[T]
	retainLimit int

	// orphans counts reaped slots not yet settled. It may overcount.
	orphans atomic.Int64

	policy exitPolicy[T]
	key    thread.CellKey
	unique bool
	closed atomic.Bool

	kind    string
	id      string
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	_ cpu.CacheLinePad
}

// newRegistry builds a registry of the given kind.
func newRegistry[T any](kind string, policy exitPolicy[T], opts []Option) *registry[T] {
	o := buildOptions(opts)

	r := &registry[T]{
		policy:      policy,
		retainLimit: o.retainLimit,
		unique:      o.unique,
		kind:        kind,
		id:          uuid.NewString(),
		metrics:     o.metrics,
	}
	r.logger = observability.EnrichLogger(o.logger, kind, r.id)

	tag := o.tag
	if o.unique {
		tag = r
	}
	r.key = thread.CellKey{Kind: kind, Type: reflect.TypeFor[T](), Tag: tag}

	return r
}

func (r *registry[T]) closedErr() error {
	return fmt.Errorf("tls: %s %s: %w", r.kind, r.id, ErrClosed)
}

func (r *registry[T]) checkOpen() {
	if r.closed.Load() {
		panic(r.closedErr())
	}
}

// lockOpen locks r.mu, panicking if r is closed.
func (r *registry[T]) lockOpen() {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		panic(r.closedErr())
	}
}

// local returns th's payload, registering th on first access.
func (r *registry[T]) local(th *thread.Thread) *T {
	r.checkOpen()

	var s *slot[T]
	if c, ok := th.Load(r.key); ok {
		s = c.(*slot[T])
	} else {
		if th.Exited() {
			panic(fmt.Errorf("tls: thread %d: %w", th.ID(), ErrExited))
		}
		s = &slot[T]{th: th}
		th.Store(r.key, s)
	}

	// A slot linked by another registry with the same key is shared as is.
	if s.owner.Load() == nil {
		r.register(s)
	}
	return &s.data
}

// register (re-)initializes s to the zero value and links it at the head.
func (r *registry[T]) register(s *slot[T]) {
	r.lockOpen()
	defer r.mu.Unlock()

	var zero T
	s.data = zero
	s.dead = false
	s.orphaned.Store(false)
	r.link(s)
	s.owner.Store(r)

	observability.LogRegister(r.logger, s.th.ID(), r.n)
	r.metrics.RecordRegistration(context.Background(), r.kind, r.id)
}

// removeThread applies the exit policy to s if r still owns it.
func (r *registry[T]) removeThread(s *slot[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.owner.Load() != r || s.dead {
		return
	}
	r.exitLocked(s)
}

// exitLocked applies the exit policy to s. Caller holds r.mu.
func (r *registry[T]) exitLocked(s *slot[T]) {
	outcome := r.policy.onThreadExit(r, s)

	observability.LogDeregister(r.logger, s.th.ID(), outcome)
	r.metrics.RecordDeregistration(context.Background(), r.kind, r.id, outcome)
}

// settleLocked applies the exit policy to every slot released by the
// reaper. Caller holds r.mu.
func (r *registry[T]) settleLocked() {
	if r.orphans.Swap(0) == 0 {
		return
	}

	// Collected first: the retain limit may unlink slots further down.
	var orphaned []*slot[T]
	for s := r.head; s != nil; s = s.next {
		if !s.dead && s.orphaned.Load() {
			orphaned = append(orphaned, s)
		}
	}
	for _, s := range orphaned {
		if s.owner.Load() == r && !s.dead {
			r.exitLocked(s)
		}
	}
}

// link pushes s at the head of the list. Caller holds r.mu.
func (r *registry[T]) link(s *slot[T]) {
	s.prev = nil
	s.next = r.head
	if r.head != nil {
		r.head.prev = s
	}
	r.head = s
	r.n++
}

// unlink removes s from the list. Caller holds r.mu.
func (r *registry[T]) unlink(s *slot[T]) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		r.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.prev, s.next = nil, nil
	r.n--
}

// detach unlinks s, zeroes it and drops the owner reference.
// Caller holds r.mu.
func (r *registry[T]) detach(s *slot[T]) {
	r.unlink(s)

	var zero T
	s.data = zero
	s.dead = false
	s.orphaned.Store(false)
	s.owner.Store(nil)
}

// enforceRetainLimit drops the oldest dead slots beyond the retain limit.
// Caller holds r.mu.
func (r *registry[T]) enforceRetainLimit() {
	if r.retainLimit <= 0 || len(r.dead) <= r.retainLimit {
		return
	}

	evict := len(r.dead) - r.retainLimit
	for _, s := range r.dead[:evict] {
		if s.owner.Load() == r && s.dead {
			r.detach(s)
			r.metrics.RecordDeregistration(context.Background(), r.kind, r.id, outcomeEvicted)
		}
	}
	r.dead = append(r.dead[:0:0], r.dead[evict:]...)

	observability.LogRetainEvicted(r.logger, evict, r.retainLimit)
}

// forEach calls fn on every linked payload, then on every buffered one.
func (r *registry[T]) forEach(fn func(*T)) {
	r.lockOpen()
	defer r.mu.Unlock()
	r.settleLocked()

	for s := r.head; s != nil; s = s.next {
		fn(&s.data)
	}
	for i := range r.buf {
		fn(&r.buf[i])
	}
}

// walk is forEach that stops at the first error.
func (r *registry[T]) walk(fn func(*T) error) error {
	r.lockOpen()
	defer r.mu.Unlock()
	r.settleLocked()

	for s := r.head; s != nil; s = s.next {
		if err := fn(&s.data); err != nil {
			return err
		}
	}
	for i := range r.buf {
		if err := fn(&r.buf[i]); err != nil {
			return err
		}
	}
	return nil
}

// gather moves every linked payload into the buffer, resetting the slots,
// and hands the buffer to the caller.
func (r *registry[T]) gather() []T {
	r.lockOpen()
	defer r.mu.Unlock()
	r.settleLocked()

	var zero T
	for s := r.head; s != nil; s = s.next {
		r.buf = append(r.buf, s.data)
		s.data = zero
	}

	out := r.buf
	r.buf = nil

	r.metrics.RecordGather(context.Background(), r.kind, r.id, len(out))
	return out
}

// clear detaches every slot and drops all buffered and retained data.
func (r *registry[T]) clear() {
	r.lockOpen()
	defer r.mu.Unlock()

	r.clearLocked(false)
}

// close clears r and makes it unusable.
func (r *registry[T]) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return
	}

	// Nobody else can build this key, so the cells would only sit in the
	// thread tables until thread exit.
	if r.unique {
		for s := r.head; s != nil; s = s.next {
			s.th.Forget(r.key, s)
		}
	}

	r.clearLocked(true)
	r.closed.Store(true)
}

func (r *registry[T]) clearLocked(closing bool) {
	detached := 0
	for s := r.head; s != nil; {
		next := s.next
		r.detach(s)
		detached++
		s = next
	}

	dropped := len(r.buf)
	r.head = nil
	r.n = 0
	r.buf = nil
	r.dead = nil

	observability.LogClear(r.logger, detached, dropped, closing)
}

// count returns the number of linked slots.
func (r *registry[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed.Load() {
		r.settleLocked()
	}
	return r.n
}
