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

// reader is the per-thread copy of a broadcast value.
//
// Padded to its own cache lines: writers flip stale on every reader, and
// without padding neighbouring readers would contend on the same line.
type reader[T any] struct {
	_ cpu.CacheLinePad

	// stale is set by Write and cleared by the owning thread under the
	// read lock just before it copies the central value.
	stale atomic.Bool

	owner atomic.Pointer[Broadcast[T]]

	// Guarded by owner.mu (write lock).
	prev, next *reader[T]

	th *thread.Thread

	// copy is only touched by the owning thread.
	copy T

	_ cpu.CacheLinePad
}

// Release is the thread-exit hook. It never touches copy, so a reaped
// release needs no ordering with the reader.
func (rd *reader[T]) Release(bool) {
	if b := rd.owner.Load(); b != nil {
		b.removeReader(rd)
	}
}

// Broadcast is a value with one central copy and a private copy per reading
// thread. Write replaces the central value and marks every reader stale;
// a reader refreshes its copy on its next Read. A Read that finds the copy
// fresh takes no lock.
//
// Readers see each Write no later than their first Read after Write
// returns. A Read concurrent with a Write may return either value.
type Broadcast[T any] struct {
	mu   sync.RWMutex
	data T

	head *reader[T]
	n    int

	closed bool
	key    thread.CellKey

	id      string
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// NewBroadcast returns a Broadcast holding v. WithTag, Unique and
// WithRetainLimit have no effect: readers are always private to one
// Broadcast.
func NewBroadcast[T any](v T, opts ...Option) *Broadcast[T] {
	o := buildOptions(opts)

	b := &Broadcast[T]{
		data:    v,
		id:      uuid.NewString(),
		metrics: o.metrics,
	}
	b.logger = observability.EnrichLogger(o.logger, kindBroadcast, b.id)
	b.key = thread.CellKey{Kind: kindBroadcast, Type: reflect.TypeFor[T](), Tag: b}

	return b
}

func (b *Broadcast[T]) closedErr() error {
	return fmt.Errorf("tls: %s %s: %w", kindBroadcast, b.id, ErrClosed)
}

// Write replaces the central value and invalidates every reader.
func (b *Broadcast[T]) Write(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic(b.closedErr())
	}

	b.data = v
	for rd := b.head; rd != nil; rd = rd.next {
		rd.stale.Store(true)
	}

	b.metrics.RecordWrite(context.Background(), b.id, b.n)
}

// Read returns the calling goroutine's copy, refreshing it first if a Write
// happened since the last Read.
func (b *Broadcast[T]) Read() T {
	return b.fresh(current()).copy
}

// ReadAt is Read for an explicit thread.
func (b *Broadcast[T]) ReadAt(th *Thread) T {
	return b.fresh(th.t).copy
}

// ReadFunc passes the calling goroutine's fresh copy to fn and returns fn's
// error unchanged. fn runs without any lock held.
func (b *Broadcast[T]) ReadFunc(fn func(T) error) error {
	return fn(b.fresh(current()).copy)
}

// Apply returns fn applied to the calling goroutine's fresh copy of b.
func Apply[T, R any](b *Broadcast[T], fn func(T) R) R {
	return fn(b.fresh(current()).copy)
}

// BaseData returns the central value.
func (b *Broadcast[T]) BaseData() T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		panic(b.closedErr())
	}
	return b.data
}

// Readers returns the number of registered reader threads.
func (b *Broadcast[T]) Readers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.n
}

// Close detaches every reader and makes b unusable. Any later use panics
// with an error wrapping ErrClosed. Close is idempotent.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	detached := 0
	for rd := b.head; rd != nil; {
		next := rd.next
		rd.owner.Store(nil)
		rd.stale.Store(true)
		rd.prev, rd.next = nil, nil
		rd.th.Forget(b.key, rd)
		detached++
		rd = next
	}
	b.head = nil
	b.n = 0
	b.closed = true

	observability.LogClear(b.logger, detached, 0, true)
}

// fresh returns th's reader with an up to date copy.
func (b *Broadcast[T]) fresh(th *thread.Thread) *reader[T] {
	c, ok := th.Load(b.key)
	if !ok {
		return b.register(th)
	}

	rd := c.(*reader[T])
	if rd.stale.Load() {
		b.refresh(rd)
	}
	return rd
}

// register creates th's reader holding the current central value.
func (b *Broadcast[T]) register(th *thread.Thread) *reader[T] {
	if th.Exited() {
		panic(fmt.Errorf("tls: thread %d: %w", th.ID(), ErrExited))
	}

	rd := &reader[T]{th: th}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		panic(b.closedErr())
	}

	rd.copy = b.data
	rd.next = b.head
	if b.head != nil {
		b.head.prev = rd
	}
	b.head = rd
	b.n++
	rd.owner.Store(b)
	th.Store(b.key, rd)

	observability.LogRegister(b.logger, th.ID(), b.n)
	b.metrics.RecordRegistration(context.Background(), kindBroadcast, b.id)

	return rd
}

// refresh copies the central value into rd.
func (b *Broadcast[T]) refresh(rd *reader[T]) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		panic(b.closedErr())
	}

	// Writers hold the write lock while setting stale, so clearing it here
	// cannot hide a concurrent Write.
	rd.stale.Store(false)
	rd.copy = b.data

	b.metrics.RecordRefresh(context.Background(), b.id)
}

// removeReader unlinks rd if b still owns it.
func (b *Broadcast[T]) removeReader(rd *reader[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rd.owner.Load() != b {
		return
	}

	if rd.prev != nil {
		rd.prev.next = rd.next
	} else {
		b.head = rd.next
	}
	if rd.next != nil {
		rd.next.prev = rd.prev
	}
	rd.prev, rd.next = nil, nil
	rd.owner.Store(nil)
	b.n--

	observability.LogDeregister(b.logger, rd.th.ID(), outcomeDropped)
	b.metrics.RecordDeregistration(context.Background(), kindBroadcast, b.id, outcomeDropped)
}
