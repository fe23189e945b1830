// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/kolkov/threadlocal/internal/tls/goid"
	"github.com/kolkov/threadlocal/internal/tls/observability"
)

// CellKey addresses one storage cell inside a thread.
//
// Two registries that build equal keys share the cell of a given thread.
// Tag must be comparable.
type CellKey struct {
	// Kind is the registry family ("split", "collect", "splitter", "broadcast").
	Kind string

	// Type is the element type stored in the cell.
	Type reflect.Type

	// Tag differentiates otherwise identical registries. nil is the shared
	// default.
	Tag any
}

// Cell is per-thread storage owned by a Thread.
type Cell interface {
	// Release is called exactly once when the owning thread exits.
	//
	// reaped is true when the reaper found the goroutine gone. Nothing orders
	// the goroutine's last writes before such a call, so a reaped Release
	// must not read or write state the goroutine owned.
	Release(reaped bool)
}

// Thread is the record of one thread of execution.
//
// A Thread is either bound to a goroutine (Current, Attach) or detached
// (New). Cells are only touched by the owning goroutine, except during exit
// which runs after the goroutine has stopped using them.
type Thread struct {
	// id is the small reusable thread ID.
	id uint32

	// gid is the goroutine ID, 0 for detached threads.
	gid int64

	// cells maps CellKey to Cell.
	cells sync.Map

	// exited is set once, by the first call to exit.
	exited atomic.Bool
}

// Process-wide thread state.
var (
	// threads maps goroutine IDs to their *Thread.
	// Using sync.Map: each goroutine stores its own entry once and then only
	// loads it, which is the access pattern sync.Map is built for.
	threads sync.Map

	// ids is the thread ID reuse pool.
	ids idPool

	// attached counts thread creations to trigger periodic reaping.
	attached atomic.Uint64

	// reapEvery is the number of creations between background reap passes.
	// 0 disables periodic reaping.
	reapEvery atomic.Int64

	logger  atomic.Pointer[slog.Logger]
	metrics atomic.Pointer[metricsBox]
)

// metricsBox lets an interface value live in an atomic.Pointer.
type metricsBox struct {
	observability.MetricsRecorder
}

// DefaultReapEvery is the default number of thread creations between
// background reap passes.
const DefaultReapEvery = 1000

func init() {
	reapEvery.Store(DefaultReapEvery)
	logger.Store(observability.Discard)
	metrics.Store(&metricsBox{observability.NoopMetrics{}})
}

// Current returns the Thread of the calling goroutine, creating it on first
// use.
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
func Current() *Thread {
	gid := goid.Current()

	// Fast path: existing record.
	if v, ok := threads.Load(gid); ok {
		return v.(*Thread)
	}

	// Slow path: first access from this goroutine. No other goroutine
	// stores under this gid, so a plain Store cannot lose a record.
	t := &Thread{id: ids.alloc(), gid: gid}
	threads.Store(gid, t)

	maybeReap()

	return t
}

// Lookup returns the Thread of the calling goroutine without creating one.
func Lookup() (*Thread, bool) {
	v, ok := threads.Load(goid.Current())
	if !ok {
		return nil, false
	}
	return v.(*Thread), true
}

// New returns a detached Thread that is not bound to any goroutine.
//
// Detached threads are never reaped; they live until Exit is called. They
// let a logical worker keep its state while it hops between goroutines.
func New() *Thread {
	return &Thread{id: ids.alloc()}
}

// ID returns the small reusable ID of t.
func (t *Thread) ID() uint32 { return t.id }

// GID returns the goroutine ID t is bound to, or 0 if t is detached.
func (t *Thread) GID() int64 { return t.gid }

// Exited reports whether t has exited.
func (t *Thread) Exited() bool { return t.exited.Load() }

// Load returns the cell stored under key.
func (t *Thread) Load(key CellKey) (Cell, bool) {
	v, ok := t.cells.Load(key)
	if !ok {
		return nil, false
	}
	return v.(Cell), true
}

// Store stores c under key, replacing any previous cell.
func (t *Thread) Store(key CellKey, c Cell) {
	t.cells.Store(key, c)
}

// Forget removes the cell under key if it is still c. The cell is not
// released.
func (t *Thread) Forget(key CellKey, c Cell) {
	t.cells.CompareAndDelete(key, c)
}

// Cells returns the number of cells t holds.
func (t *Thread) Cells() int {
	n := 0
	t.cells.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Exit tears t down: every cell is released, the goroutine binding is
// dropped and the ID returns to the pool. Exit is idempotent.
//
// Exit must not race with the owning goroutine still using t. After Exit,
// Current on the same goroutine creates a fresh Thread.
func (t *Thread) Exit() {
	t.exit(false)
}

func (t *Thread) exit(reaped bool) {
	if !t.exited.CompareAndSwap(false, true) {
		return
	}

	if t.gid != 0 {
		threads.CompareAndDelete(t.gid, t)
	}

	n := 0
	t.cells.Range(func(k, v any) bool {
		t.cells.Delete(k)
		v.(Cell).Release(reaped)
		n++
		return true
	})

	ids.release(t.id)

	observability.LogThreadExit(logger.Load(), t.id, t.gid, n, reaped)
}

// Live returns the number of goroutine-bound threads that have not exited.
func Live() int {
	n := 0
	threads.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stats describes the process-wide thread state.
type Stats struct {
	// Live is the number of goroutine-bound threads not yet exited.
	Live int

	// MintedIDs is the number of distinct thread IDs ever handed out.
	MintedIDs int

	// FreeIDs is the number of IDs waiting for reuse.
	FreeIDs int
}

// GetStats returns a snapshot of the thread state.
func GetStats() Stats {
	minted, free := ids.stats()
	return Stats{
		Live:      Live(),
		MintedIDs: minted,
		FreeIDs:   free,
	}
}

// SetLogger sets the logger used for thread lifecycle events. nil restores
// the discarding default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = observability.Discard
	}
	logger.Store(l)
}

// SetMetrics sets the recorder used for reaper metrics. nil restores the
// no-op default.
func SetMetrics(m observability.MetricsRecorder) {
	if m == nil {
		m = observability.NoopMetrics{}
	}
	metrics.Store(&metricsBox{m})
}

// Reset exits every goroutine-bound thread and resets the ID pool.
//
// Thread Safety: NOT safe for concurrent use. Only for tests.
func Reset() {
	threads.Range(func(_, v any) bool {
		v.(*Thread).exit(false)
		return true
	})
	threads.Clear()
	ids.reset()
	attached.Store(0)
}
