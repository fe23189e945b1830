// Package thread implements per-goroutine thread records for the
// thread-local registries.
//
// A Thread owns a table of storage cells keyed by CellKey. Registries and
// broadcast values keep each goroutine's private state in that table, so
// the state lives exactly as long as the thread record does. When a thread
// exits the Release method of every cell runs once; this is the thread-exit
// hook the registries use to deregister their slots.
//
// Threads are found in two ways:
//   - Current(): implicit lookup by goroutine ID. A record is created on the
//     first call from a goroutine. The runtime does not report goroutine
//     exit, so dead goroutines are found by the reaper (Reap), which lists
//     live goroutine IDs and exits every record whose goroutine is gone.
//   - Attach()/Exit(): explicit handle owned by the caller, torn down
//     deterministically.
//
// Every thread also gets a small integer ID from a reuse pool. IDs are
// returned to the pool at exit and handed out again in FIFO order.
//
// Performance:
//   - Current() hit: goroutine ID (~1µs) + sync.Map load
//   - Current() miss: ID allocation + store, once per goroutine
//   - Reap(): one runtime.Stack(all=true) pass
package thread
