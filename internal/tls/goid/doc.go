// Package goid identifies goroutines.
//
// Go does not expose goroutine identity, so the ID is recovered from the
// header line of runtime.Stack output ("goroutine 123 [running]:"). The
// same parser enumerates every live goroutine, which is how the thread
// package detects that a goroutine has exited.
//
// Goroutine IDs are assigned by the runtime from a monotonically increasing
// counter and are never reused within a process, so an ID that disappears
// from the live set belongs to a goroutine that has finished.
//
// Performance:
//   - Current(): ~1-2µs (runtime.Stack of the calling goroutine)
//   - Live(): stops the world; ~1ms per 1000 goroutines
package goid
