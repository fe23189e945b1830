// Package tls provides per-thread data for concurrent Go programs.
//
// A thread is a goroutine. Each goroutine that touches a registry gets its
// own private instance of the element type, found again on every later
// access without locking. What happens to the instance when the goroutine
// ends depends on the registry:
//
//   - [Split] drops it
//   - [Collect] keeps it, so the coordinator can [Collect.Gather] the
//     results of finished workers
//   - [Splitter] keeps it linked and enumerable until cleared or compacted
//
// [Broadcast] is the opposite direction: one writer publishes a value and
// every reading goroutine keeps a cheap private copy that is refreshed only
// after a write.
//
// # Quick Start
//
//	counts := tls.NewCollect[int]()
//
//	var g errgroup.Group
//	for i := 0; i < 8; i++ {
//		g.Go(tls.Wrap(func() error {
//			for j := 0; j < 1000; j++ {
//				*counts.Local()++
//			}
//			return nil
//		}))
//	}
//	_ = g.Wait()
//
//	total := counts.Combine(func(acc, v int) int { return acc + v })
//	fmt.Println(total) // 8000
//
// # Threads
//
// The runtime offers neither goroutine-local storage nor a goroutine exit
// hook, so thread records are kept by goroutine ID:
//
//   - Implicit: Local and Read look the caller up by goroutine ID and
//     create its record on first use. When such a goroutine ends, its record
//     lives on until the reaper notices (see [Reap]).
//   - Explicit: [Go], [Wrap] and [Exit] end the thread deterministically
//     when the function returns. [Attach] returns a [Thread] handle whose
//     LocalAt and ReadAt variants skip the goroutine ID lookup.
//
// The reaper never touches payloads. It flags the instances of dead
// goroutines, and each registry applies its exit policy to them on its next
// ForEach, Walk, Gather, Len or iteration, on the calling goroutine. Joining
// the workers before that call is therefore enough, whether or not they
// exited explicitly.
//
// # Sharing and Identity
//
// Registries of the same kind and element type share the per-thread
// instance of a goroutine, like a process-wide thread-local variable. Set
// [WithTag] to give a family of registries its own storage, or [Unique] to
// give one registry storage nobody else can reach.
//
// # Synchronization
//
// The *T returned by Local belongs to the calling goroutine. ForEach, Walk,
// Gather and the Splitter iterators read every instance under the registry
// lock, which does not order them against unsynchronized writes from the
// owners. Join the workers first, or protect the payload itself.
//
// # Configuration
//
// The GOTLS environment variable is read at start-up:
//
//	GOTLS="reap_every=500 reap_interval=1s log_level=debug metrics=true"
//
// [Configure] applies the same settings from code, for example from a file
// loaded with [LoadConfig].
package tls
