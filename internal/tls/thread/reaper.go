// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"context"
	"time"

	"github.com/kolkov/threadlocal/internal/tls/goid"
	"github.com/kolkov/threadlocal/internal/tls/observability"
)

// SetReapEvery sets how many thread creations pass between background reap
// passes. n <= 0 disables periodic reaping.
func SetReapEvery(n int) {
	if n < 0 {
		n = 0
	}
	reapEvery.Store(int64(n))
}

// maybeReap triggers a background reap every reapEvery thread creations.
//
// The pass runs in its own goroutine so the creating goroutine is not
// blocked. Concurrent passes are harmless: exit is idempotent.
func maybeReap() {
	count := attached.Add(1)

	every := reapEvery.Load()
	if every > 0 && count%uint64(every) == 0 {
		go Reap()
	}
}

// Reap exits every goroutine-bound thread whose goroutine no longer exists
// and returns how many were exited.
//
// Algorithm:
//  1. Snapshot the thread table
//  2. List live goroutine IDs via runtime.Stack(all=true)
//  3. Exit every snapshotted thread whose goroutine is not in the live set
//
// The snapshot is taken before the live list: a thread created after the
// live list was taken must not be mistaken for a dead one.
//
// Cells of reaped threads are released with reaped set, since the reaper
// has no ordering with the dead goroutine's last writes.
//
// Thread Safety: Safe for concurrent calls.
func Reap() int {
	var candidates []*Thread
	threads.Range(func(_, v any) bool {
		candidates = append(candidates, v.(*Thread))
		return true
	})
	if len(candidates) == 0 {
		return 0
	}

	liveIDs := goid.Live()
	liveSet := make(map[int64]struct{}, len(liveIDs))
	for _, gid := range liveIDs {
		liveSet[gid] = struct{}{}
	}

	reaped := 0
	for _, t := range candidates {
		if _, ok := liveSet[t.gid]; ok {
			continue
		}
		if !t.Exited() {
			t.exit(true)
			reaped++
		}
	}

	observability.LogReap(logger.Load(), len(candidates), reaped)
	metrics.Load().RecordReap(context.Background(), reaped)

	return reaped
}

// StartReaper runs Reap every interval until ctx is done. The returned
// function blocks until the reaper goroutine has stopped.
func StartReaper(ctx context.Context, interval time.Duration) (wait func()) {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return func() { <-done }
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				Reap()
			}
		}
	}()
	return func() { <-done }
}
