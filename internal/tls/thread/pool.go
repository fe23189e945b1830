// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import "sync"

// idPool hands out small thread IDs and takes them back at thread exit.
//
// Algorithm:
//   - alloc pops from the front of the free queue (FIFO), so recycled IDs
//     are handed out in the order they were freed
//   - when the queue is empty a new ID is minted from next
//   - release appends to the back of the queue
//
// There is no upper bound: the number of concurrently live threads is not
// limited, the pool only keeps IDs dense.
type idPool struct {
	mu   sync.Mutex
	free []uint32
	next uint32
}

// alloc returns an unused ID.
func (p *idPool) alloc() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) > 0 {
		id := p.free[0]
		p.free = p.free[1:]
		return id
	}

	id := p.next
	p.next++
	return id
}

// release returns id to the pool so a later thread can reuse it.
func (p *idPool) release(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = append(p.free, id)
}

// reset forgets all IDs. Only for tests.
func (p *idPool) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = nil
	p.next = 0
}

// stats returns the number of minted IDs and how many of them are free.
func (p *idPool) stats() (minted, free int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return int(p.next), len(p.free)
}
