package thread

import (
	"sync"
	"testing"
)

// TestIDPoolSequential verifies fresh IDs are minted in order.
func TestIDPoolSequential(t *testing.T) {
	var p idPool

	for i := 0; i < 10; i++ {
		if got := p.alloc(); got != uint32(i) {
			t.Errorf("alloc() #%d = %d, want %d", i, got, i)
		}
	}

	minted, free := p.stats()
	if minted != 10 || free != 0 {
		t.Errorf("stats() = (%d, %d), want (10, 0)", minted, free)
	}
}

// TestIDPoolReuseFIFO verifies released IDs come back in release order.
func TestIDPoolReuseFIFO(t *testing.T) {
	var p idPool

	for i := 0; i < 5; i++ {
		p.alloc()
	}

	p.release(3)
	p.release(1)
	p.release(4)

	want := []uint32{3, 1, 4, 5}
	for i, w := range want {
		if got := p.alloc(); got != w {
			t.Errorf("alloc() #%d = %d, want %d", i, got, w)
		}
	}
}

// TestIDPoolReset verifies reset starts minting from zero again.
func TestIDPoolReset(t *testing.T) {
	var p idPool
	p.alloc()
	p.alloc()
	p.release(0)

	p.reset()

	if got := p.alloc(); got != 0 {
		t.Errorf("alloc() after reset = %d, want 0", got)
	}
	if minted, free := p.stats(); minted != 1 || free != 0 {
		t.Errorf("stats() = (%d, %d), want (1, 0)", minted, free)
	}
}

// TestIDPoolConcurrent verifies no ID is handed out twice while held.
func TestIDPoolConcurrent(t *testing.T) {
	var p idPool

	const (
		workers = 16
		rounds  = 200
	)

	var (
		mu   sync.Mutex
		held = make(map[uint32]bool)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				id := p.alloc()

				mu.Lock()
				if held[id] {
					t.Errorf("ID %d handed out twice", id)
				}
				held[id] = true
				mu.Unlock()

				mu.Lock()
				delete(held, id)
				mu.Unlock()

				p.release(id)
			}
		}()
	}
	wg.Wait()

	minted, free := p.stats()
	if minted != free {
		t.Errorf("after all releases minted=%d free=%d, want equal", minted, free)
	}
	if minted > workers {
		t.Errorf("minted = %d, want at most %d", minted, workers)
	}
}

func BenchmarkIDPoolAllocRelease(b *testing.B) {
	var p idPool
	for i := 0; i < b.N; i++ {
		p.release(p.alloc())
	}
}
