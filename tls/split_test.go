package tls_test

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/threadlocal/tls"
)

type splitTag struct{}

func TestSplit_DefaultInitialized(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())

	assert.Equal(t, 0, *s.Local())
	assert.Equal(t, 1, s.Len())
}

func TestSplit_SameThreadSameInstance(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())

	p := s.Local()
	*p = 7

	assert.Same(t, p, s.Local())
	assert.Equal(t, 7, *s.Local())
	assert.Equal(t, 1, s.Len())
}

func TestSplit_SharedByDefault(t *testing.T) {
	a := tls.NewSplit[string]()
	b := tls.NewSplit[string]()

	*a.Local() = "shared"
	assert.Equal(t, "shared", *b.Local())
	assert.Same(t, a.Local(), b.Local())
}

func TestSplit_TagsSeparate(t *testing.T) {
	a := tls.NewSplit[int]()
	b := tls.NewSplit[int](tls.WithTag(splitTag{}))
	c := tls.NewSplit[int](tls.WithTag("other"))

	*a.Local() = 1
	*b.Local() = 2
	*c.Local() = 3

	assert.Equal(t, 1, *a.Local())
	assert.Equal(t, 2, *b.Local())
	assert.Equal(t, 3, *c.Local())
}

func TestSplit_UniqueSeparate(t *testing.T) {
	a := tls.NewSplit[int](tls.Unique())
	b := tls.NewSplit[int](tls.Unique())

	*a.Local() = 10
	assert.Equal(t, 0, *b.Local())
}

func TestSplit_ForEach(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())

	const n = 8
	var (
		ready sync.WaitGroup
		done  = make(chan struct{})
		g     errgroup.Group
	)
	for i := 1; i <= n; i++ {
		ready.Add(1)
		g.Go(tls.Wrap(func() error {
			*s.Local() = i
			ready.Done()
			<-done
			return nil
		}))
	}
	ready.Wait()

	sum := 0
	s.ForEach(func(v *int) { sum += *v })
	assert.Equal(t, n*(n+1)/2, sum)
	assert.Equal(t, n, s.Len())

	close(done)
	require.NoError(t, g.Wait())

	// Exited threads drop their instance.
	assert.Equal(t, 0, s.Len())
	sum = 0
	s.ForEach(func(v *int) { sum += *v })
	assert.Zero(t, sum)
}

func TestSplit_DiscardOnReap(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			*s.Local() = 1
		}()
	}
	wg.Wait()

	reapUntil(t, func() bool { return s.Len() == 0 })
}

func TestSplit_Walk(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())
	*s.Local() = 3

	errStop := errors.New("stop")

	err := s.Walk(func(v *int) error {
		if *v == 3 {
			return errStop
		}
		return nil
	})
	assert.Same(t, errStop, err)

	require.NoError(t, s.Walk(func(*int) error { return nil }))
}

func TestSplit_ForEachPanicReleasesLock(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())
	s.Local()

	assert.Panics(t, func() {
		s.ForEach(func(*int) { panic("boom") })
	})

	// The lock must be free again.
	assert.Equal(t, 1, s.Len())
}

func TestSplit_Clear(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())
	*s.Local() = 42

	s.Clear()
	assert.Equal(t, 0, s.Len())

	assert.Equal(t, 0, *s.Local(), "re-registered instance must start from zero")
	assert.Equal(t, 1, s.Len())
}

func TestSplit_NoPersistenceAcrossInstances(t *testing.T) {
	first := tls.NewSplit[float64]()
	*first.Local() = 2.5
	first.Close()

	second := tls.NewSplit[float64]()
	assert.Zero(t, *second.Local())
	assert.Equal(t, 1, second.Len())
}

func TestSplit_Close(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())
	s.Local()

	s.Close()
	s.Close()

	verifyPanicsWith(t, tls.ErrClosed, func() { s.Local() })
	assert.Equal(t, 0, s.Len())
}

func TestSplit_LocalAt(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())

	th := tls.NewThread()
	*s.LocalAt(th) = 5
	*s.Local() = 1

	assert.Equal(t, 5, *s.LocalAt(th))
	assert.Equal(t, 2, s.Len())

	th.Exit()
	assert.Equal(t, 1, s.Len())
	verifyPanicsWith(t, tls.ErrExited, func() { s.LocalAt(th) })
}

func TestSplit_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := tls.NewSplit[int](tls.Unique(), tls.WithLogger(logger))
	runWorkers(1, func(int) { s.Local() })
	s.Clear()

	out := buf.String()
	assert.Contains(t, out, "thread registered")
	assert.Contains(t, out, "thread deregistered")
	assert.Contains(t, out, "outcome=dropped")
	assert.Contains(t, out, "registry.kind=split")
	assert.Contains(t, out, "registry cleared")
}

func TestSplit_Metrics(t *testing.T) {
	m := newMetricsLog()
	s := tls.NewSplit[int](tls.Unique(), tls.WithMetrics(m))

	runWorkers(4, func(int) { s.Local() })

	assert.Equal(t, 4, m.get("register.split"))
	assert.Equal(t, 4, m.get("deregister.split.dropped"))
}

func BenchmarkSplit_Local(b *testing.B) {
	s := tls.NewSplit[int](tls.Unique())
	s.Local()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		*s.Local()++
	}
}

func BenchmarkSplit_LocalAt(b *testing.B) {
	s := tls.NewSplit[int](tls.Unique())
	th := tls.Attach()
	s.LocalAt(th)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		*s.LocalAt(th)++
	}
}

func BenchmarkSplit_LocalParallel(b *testing.B) {
	s := tls.NewSplit[int](tls.Unique())
	b.RunParallel(func(pb *testing.PB) {
		p := s.Local()
		for pb.Next() {
			*p++
			_ = s.Local()
		}
	})
}
