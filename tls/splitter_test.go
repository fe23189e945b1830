package tls_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/threadlocal/tls"
)

func TestSplitter_RetainsAfterExit(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())

	runWorkers(10, func(i int) { *s.Local() = i })

	assert.Equal(t, 10, s.Len())

	got := s.Values()
	slices.Sort(got)
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitter_All(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())
	runWorkers(5, func(i int) { *s.Local() = i + 1 })

	sum := 0
	for v := range s.All() {
		sum += *v
	}
	assert.Equal(t, 15, sum)

	// Breaking out of the loop releases the lock.
	n := 0
	for range s.All() {
		n++
		break
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, s.Len())
}

func TestSplitter_AllMutates(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())
	runWorkers(3, func(int) { *s.Local() = 1 })

	for v := range s.All() {
		*v *= 10
	}
	assert.Equal(t, []int{10, 10, 10}, s.Values())
}

func TestSplitter_Sort(t *testing.T) {
	s := tls.NewSplitter[string](tls.Unique())
	words := []string{"pear", "apple", "fig", "banana"}
	runWorkers(len(words), func(i int) { *s.Local() = words[i] })

	tls.SortOrdered(s)
	if diff := cmp.Diff([]string{"apple", "banana", "fig", "pear"}, s.Values()); diff != "" {
		t.Errorf("SortOrdered mismatch (-want +got):\n%s", diff)
	}

	s.Sort(func(a, b string) int { return len(a) - len(b) })
	if diff := cmp.Diff([]string{"fig", "pear", "apple", "banana"}, s.Values()); diff != "" {
		t.Errorf("Sort by length mismatch (-want +got):\n%s", diff)
	}

	s.Sort(func(a, b string) int { return strings.Compare(b, a) })
	if diff := cmp.Diff([]string{"pear", "fig", "banana", "apple"}, s.Values()); diff != "" {
		t.Errorf("Sort descending mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 4, s.Len())
}

func TestSplitter_SortKeepsOwnership(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())

	*s.Local() = 50
	runWorkers(3, func(i int) { *s.Local() = i })

	tls.SortOrdered(s)
	assert.Equal(t, []int{0, 1, 2, 50}, s.Values())

	// The live thread still owns its instance after the relink.
	*s.Local() = -1
	tls.SortOrdered(s)
	assert.Equal(t, []int{-1, 0, 1, 2}, s.Values())
}

func TestSplitter_Compact(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())

	live := s.Local()
	*live = 1
	runWorkers(4, func(int) { *s.Local() = 10 })
	require.Equal(t, 5, s.Len())

	removed := s.Compact(func(v *int) { *live += *v })

	assert.Equal(t, 4, removed)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 41, *s.Local())

	assert.Zero(t, s.Compact(nil))
}

func TestSplitter_RetainLimit(t *testing.T) {
	m := newMetricsLog()
	s := tls.NewSplitter[int](tls.Unique(), tls.WithRetainLimit(3), tls.WithMetrics(m))

	for i := 0; i < 6; i++ {
		runWorkers(1, func(int) { *s.Local() = i })
	}

	assert.Equal(t, 3, s.Len())
	got := s.Values()
	slices.Sort(got)
	assert.Equal(t, []int{3, 4, 5}, got, "oldest retained slots are evicted first")

	assert.Equal(t, 6, m.get("deregister.splitter.retained"))
	assert.Equal(t, 3, m.get("deregister.splitter.evicted"))
}

func TestSplitter_RetainLimitSparesLive(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique(), tls.WithRetainLimit(1))

	*s.Local() = 100
	for i := range 5 {
		runWorkers(1, func(int) { *s.Local() = i })
	}

	assert.Equal(t, 2, s.Len())
	assert.ElementsMatch(t, []int{100, 4}, s.Values())
}

func TestSplitter_ClearDropsRetained(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())
	runWorkers(3, func(int) { *s.Local() = 7 })
	*s.Local() = 8

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Values())
	assert.Equal(t, 0, *s.Local())
	assert.Zero(t, s.Compact(nil))
}

func TestSplitter_DistinctTagsIndependent(t *testing.T) {
	type first struct{}
	type second struct{}

	a := tls.NewSplitter[int](tls.WithTag(first{}))
	b := tls.NewSplitter[int](tls.WithTag(second{}))

	runWorkers(4, func(i int) {
		*a.Local() = i
		*b.Local() = i * 100
	})

	assert.ElementsMatch(t, []int{0, 1, 2, 3}, a.Values())
	assert.ElementsMatch(t, []int{0, 100, 200, 300}, b.Values())
}

func TestSplitter_Walk(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())
	runWorkers(3, func(i int) { *s.Local() = i })

	errNegative := errors.New("negative")
	visited := 0
	err := s.Walk(func(v *int) error {
		visited++
		return errNegative
	})
	assert.ErrorIs(t, err, errNegative)
	assert.Equal(t, 1, visited)
}

func TestSplitter_Close(t *testing.T) {
	s := tls.NewSplitter[int](tls.Unique())
	s.Local()
	s.Close()

	verifyPanicsWith(t, tls.ErrClosed, func() { s.Values() })
	verifyPanicsWith(t, tls.ErrClosed, func() {
		for range s.All() {
		}
	})
	verifyPanicsWith(t, tls.ErrClosed, func() { tls.SortOrdered(s) })
	verifyPanicsWith(t, tls.ErrClosed, func() { s.Compact(nil) })
}

func BenchmarkSplitter_Sort(b *testing.B) {
	s := tls.NewSplitter[int](tls.Unique())
	runWorkers(256, func(i int) { *s.Local() = (i * 7919) % 256 })
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tls.SortOrdered(s)
	}
}
