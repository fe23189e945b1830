package tls_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/threadlocal/tls"
)

func TestAttach_SameThread(t *testing.T) {
	a := tls.Attach()
	b := tls.Attach()

	assert.Equal(t, a.ID(), b.ID())
	assert.False(t, a.Exited())
}

func TestExit_DeregistersEverywhere(t *testing.T) {
	split := tls.NewSplit[int](tls.Unique())
	coll := tls.NewCollect[int](tls.Unique())
	splitter := tls.NewSplitter[int](tls.Unique())
	bc := tls.NewBroadcast(0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		*split.Local() = 1
		*coll.Local() = 2
		*splitter.Local() = 3
		bc.Read()
		tls.Exit()
	}()
	wg.Wait()

	assert.Equal(t, 0, split.Len())
	assert.Equal(t, 0, coll.Len())
	assert.Equal(t, []int{2}, coll.Gather())
	assert.Equal(t, []int{3}, splitter.Values())
	assert.Equal(t, 0, bc.Readers())
}

func TestExit_StorageStartsOver(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())

	*s.Local() = 9
	first := tls.Attach()
	tls.Exit()

	assert.True(t, first.Exited())
	assert.Equal(t, 0, *s.Local())
	assert.False(t, tls.Attach().Exited())
}

func TestExit_NoThread(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NotPanics(t, tls.Exit)
	}()
	<-done
}

func TestGo(t *testing.T) {
	c := tls.NewCollect[int](tls.Unique())

	released := make(chan struct{})
	tls.Go(func() {
		*c.Local() = 5
		close(released)
	})
	<-released

	require.Eventually(t, func() bool { return c.Len() == 0 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []int{5}, c.Gather())
}

func TestWrap_PanicStillExits(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique())

	err := func() (err any) {
		defer func() { err = recover() }()
		f := tls.Wrap(func() error {
			*s.Local() = 1
			panic("boom")
		})
		_ = f()
		return nil
	}()

	assert.Equal(t, "boom", err)
	assert.Equal(t, 0, s.Len(), "Wrap exits the thread on panic")
}

func TestThreadIDsReused(t *testing.T) {
	a := tls.NewThread()
	id := a.ID()
	a.Exit()

	// IDs come back in FIFO order, so churn until id is handed out again.
	reused := false
	for i := 0; i < 10000 && !reused; i++ {
		th := tls.NewThread()
		reused = th.ID() == id
		th.Exit()
	}
	assert.True(t, reused)
}

func TestReap(t *testing.T) {
	var (
		th *tls.Thread
		wg sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		th = tls.Attach()
	}()
	wg.Wait()

	reapUntil(t, th.Exited)
	assert.False(t, tls.Attach().Exited(), "the calling goroutine must survive reaping")
}

func TestConfigure(t *testing.T) {
	defer func() {
		require.NoError(t, tls.Configure(tls.DefaultConfig()))
	}()

	cfg := tls.DefaultConfig()
	cfg.ReapEvery = 0
	cfg.ReapInterval = time.Millisecond
	cfg.RetainLimit = 2
	require.NoError(t, tls.Configure(cfg))

	// The retain limit becomes the default of new Splitters.
	s := tls.NewSplitter[int](tls.Unique())
	runWorkers(5, func(i int) { *s.Local() = i })
	assert.Equal(t, 2, s.Len())

	// The ticker reaps without explicit calls.
	c := tls.NewCollect[int](tls.Unique())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		*c.Local() = 7
	}()
	wg.Wait()
	require.Eventually(t, func() bool { return c.Len() == 0 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []int{7}, c.Gather())
}

func TestConfigure_Invalid(t *testing.T) {
	cfg := tls.DefaultConfig()
	cfg.LogLevel = "chatty"
	assert.Error(t, tls.Configure(cfg))

	cfg = tls.DefaultConfig()
	cfg.ReapEvery = -1
	assert.Error(t, tls.Configure(cfg))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reap_every: 0\nlog_level: debug\n"), 0o600))

	cfg, err := tls.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.ReapEvery)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestWithLogger_Nil(t *testing.T) {
	s := tls.NewSplit[int](tls.Unique(), tls.WithLogger(nil), tls.WithMetrics(nil))
	assert.NotPanics(t, func() { *s.Local() = 1 })
}

func TestWithLogger_Broadcast(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := tls.NewBroadcast(1, tls.WithLogger(logger))
	b.Read()
	b.Close()

	assert.Contains(t, buf.String(), "registry.kind=broadcast")
	assert.Contains(t, buf.String(), "registry cleared")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
