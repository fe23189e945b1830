// Copyright 2025 The threadlocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tls

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/kolkov/threadlocal/internal/tls/config"
	"github.com/kolkov/threadlocal/internal/tls/observability"
	"github.com/kolkov/threadlocal/internal/tls/thread"
)

// Thread is a handle to the thread record of a goroutine.
//
// Holding a handle lets hot loops use LocalAt and ReadAt, which skip the
// goroutine ID lookup, and lets the owner tear the thread down at a known
// point with Exit instead of waiting for the reaper.
type Thread struct {
	t *thread.Thread
}

// Attach returns the thread of the calling goroutine, creating it if needed.
// Every call from the same goroutine refers to the same thread until it
// exits.
func Attach() *Thread {
	return &Thread{t: thread.Current()}
}

// NewThread returns a thread that is not bound to any goroutine. It is only
// reachable through its handle and lives until Exit.
func NewThread() *Thread {
	return &Thread{t: thread.New()}
}

// ID returns the small integer ID of th. IDs of exited threads are reused.
func (th *Thread) ID() uint32 { return th.t.ID() }

// Exited reports whether th has exited.
func (th *Thread) Exited() bool { return th.t.Exited() }

// Exit runs the thread-exit handling of every registry and broadcast value
// th has touched: Split drops its instance, Collect keeps it for Gather,
// Splitter retains it and broadcast readers are removed. Exit is idempotent.
//
// Exit may be called from any goroutine, but the goroutine owning th must be
// done with the instances it got from th.
func (th *Thread) Exit() { th.t.Exit() }

// current returns the thread of the calling goroutine.
func current() *thread.Thread {
	return thread.Current()
}

// Exit tears down the thread of the calling goroutine if it has one.
// Storage used after Exit starts from a fresh thread.
func Exit() {
	if t, ok := thread.Lookup(); ok {
		t.Exit()
	}
}

// Go runs fn in a new goroutine and exits its thread when fn returns or
// panics.
func Go(fn func()) {
	go func() {
		defer Exit()
		fn()
	}()
}

// Wrap returns a function that runs fn and then exits the calling
// goroutine's thread. It fits errgroup.Group.Go:
//
//	g.Go(tls.Wrap(func() error {
//		*counts.Local()++
//		return nil
//	}))
func Wrap(fn func() error) func() error {
	return func() error {
		defer Exit()
		return fn()
	}
}

// Reap exits the threads of goroutines that have terminated without calling
// Exit and returns how many were found. It also runs in the background
// every few thousand thread creations and, if configured, on a timer.
func Reap() int {
	return thread.Reap()
}

// Stats describes the process-wide thread state.
type Stats = thread.Stats

// GetStats returns a snapshot of the thread state.
func GetStats() Stats {
	return thread.GetStats()
}

// Config is the process-wide configuration. See Configure.
type Config = config.Config

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return config.Default()
}

// ConfigFromEnv parses the GOTLS environment variable.
func ConfigFromEnv() (Config, error) {
	return config.FromEnv()
}

// LoadConfig reads a YAML or JSON configuration file.
func LoadConfig(path string) (Config, error) {
	return config.FromFile(path)
}

var (
	reaperMu   sync.Mutex
	stopReaper func()
)

// Configure applies cfg process-wide. Registries and broadcast values
// created afterwards pick up the logger, metrics and retain limit; reaper
// settings take effect immediately.
func Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("tls: configure: %w", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("tls: configure: %w", err)
	}
	if logger == nil {
		logger = observability.Discard
	}

	var metrics MetricsRecorder = NoopMetrics{}
	if cfg.Metrics {
		metrics = NewMetricsRecorder()
	}

	defaultLogger.Store(logger)
	defaultMetrics.Store(&metricsBox{metrics})
	defaultRetainLimit.Store(int64(cfg.RetainLimit))

	thread.SetLogger(logger)
	thread.SetMetrics(metrics)
	thread.SetReapEvery(cfg.ReapEvery)

	reaperMu.Lock()
	defer reaperMu.Unlock()

	if stopReaper != nil {
		stopReaper()
		stopReaper = nil
	}
	if cfg.ReapInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		wait := thread.StartReaper(ctx, cfg.ReapInterval)
		stopReaper = func() {
			cancel()
			wait()
		}
	}

	return nil
}

func init() {
	if _, ok := os.LookupEnv(config.EnvVar); !ok {
		return
	}
	cfg, err := config.FromEnv()
	if err == nil {
		err = Configure(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadlocal: ignoring %s: %v\n", config.EnvVar, err)
	}
}
