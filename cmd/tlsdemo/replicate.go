package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/threadlocal/tls"
)

// stopValue tells readers to exit.
const stopValue = -1

type replicateArgs struct {
	workArgs
	delay time.Duration
}

func replicateCmd() *ffcli.Command {
	var args replicateArgs
	fs := newFlagSet("replicate")
	args.register(fs, 25)
	fs.DurationVar(&args.delay, "delay", 10*time.Millisecond, "pause after each write")

	return &ffcli.Command{
		Name:       "replicate",
		ShortUsage: "tlsdemo replicate [-threads N] [-n writes] [-delay D]",
		ShortHelp:  "Broadcast values to reader goroutines",
		FlagSet:    fs,
		Exec: func(ctx context.Context, rest []string) error {
			if err := args.validate(rest); err != nil {
				return err
			}
			if args.delay < 0 {
				return fmt.Errorf("-delay must not be negative, got %v", args.delay)
			}
			return runReplicate(ctx, args)
		},
	}
}

// runReplicate starts readers spinning on a Broadcast, publishes -n random
// values and then the stop value. Readers report how often they saw a new
// value.
func runReplicate(ctx context.Context, args replicateArgs) error {
	repl := tls.NewBroadcast(1)
	defer repl.Close()

	var (
		outMu sync.Mutex
		ready sync.WaitGroup
	)
	printf := func(format string, a ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(Stdout, format, a...)
	}

	g, _ := errgroup.WithContext(ctx)
	for i := 1; i <= args.threads; i++ {
		ready.Add(1)
		g.Go(tls.Wrap(func() error {
			th := tls.Attach()
			last := repl.ReadAt(th)
			ready.Done()

			updates, reads := 0, 0
			for {
				v := repl.ReadAt(th)
				if v == stopValue {
					printf("thread %d: exiting after %d updates, last value read %d times\n", i, updates, reads)
					return nil
				}
				if v != last {
					last = v
					updates++
					reads = 0
				}
				reads++
				runtime.Gosched()
			}
		}))
	}
	ready.Wait()

	for i := 0; i < args.n; i++ {
		// Never send the stop value by accident.
		v := int(rand.Int32N(1 << 30))
		printf("main: sending value %d\n", v)
		repl.Write(v)
		time.Sleep(args.delay)
	}
	printf("main: sending stop\n")
	repl.Write(stopValue)

	return g.Wait()
}
