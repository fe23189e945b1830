package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/threadlocal/tls"
)

func accumulateCmd() *ffcli.Command {
	var args workArgs
	fs := newFlagSet("accumulate")
	args.register(fs, 1<<20)

	return &ffcli.Command{
		Name:       "accumulate",
		ShortUsage: "tlsdemo accumulate [-threads N] [-n N]",
		ShortHelp:  "Sum cube roots serially and with a Splitter per goroutine",
		FlagSet:    fs,
		Exec: func(ctx context.Context, rest []string) error {
			if err := args.validate(rest); err != nil {
				return err
			}
			return runAccumulate(ctx, args)
		},
	}
}

func runAccumulate(ctx context.Context, args workArgs) error {
	const value = 12.0

	fmt.Fprintln(Stdout, "Serial accumulating")
	start := time.Now()
	serial := 0.0
	for i := 0; i < args.n; i++ {
		serial += math.Cbrt(value)
	}
	fmt.Fprintf(Stdout, " result avg: %.6f\n", avg(serial, args.n))
	fmt.Fprintf(Stdout, " completed in %v\n", time.Since(start))

	fmt.Fprintln(Stdout, "Concurrently accumulating")
	start = time.Now()
	acc := tls.NewSplitter[float64](tls.Unique())
	defer acc.Close()

	g, _ := errgroup.WithContext(ctx)
	for _, r := range chunks(args.n, args.threads) {
		g.Go(tls.Wrap(func() error {
			th := tls.Attach()
			for i := r[0]; i < r[1]; i++ {
				*acc.LocalAt(th) += math.Cbrt(value)
			}
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	parallel := 0.0
	acc.ForEach(func(v *float64) { parallel += *v })
	fmt.Fprintf(Stdout, " result avg: %.6f\n", avg(parallel, args.n))
	fmt.Fprintf(Stdout, " completed in %v\n", time.Since(start))
	return nil
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
