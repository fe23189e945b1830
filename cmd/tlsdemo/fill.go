package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/threadlocal/tls"
)

func fillCmd() *ffcli.Command {
	var args workArgs
	fs := newFlagSet("fill")
	args.register(fs, 64*1024)

	return &ffcli.Command{
		Name:       "fill",
		ShortUsage: "tlsdemo fill [-threads N] [-n N]",
		ShortHelp:  "Fill one vector from many goroutines with a Collect",
		FlagSet:    fs,
		Exec: func(ctx context.Context, rest []string) error {
			if err := args.validate(rest); err != nil {
				return err
			}
			return runFill(ctx, args)
		},
	}
}

// runFill appends the square roots of random inputs to per-goroutine
// slices, then flattens them once all workers have exited.
func runFill(ctx context.Context, args workArgs) error {
	input := randomInput(args.n)

	parts := tls.NewCollect[[]float64](tls.Unique())
	defer parts.Close()

	g, _ := errgroup.WithContext(ctx)
	for _, r := range chunks(len(input), args.threads) {
		g.Go(tls.Wrap(func() error {
			local := parts.Local()
			for _, v := range input[r[0]:r[1]] {
				*local = append(*local, math.Sqrt(v))
			}
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	result := tls.AppendGathered(make([]float64, 0, len(input)), parts)
	fmt.Fprintf(Stdout, "Result was %d, expected %d\n", len(result), len(input))
	return nil
}

func combineCmd() *ffcli.Command {
	var args workArgs
	fs := newFlagSet("combine")
	args.register(fs, 64*1024)

	return &ffcli.Command{
		Name:       "combine",
		ShortUsage: "tlsdemo combine [-threads N] [-n N]",
		ShortHelp:  "Fill per-goroutine vectors in a Splitter and combine them",
		FlagSet:    fs,
		Exec: func(ctx context.Context, rest []string) error {
			if err := args.validate(rest); err != nil {
				return err
			}
			return runCombine(ctx, args)
		},
	}
}

// runCombine is runFill with a Splitter: the vectors of exited workers stay
// enumerable and are concatenated by hand.
func runCombine(ctx context.Context, args workArgs) error {
	input := randomInput(args.n)

	vecs := tls.NewSplitter[[]float64](tls.Unique())
	defer vecs.Close()

	g, _ := errgroup.WithContext(ctx)
	for _, r := range chunks(len(input), args.threads) {
		g.Go(tls.Wrap(func() error {
			local := vecs.Local()
			for _, v := range input[r[0]:r[1]] {
				*local = append(*local, math.Sqrt(v))
			}
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var combined []float64
	for v := range vecs.All() {
		combined = append(combined, *v...)
	}
	fmt.Fprintf(Stdout, "Result was %d, expected %d (%d vectors)\n", len(combined), len(input), vecs.Len())
	return nil
}

func randomInput(n int) []float64 {
	input := make([]float64, n)
	for i := range input {
		input[i] = float64(rand.Int32())
	}
	return input
}
