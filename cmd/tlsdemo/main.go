// Command tlsdemo runs small workloads on the thread-local registries.
//
// Usage:
//
//	tlsdemo accumulate -threads 8 -n 1048576   # Splitter sum, serial vs parallel
//	tlsdemo fill -threads 8 -n 65536           # Collect of slices, flattened
//	tlsdemo combine -threads 8 -n 65536        # Splitter of slices, custom combine
//	tlsdemo replicate -threads 4 -n 25         # Broadcast to reader goroutines
//	tlsdemo version
//
// Global flags may also be set from the environment with the TLSDEMO_
// prefix, e.g. TLSDEMO_CONFIG=tls.yaml.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/kolkov/threadlocal/tls"
)

// Stdout is where command output goes. Tests replace it.
var Stdout io.Writer = os.Stdout

var rootArgs struct {
	config string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tlsdemo: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 1 && (args[0] == "-v" || args[0] == "--version") {
		args = []string{"version"}
	}

	rootCmd := newRootCmd()

	if err := rootCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if rootArgs.config != "" {
		cfg, err := tls.LoadConfig(rootArgs.config)
		if err != nil {
			return err
		}
		if err := tls.Configure(cfg); err != nil {
			return err
		}
	}

	err := rootCmd.Run(context.Background())
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func newRootCmd() *ffcli.Command {
	rootfs := newFlagSet("tlsdemo")
	rootfs.StringVar(&rootArgs.config, "config", "", "YAML or JSON file with threadlocal settings")

	return &ffcli.Command{
		Name:       "tlsdemo",
		ShortUsage: "tlsdemo [flags] <subcommand> [command flags]",
		ShortHelp:  "Exercise thread-local registries and broadcast values.",
		LongHelp: strings.TrimSpace(`
For help on subcommands, add --help after: "tlsdemo fill --help".
`),
		FlagSet: rootfs,
		Options: []ff.Option{ff.WithEnvVarPrefix("TLSDEMO")},
		Subcommands: []*ffcli.Command{
			accumulateCmd(),
			fillCmd(),
			combineCmd(),
			replicateCmd(),
			versionCmd(),
		},
		Exec: func(context.Context, []string) error { return flag.ErrHelp },
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(Stdout)
	return fs
}

// workArgs are the flags shared by the workload commands.
type workArgs struct {
	threads int
	n       int
}

func (a *workArgs) register(fs *flag.FlagSet, n int) {
	fs.IntVar(&a.threads, "threads", runtime.GOMAXPROCS(0), "number of worker goroutines")
	fs.IntVar(&a.n, "n", n, "number of elements")
}

func (a *workArgs) validate(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}
	if a.threads < 1 {
		return fmt.Errorf("-threads must be at least 1, got %d", a.threads)
	}
	if a.n < 0 {
		return fmt.Errorf("-n must not be negative, got %d", a.n)
	}
	return nil
}

// chunks splits [0, n) into at most parts contiguous ranges.
func chunks(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	parts = min(parts, n)
	size := (n + parts - 1) / parts
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		out = append(out, [2]int{lo, min(lo+size, n)})
	}
	return out
}
