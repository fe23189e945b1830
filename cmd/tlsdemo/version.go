package main

import (
	"context"
	"fmt"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/kolkov/threadlocal/tls"
)

func versionCmd() *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "tlsdemo version",
		ShortHelp:  "Print version information",
		FlagSet:    newFlagSet("version"),
		Exec: func(context.Context, []string) error {
			info := tls.GetInfo()
			fmt.Fprintf(Stdout, "tlsdemo version %s\n", info.Version)
			if info.GoVersion != "" {
				fmt.Fprintf(Stdout, "  go:      %s\n", info.GoVersion)
			}
			fmt.Fprintf(Stdout, "  threads: %s\n", info.ThreadModel)
			return nil
		},
	}
}
