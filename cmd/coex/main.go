package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err == flag.ErrHelp {
		os.Exit(1)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "", "-h", "--help", "help":
		usage()
		return flag.ErrHelp
	case "fuzz":
		return NewFuzzCommand().Run(ctx, args)
	case "programs":
		return NewProgramsCommand().Run(ctx, args)
	default:
		return fmt.Errorf(`coex %s: unknown command`, cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `
Coex is a tool for concolic execution of register machine programs.

Usage:

	coex <command> [arguments]

The commands are:

	fuzz        explore a built-in program and check its assertions
	programs    list built-in programs
	help        this screen
`[1:])
}
