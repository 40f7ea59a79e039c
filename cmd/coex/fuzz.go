package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/coexec/coex"
	"github.com/coexec/coex/z3"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

// FuzzCommand represents a command for concolically exploring a program
// and checking its assertions.
type FuzzCommand struct{}

// NewFuzzCommand returns a new instance of FuzzCommand.
func NewFuzzCommand() *FuzzCommand {
	return &FuzzCommand{}
}

// Run executes the "fuzz" subcommand.
func (cmd *FuzzCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("coex-fuzz", flag.ContinueOnError)
	corpusPath := fs.String("corpus", "", "corpus file to reseed from and save to")
	iterations := fs.Int("n", coex.DefaultFuzzMaxIterations, "max executions")
	parallelism := fs.Int("p", coex.DefaultFuzzParallelism, "parallel executions per batch")
	timeout := fs.Duration("timeout", 0, "overall deadline (0 for none)")
	overflow := fs.Bool("overflow", false, "instrument additions with the overflow check pass")
	verbose := fs.Bool("v", false, "verbose")
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	} else if fs.NArg() == 0 {
		return fmt.Errorf("program name required, one of %v", programNames())
	} else if fs.NArg() > 1 {
		return fmt.Errorf("too many programs specified")
	}

	fn, err := lookupProgram(fs.Arg(0))
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		logger = zerolog.Nop()
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	config := coex.FuzzConfig{
		MaxIterations: *iterations,
		Parallelism:   *parallelism,
		Logger:        logger,
	}
	if *overflow {
		config.Passes = append(config.Passes, coex.OverflowCheckPass)
	}
	if *corpusPath != "" {
		corpus, err := coex.LoadCorpusFile(*corpusPath)
		if err != nil {
			return fmt.Errorf("load corpus: %w", err)
		}
		config.Corpus = corpus
	}

	solver := z3.NewSolver()
	defer solver.Close()

	fuzzer := coex.NewFuzzer(fn, solver, config)
	checked, errored, err := fuzzer.FuzzAndCheck(ctx)
	if err != nil {
		return err
	}

	for _, input := range checked {
		cmd.printInput(input, *verbose)
	}
	for _, e := range errored {
		fmt.Fprintf(os.Stderr, "error: %v\n", e)
	}
	fmt.Printf("%d inputs tested, %d errors, %d branch sites covered\n",
		len(checked), len(errored), fuzzer.Cover().Count())

	if *corpusPath != "" && config.Corpus != nil {
		if err := config.Corpus.SaveFile(*corpusPath); err != nil {
			return fmt.Errorf("save corpus: %w", err)
		}
	}

	stats := solver.Stats()
	logger.Info().
		Int("solve_n", stats.SolveN).
		Dur("solve_time", stats.SolveTime).
		Msg("solver stats")

	return nil
}

// printInput writes one tested input and its assertion verdicts to stdout.
func (cmd *FuzzCommand) printInput(input *coex.CheckedInput, verbose bool) {
	fmt.Printf("path %-12s args=%s", input.Signature, formatArgs(input.Args))
	if input.Result.Fault != nil {
		fmt.Printf(" FAULT: %s", input.Result.Fault.Msg)
	} else {
		fmt.Printf(" ret=%d", input.Result.Val.Int())
	}
	fmt.Println()

	for _, ar := range input.Asserts {
		fmt.Printf("  %s\n", ar)
	}

	if verbose {
		spew.Fdump(os.Stderr, input.Result.Trace)
	}
}

func formatArgs(args []*coex.ConstantExpr) string {
	s := "("
	for i, arg := range args {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d", arg.Int())
	}
	return s + ")"
}

func (cmd *FuzzCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: coex fuzz [arguments] <program>

Concolically explores one of the built-in programs, negating branch
conditions to reach new paths, and checks any assertions the program
records along the way. Run "coex programs" for the list of programs.

Arguments:

	-corpus PATH
	    Reseed from and save interesting inputs to a corpus file.

	-n N
	    Maximum number of executions.

	-p N
	    Number of candidate inputs executed in parallel per batch.

	-timeout D
	    Overall deadline for exploration and solving.

	-overflow
	    Instrument additions and subtractions with the signed
	    overflow check pass.

	-v
	    Enable verbose logging and trace dumps.
`[1:])
}
