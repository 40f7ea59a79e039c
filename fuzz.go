package coex

import (
	"context"
	"strconv"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Fuzzer defaults.
const (
	DefaultFuzzMaxIterations = 256
	DefaultFuzzParallelism   = 4
)

// FuzzConfig configures a fuzzing session.
type FuzzConfig struct {
	// MaxIterations bounds the total number of executed candidates.
	MaxIterations int

	// Parallelism bounds concurrent candidate executions. Solver queries
	// always run sequentially on the session goroutine.
	Parallelism int

	// Logger receives session progress. Defaults to a no-op logger.
	Logger zerolog.Logger

	// Passes are attached to every candidate run.
	Passes []Pass

	// Corpus, if set, reseeds the session from its entries and records every
	// tested input back into it.
	Corpus *Corpus
}

// TestedInput is one executed candidate together with its run result.
// Faulting runs are tested inputs too; they carry valid traces.
type TestedInput struct {
	Args      []*ConstantExpr
	Result    *Result
	Signature string
}

// CheckedInput is a tested input with its assertion verdicts.
type CheckedInput struct {
	*TestedInput
	Asserts []*AssertResult
}

// Fuzzer drives concolic exploration of a single function: execute a
// candidate, negate each unexplored branch along its path, and ask the
// solver for inputs reaching the other side. Each branch negation is
// attempted at most once per session.
type Fuzzer struct {
	fn     *Func
	solver Solver
	config FuzzConfig

	cover     *Cover
	attempted *immutable.SortedMap[string, bool]
}

// NewFuzzer returns a fuzzer for fn backed by solver.
func NewFuzzer(fn *Func, solver Solver, config FuzzConfig) *Fuzzer {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultFuzzMaxIterations
	}
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultFuzzParallelism
	}
	return &Fuzzer{
		fn:        fn,
		solver:    solver,
		config:    config,
		cover:     NewCover(),
		attempted: immutable.NewSortedMap[string, bool](nil),
	}
}

// Cover returns the branch coverage accumulated so far.
func (f *Fuzzer) Cover() *Cover {
	return f.cover
}

// Fuzz explores fn until the frontier is exhausted, the iteration budget is
// spent, or ctx is done. It returns every tested input and every engine
// error hit along the way. Target faults do not appear in errored; a
// faulting run is a tested input.
func (f *Fuzzer) Fuzz(ctx context.Context) (tested []*TestedInput, errored []error, err error) {
	queue := [][]*ConstantExpr{f.seedArgs()}
	if f.config.Corpus != nil {
		for _, entry := range f.config.Corpus.Entries() {
			if len(entry.Args) == len(f.fn.Params) {
				queue = append(queue, entry.ArgExprs())
			}
		}
	}

	var runs int
	for len(queue) > 0 && runs < f.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			return tested, errored, err
		}

		// Take a batch bounded by parallelism and the remaining budget.
		n := f.config.Parallelism
		if n > len(queue) {
			n = len(queue)
		}
		if remaining := f.config.MaxIterations - runs; n > remaining {
			n = remaining
		}
		batch := queue[:n]
		queue = queue[n:]
		runs += n

		results := make([]*Result, n)
		errs := make([]error, n)
		g, gctx := errgroup.WithContext(ctx)
		for i, args := range batch {
			i, args := i, args
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i], errs[i] = Execute(f.fn, args,
					WithPasses(f.config.Passes...),
					WithLogger(f.config.Logger),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return tested, errored, err
		}

		for i, result := range results {
			if errs[i] != nil {
				f.config.Logger.Debug().Err(errs[i]).Msg("fuzz run errored")
				errored = append(errored, errs[i])
				continue
			}

			stream := Flatten(result.Trace)
			input := &TestedInput{
				Args:      batch[i],
				Result:    result,
				Signature: PathSignature(stream),
			}
			tested = append(tested, input)

			added := f.cover.Merge(result.Trace)
			f.config.Logger.Debug().
				Str("sig", input.Signature).
				Int("new_sites", added).
				Bool("fault", result.Fault != nil).
				Msg("fuzz run tested")

			if f.config.Corpus != nil {
				f.config.Corpus.Add(input.Args, input.Signature)
			}

			f.markObserved(stream)
			more, solveErrs := f.expand(ctx, input.Args, stream)
			queue = append(queue, more...)
			errored = append(errored, solveErrs...)
		}
	}
	return tested, errored, nil
}

// markObserved marks every branch prefix the run actually took as attempted,
// so later runs do not solve for paths that have already been executed.
func (f *Fuzzer) markObserved(stream []Event) {
	var sb strings.Builder
	for _, event := range stream {
		branch, ok := event.(*BranchEvent)
		if !ok {
			continue
		}
		writeBranchSig(&sb, branch.Site, branch.Taken)
		f.attempted = f.attempted.Set(sb.String(), true)
	}
}

// expand pushes every unattempted branch negation of the run onto the
// frontier and solves for candidate inputs. Solver queries run sequentially.
func (f *Fuzzer) expand(ctx context.Context, args []*ConstantExpr, stream []Event) (candidates [][]*ConstantExpr, errored []error) {
	for i, event := range stream {
		branch, ok := event.(*BranchEvent)
		if !ok {
			continue
		}

		sig := negationSignature(stream, i)
		if _, ok := f.attempted.Get(sig); ok {
			continue
		}
		f.attempted = f.attempted.Set(sig, true)

		// Negate the branch under the conditions that led to it.
		negated := branch.Cond
		if branch.Taken {
			negated = NewIsZeroExpr(negated)
		}
		constraints := addConstraint(PathConstraint(stream, i), negated)

		verdict, model, err := f.solver.Solve(ctx, constraints, FindVars(constraints...))
		if err != nil {
			errored = append(errored, err)
			continue
		}
		if verdict != Sat {
			// Unsat branches are unreachable; unknown verdicts are dropped.
			f.config.Logger.Debug().
				Str("sig", sig).
				Stringer("verdict", verdict).
				Msg("fuzz negation dropped")
			continue
		}

		candidates = append(candidates, f.candidateArgs(args, model))
		f.config.Logger.Debug().Str("sig", sig).Msg("fuzz candidate queued")
	}
	return candidates, errored
}

// candidateArgs builds new arguments from a model, keeping the current value
// of any input the model leaves unconstrained.
func (f *Fuzzer) candidateArgs(args []*ConstantExpr, model Model) []*ConstantExpr {
	next := make([]*ConstantExpr, len(args))
	for i, arg := range args {
		if value, ok := model[ArgName(i)]; ok {
			next[i] = NewConstantExpr(value.Value, arg.Width)
		} else {
			next[i] = arg
		}
	}
	return next
}

// seedArgs returns one deterministic starting value per parameter type.
func (f *Fuzzer) seedArgs() []*ConstantExpr {
	args := make([]*ConstantExpr, len(f.fn.Params))
	for i, param := range f.fn.Params {
		args[i] = NewConstantExpr(1, param.Type.Width)
	}
	return args
}

// FuzzAndCheck fuzzes fn and then evaluates the assertions of every tested
// input against its own path. The target's assertions must come from the
// program itself; combining FuzzAndCheck with manual substitution options on
// the runs is unsupported.
func (f *Fuzzer) FuzzAndCheck(ctx context.Context) (checked []*CheckedInput, errored []error, err error) {
	tested, errored, err := f.Fuzz(ctx)
	if err != nil {
		return nil, errored, err
	}

	for _, input := range tested {
		asserts, err := CheckResult(ctx, f.solver, input.Result)
		if err != nil {
			errored = append(errored, err)
			continue
		}
		checked = append(checked, &CheckedInput{TestedInput: input, Asserts: asserts})
	}
	return checked, errored, nil
}

// PathSignature returns a compact key for the branch polarity sequence of a
// constraint stream.
func PathSignature(stream []Event) string {
	var sb strings.Builder
	for _, event := range stream {
		if branch, ok := event.(*BranchEvent); ok {
			writeBranchSig(&sb, branch.Site, branch.Taken)
		}
	}
	return sb.String()
}

// negationSignature returns the signature of the branch prefix before
// stream[i] with the polarity of stream[i] flipped.
func negationSignature(stream []Event, i int) string {
	var sb strings.Builder
	for _, event := range stream[:i] {
		if branch, ok := event.(*BranchEvent); ok {
			writeBranchSig(&sb, branch.Site, branch.Taken)
		}
	}
	branch := stream[i].(*BranchEvent)
	writeBranchSig(&sb, branch.Site, !branch.Taken)
	return sb.String()
}

func writeBranchSig(sb *strings.Builder, site int, taken bool) {
	sb.WriteString(strconv.Itoa(site))
	if taken {
		sb.WriteByte('+')
	} else {
		sb.WriteByte('-')
	}
}
