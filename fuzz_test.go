package coex_test

import (
	"context"
	"testing"

	"github.com/coexec/coex"
)

func TestFuzzer_FindsBothBranches(t *testing.T) {
	fn := buildSign(t)
	f := coex.NewFuzzer(fn, &evalSolver{}, coex.FuzzConfig{
		MaxIterations: 4,
		Parallelism:   1,
	})

	tested, errored, err := f.Fuzz(context.Background())
	if err != nil {
		t.Fatal(err)
	} else if len(errored) != 0 {
		t.Fatalf("unexpected errors: %v", errored)
	}

	// The seed covers one side; the first negation covers the other. One
	// branch site, both polarities.
	sigs := make(map[string]struct{})
	for _, input := range tested {
		sigs[input.Signature] = struct{}{}
	}
	if _, ok := sigs["0+"]; !ok {
		t.Fatalf("taken branch not covered: %v", sigs)
	}
	if _, ok := sigs["0-"]; !ok {
		t.Fatalf("untaken branch not covered: %v", sigs)
	}
	if f.Cover().Count() != 1 {
		t.Fatalf("unexpected covered sites: %d", f.Cover().Count())
	}
}

// Each branch negation is attempted at most once, so fuzzing a single branch
// terminates after exactly two runs regardless of the iteration budget.
func TestFuzzer_AttemptedOnce(t *testing.T) {
	fn := buildSign(t)
	f := coex.NewFuzzer(fn, &evalSolver{}, coex.FuzzConfig{
		MaxIterations: 100,
		Parallelism:   1,
	})

	tested, _, err := f.Fuzz(context.Background())
	if err != nil {
		t.Fatal(err)
	} else if len(tested) != 2 {
		t.Fatalf("unexpected tested count: %d", len(tested))
	}
}

// A faulting candidate is a tested input, not an error.
func TestFuzzer_FaultIsTested(t *testing.T) {
	b := coex.NewFuncBuilder("guard", coex.Param{Name: "x", Type: coex.TypeInt64})
	bad, good := b.NewBlock(), b.NewBlock()
	cond := b.BinOp(coex.EQ, b.ParamReg(0), b.ConstInt(3, coex.TypeInt64))
	b.If(cond, bad, good)
	b.SetBlock(bad)
	b.Panic("boom")
	b.SetBlock(good)
	b.Return(b.ParamReg(0))
	fn := b.Build()

	f := coex.NewFuzzer(fn, &evalSolver{}, coex.FuzzConfig{Parallelism: 1})
	tested, errored, err := f.Fuzz(context.Background())
	if err != nil {
		t.Fatal(err)
	} else if len(errored) != 0 {
		t.Fatalf("unexpected errors: %v", errored)
	}

	var faulted int
	for _, input := range tested {
		if input.Result.Fault != nil {
			faulted++
			if got := input.Args[0].Int(); got != 3 {
				t.Fatalf("unexpected faulting input: %d", got)
			}
		}
	}
	if faulted != 1 {
		t.Fatalf("unexpected faulting run count: %d", faulted)
	}
}

func TestFuzzer_CorpusReseed(t *testing.T) {
	fn := buildSign(t)

	corpus := coex.NewCorpus()
	f := coex.NewFuzzer(fn, &evalSolver{}, coex.FuzzConfig{
		Parallelism: 1,
		Corpus:      corpus,
	})
	if _, _, err := f.Fuzz(context.Background()); err != nil {
		t.Fatal(err)
	}
	if corpus.Len() != 2 {
		t.Fatalf("unexpected corpus size: %d", corpus.Len())
	}

	// A second session reseeded from the corpus starts with both paths
	// already queued.
	f2 := coex.NewFuzzer(fn, &evalSolver{}, coex.FuzzConfig{
		Parallelism: 1,
		Corpus:      corpus,
	})
	tested, _, err := f2.Fuzz(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sigs := make(map[string]struct{})
	for _, input := range tested {
		sigs[input.Signature] = struct{}{}
	}
	if len(sigs) != 2 {
		t.Fatalf("unexpected signatures: %v", sigs)
	}
}

func TestFuzzer_FuzzAndCheck(t *testing.T) {
	// An explore assertion sits in the positive branch; only runs reaching
	// it produce assert results, and for those the target value is
	// reachable under the branch's path constraint.
	b := coex.NewFuncBuilder("explore", coex.Param{Name: "x", Type: coex.TypeInt64})
	pos, neg := b.NewBlock(), b.NewBlock()
	cond := b.BinOp(coex.SGT, b.ParamReg(0), b.ConstInt(0, coex.TypeInt64))
	b.If(cond, pos, neg)
	b.SetBlock(pos)
	target := b.BinOp(coex.EQ, b.ParamReg(0), b.ConstInt(5, coex.TypeInt64))
	b.Assert(target, coex.AssertExplore)
	b.Return(b.ConstInt(1, coex.TypeInt64))
	b.SetBlock(neg)
	b.Return(b.ConstInt(0, coex.TypeInt64))
	fn := b.Build()

	f := coex.NewFuzzer(fn, &evalSolver{}, coex.FuzzConfig{Parallelism: 1})
	checked, errored, err := f.FuzzAndCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	} else if len(errored) != 0 {
		t.Fatalf("unexpected errors: %v", errored)
	}

	var withAsserts, withoutAsserts int
	for _, input := range checked {
		if len(input.Asserts) == 0 {
			withoutAsserts++
			continue
		}
		withAsserts++
		r := input.Asserts[0]
		if !r.OK || r.Verdict != coex.Sat {
			t.Fatalf("unexpected assert result: %s", r)
		} else if got := r.Model[coex.ArgName(0)]; got == nil || got.Int() != 5 {
			t.Fatalf("unexpected witness: %v", r.Model)
		}
	}
	if withAsserts != 1 || withoutAsserts != 1 {
		t.Fatalf("unexpected split: %d with, %d without", withAsserts, withoutAsserts)
	}
}

func TestFuzzer_ContextCanceled(t *testing.T) {
	fn := buildSign(t)
	f := coex.NewFuzzer(fn, &evalSolver{}, coex.FuzzConfig{Parallelism: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := f.Fuzz(ctx); err == nil {
		t.Fatal("expected error")
	}
}
