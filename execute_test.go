package coex_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/coexec/coex"
)

func TestExecute_AddOne(t *testing.T) {
	fn := buildAddOne(t)
	result := mustExecute(t, fn, []*coex.ConstantExpr{i64(5)})

	if result.Val == nil || result.Val.Int() != 6 {
		t.Fatalf("unexpected value: %s", result.Val)
	} else if !result.Symbolic {
		t.Fatal("expected symbolic result")
	} else if result.Fault != nil {
		t.Fatalf("unexpected fault: %s", result.Fault)
	}

	stream := coex.Flatten(result.Trace)
	if branches := branchEvents(stream); len(branches) != 0 {
		t.Fatalf("unexpected branch count: %d", len(branches))
	}

	// The symbolic return value is recorded as a taint event.
	var taints int
	for _, event := range stream {
		if _, ok := event.(*coex.TaintEvent); ok {
			taints++
		}
	}
	if taints != 1 {
		t.Fatalf("unexpected taint count: %d", taints)
	}
}

func TestExecute_TopLevelInvariant(t *testing.T) {
	fn := buildAddOne(t)
	result := mustExecute(t, fn, []*coex.ConstantExpr{i64(0)})

	if result.Trace.Label != coex.TraceLabelToplevel {
		t.Fatalf("unexpected root label: %q", result.Trace.Label)
	} else if len(result.Trace.Children) != 1 {
		t.Fatalf("unexpected child count: %d", len(result.Trace.Children))
	} else if result.Trace.Children[0].Label != "addone" {
		t.Fatalf("unexpected child label: %q", result.Trace.Children[0].Label)
	}
}

func TestExecute_Branch(t *testing.T) {
	fn := buildSign(t)
	result := mustExecute(t, fn, []*coex.ConstantExpr{i64(3)})

	if result.Val.Int() != 1 {
		t.Fatalf("unexpected value: %d", result.Val.Int())
	}

	branches := branchEvents(coex.Flatten(result.Trace))
	if len(branches) != 1 {
		t.Fatalf("unexpected branch count: %d", len(branches))
	} else if !branches[0].Taken {
		t.Fatal("expected taken branch")
	}

	// The recorded condition is structurally x > 0 in canonical form.
	want := coex.NewBinaryExpr(coex.SGT, coex.NewVarExpr(coex.ArgName(0), coex.TypeInt64), coex.NewConstantExpr64(0))
	if coex.CompareExpr(branches[0].Cond, want) != 0 {
		t.Fatalf("unexpected condition: %s", branches[0].Cond)
	}
}

// Negating the single branch condition and solving must produce an input
// that drives the run down the other side.
func TestExecute_BranchNegation(t *testing.T) {
	fn := buildSign(t)
	result := mustExecute(t, fn, []*coex.ConstantExpr{i64(3)})

	branches := branchEvents(coex.Flatten(result.Trace))
	negated := coex.NewIsZeroExpr(branches[0].Cond)

	var solver evalSolver
	verdict, model, err := solver.Solve(context.Background(), []coex.Expr{negated}, coex.FindVars(negated))
	if err != nil {
		t.Fatal(err)
	} else if verdict != coex.Sat {
		t.Fatalf("unexpected verdict: %s", verdict)
	}

	value, ok := model[coex.ArgName(0)]
	if !ok {
		t.Fatal("model missing input variable")
	} else if value.Int() > 0 {
		t.Fatalf("model does not negate condition: %d", value.Int())
	}

	other := mustExecute(t, fn, []*coex.ConstantExpr{value})
	if other.Val.Int() != -1 {
		t.Fatalf("unexpected value: %d", other.Val.Int())
	}
	branches = branchEvents(coex.Flatten(other.Trace))
	if len(branches) != 1 || branches[0].Taken {
		t.Fatalf("expected single untaken branch, got %v", branches)
	}
}

func TestExecute_Fault(t *testing.T) {
	fn := buildDivTen(t)
	result := mustExecute(t, fn, []*coex.ConstantExpr{i64(0)})

	if result.Fault == nil {
		t.Fatal("expected fault")
	} else if result.Val != nil {
		t.Fatalf("unexpected value: %s", result.Val)
	}

	// The trace up to the fault is still valid.
	if result.Trace.Label != coex.TraceLabelToplevel || len(result.Trace.Children) != 1 {
		t.Fatal("expected valid trace on faulting run")
	}
}

func TestExecute_NestedCall(t *testing.T) {
	caller, _ := buildAbsCaller(t)
	result := mustExecute(t, caller, []*coex.ConstantExpr{i64(-4)})

	if result.Val.Int() != 5 {
		t.Fatalf("unexpected value: %d", result.Val.Int())
	}

	top := result.Trace.Children[0]
	if top.Label != "caller" {
		t.Fatalf("unexpected label: %q", top.Label)
	} else if len(top.Children) != 1 || top.Children[0].Label != "abs" {
		t.Fatalf("expected nested abs node, got %v", top.Children)
	}

	// The branch inside abs belongs to the nested node.
	if branches := branchEvents(top.Children[0].Events); len(branches) != 1 {
		t.Fatalf("unexpected nested branch count: %d", len(branches))
	}
}

func TestExecute_Subs(t *testing.T) {
	fn := buildSign(t)

	// A constant substitution overrides the concrete seed.
	t.Run("Constant", func(t *testing.T) {
		subs := map[string]coex.Expr{coex.ArgName(0): i64(-2)}
		result := mustExecute(t, fn, []*coex.ConstantExpr{i64(5)}, coex.WithSubs(subs))

		if result.Val.Int() != -1 {
			t.Fatalf("unexpected value: %d", result.Val.Int())
		} else if got := result.Inputs[coex.ArgName(0)].Int(); got != -2 {
			t.Fatalf("unexpected recorded input: %d", got)
		}
	})

	// An expression substitution replaces the symbolic shadow and its
	// concrete seed is re-derived under the recorded inputs, so the run's
	// branch polarities replay cleanly.
	t.Run("Expression", func(t *testing.T) {
		x := coex.NewVarExpr(coex.ArgName(0), coex.TypeInt64)
		negX := coex.NewBinaryExpr(coex.SUB, coex.NewConstantExpr64(0), x)
		subs := map[string]coex.Expr{coex.ArgName(0): negX}

		result := mustExecute(t, fn, []*coex.ConstantExpr{i64(3)}, coex.WithSubs(subs))

		// sign(-3) down the concrete side, with the shadow flowing through
		// the substituted expression.
		if result.Val.Int() != -1 {
			t.Fatalf("unexpected value: %d", result.Val.Int())
		} else if got := result.Inputs[coex.ArgName(0)].Int(); got != 3 {
			t.Fatalf("unexpected recorded input: %d", got)
		}

		branches := branchEvents(coex.Flatten(result.Trace))
		if len(branches) != 1 || branches[0].Taken {
			t.Fatalf("expected single untaken branch, got %v", branches)
		}

		// The recorded condition is built from the substituted shadow, not
		// the bare input variable.
		want := coex.NewBinaryExpr(coex.SGT, negX, coex.NewConstantExpr64(0))
		if coex.CompareExpr(branches[0].Cond, want) != 0 {
			t.Fatalf("unexpected condition: %s", branches[0].Cond)
		}
	})

	t.Run("ExpressionWidthMismatch", func(t *testing.T) {
		x := coex.NewVarExpr(coex.ArgName(0), coex.TypeInt64)
		subs := map[string]coex.Expr{
			coex.ArgName(0): coex.NewCastExpr(x, coex.Width8, false),
		}
		if _, err := coex.Execute(fn, []*coex.ConstantExpr{i64(3)}, coex.WithSubs(subs)); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestExecute_StepLimit(t *testing.T) {
	b := coex.NewFuncBuilder("spin", coex.Param{Name: "x", Type: coex.TypeInt64})
	loop := b.NewBlock()
	b.Jump(loop)
	b.SetBlock(loop)
	b.Jump(loop)
	fn := b.Build()

	_, err := coex.Execute(fn, []*coex.ConstantExpr{i64(0)}, coex.WithMaxSteps(16))
	if !errors.Is(err, coex.ErrStepLimit) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecute_OverflowCheckPass(t *testing.T) {
	fn := buildAddOne(t)
	result := mustExecute(t, fn, []*coex.ConstantExpr{i64(math.MaxInt64)},
		coex.WithPasses(coex.OverflowCheckPass))

	if len(result.Record) != 1 {
		t.Fatalf("unexpected record count: %d", len(result.Record))
	}
	event, ok := result.Record[0].(*coex.AssertEvent)
	if !ok || event.Kind != coex.AssertMustHold {
		t.Fatalf("unexpected record event: %s", result.Record[0])
	}

	// The no-overflow condition is false under the run's inputs.
	eval := coex.NewExprEvaluator(result.Inputs)
	if value, err := eval.Evaluate(event.Cond); err != nil {
		t.Fatal(err)
	} else if !value.IsFalse() {
		t.Fatal("expected overflow to be detected")
	}
}

func TestExecute_ArgMismatch(t *testing.T) {
	fn := buildAddOne(t)
	if _, err := coex.Execute(fn, nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := coex.Execute(fn, []*coex.ConstantExpr{coex.NewConstantExpr8(1)}); err == nil {
		t.Fatal("expected error")
	}
}
