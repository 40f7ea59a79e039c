package coex_test

import (
	"context"
	"testing"

	"github.com/coexec/coex"
)

// evalSolver is a brute-force solver for tests. It enumerates a small
// candidate domain per variable and evaluates the constraints with
// ExprEvaluator, so solver-dependent code paths run without libz3.
type evalSolver struct{}

func (s *evalSolver) Solve(ctx context.Context, constraints []coex.Expr, vars []*coex.VarExpr) (coex.Satisfiability, coex.Model, error) {
	if err := ctx.Err(); err != nil {
		return coex.Unknown, nil, err
	}

	model := make(coex.Model, len(vars))
	if s.search(constraints, vars, model) {
		return coex.Sat, model, nil
	}
	return coex.Unsat, nil, nil
}

func (s *evalSolver) search(constraints []coex.Expr, vars []*coex.VarExpr, model coex.Model) bool {
	if len(vars) == 0 {
		eval := coex.NewExprEvaluator(model)
		for _, constraint := range constraints {
			value, err := eval.Evaluate(constraint)
			if err != nil || !value.IsTrue() {
				return false
			}
		}
		return true
	}

	v := vars[0]
	for _, candidate := range candidateValues(v.Type.Width) {
		model[v.Name] = coex.NewConstantExpr(candidate, v.Type.Width)
		if s.search(constraints, vars[1:], model) {
			return true
		}
	}
	delete(model, v.Name)
	return false
}

// candidateValues returns the enumeration domain for a width: small values
// around zero from both signed ends, plus the signed minimum.
func candidateValues(width uint) []uint64 {
	if width == coex.WidthBool {
		return []uint64{0, 1}
	}
	return []uint64{0, 1, 2, 3, 5, 10,
		^uint64(0),     // -1
		^uint64(0) - 1, // -2
		^uint64(0) - 4, // -5
		1 << (width - 1),
	}
}

// buildAddOne returns: func addone(x i64) { return x + 1 }
func buildAddOne(tb testing.TB) *coex.Func {
	tb.Helper()
	b := coex.NewFuncBuilder("addone", coex.Param{Name: "x", Type: coex.TypeInt64})
	sum := b.BinOp(coex.ADD, b.ParamReg(0), b.ConstInt(1, coex.TypeInt64))
	b.Return(sum)
	return b.Build()
}

// buildSign returns: func sign(x i64) { if x > 0 { return 1 }; return -1 }
func buildSign(tb testing.TB) *coex.Func {
	tb.Helper()
	b := coex.NewFuncBuilder("sign", coex.Param{Name: "x", Type: coex.TypeInt64})
	pos, neg := b.NewBlock(), b.NewBlock()
	cond := b.BinOp(coex.SGT, b.ParamReg(0), b.ConstInt(0, coex.TypeInt64))
	b.If(cond, pos, neg)
	b.SetBlock(pos)
	b.Return(b.ConstInt(1, coex.TypeInt64))
	b.SetBlock(neg)
	b.Return(b.ConstInt(-1, coex.TypeInt64))
	return b.Build()
}

// buildDivTen returns: func divten(x i64) { return 10 / x }
func buildDivTen(tb testing.TB) *coex.Func {
	tb.Helper()
	b := coex.NewFuncBuilder("divten", coex.Param{Name: "x", Type: coex.TypeInt64})
	quo := b.BinOp(coex.SDIV, b.ConstInt(10, coex.TypeInt64), b.ParamReg(0))
	b.Return(quo)
	return b.Build()
}

// buildAbsCaller returns a caller wrapping: func abs(x i64) and
// func caller(x i64) { return abs(x) + 1 }.
func buildAbsCaller(tb testing.TB) (caller, abs *coex.Func) {
	tb.Helper()

	ab := coex.NewFuncBuilder("abs", coex.Param{Name: "x", Type: coex.TypeInt64})
	nonNeg, negate := ab.NewBlock(), ab.NewBlock()
	cond := ab.BinOp(coex.SGE, ab.ParamReg(0), ab.ConstInt(0, coex.TypeInt64))
	ab.If(cond, nonNeg, negate)
	ab.SetBlock(nonNeg)
	ab.Return(ab.ParamReg(0))
	ab.SetBlock(negate)
	neg := ab.BinOp(coex.SUB, ab.ConstInt(0, coex.TypeInt64), ab.ParamReg(0))
	ab.Return(neg)
	abs = ab.Build()

	cb := coex.NewFuncBuilder("caller", coex.Param{Name: "x", Type: coex.TypeInt64})
	ret := cb.Call(abs, cb.ParamReg(0))
	sum := cb.BinOp(coex.ADD, ret, cb.ConstInt(1, coex.TypeInt64))
	cb.Return(sum)
	caller = cb.Build()
	return caller, abs
}

// buildAssertPositive returns a function asserting its doubled input stays
// positive, which fails for non-positive and large inputs.
func buildAssertPositive(tb testing.TB) *coex.Func {
	tb.Helper()
	b := coex.NewFuncBuilder("double", coex.Param{Name: "x", Type: coex.TypeInt64})
	doubled := b.BinOp(coex.ADD, b.ParamReg(0), b.ParamReg(0))
	cond := b.BinOp(coex.SGT, doubled, b.ConstInt(0, coex.TypeInt64))
	b.Assert(cond, coex.AssertMustHold)
	b.Return(doubled)
	return b.Build()
}

// mustExecute executes fn and fails the test on any engine error.
func mustExecute(tb testing.TB, fn *coex.Func, args []*coex.ConstantExpr, opt ...coex.Option) *coex.Result {
	tb.Helper()
	result, err := coex.Execute(fn, args, opt...)
	if err != nil {
		tb.Fatal(err)
	}
	return result
}

// i64 returns a 64-bit constant from a signed value.
func i64(v int64) *coex.ConstantExpr {
	return coex.NewConstantExpr(uint64(v), coex.Width64)
}

// branchEvents filters the branch events out of a stream.
func branchEvents(stream []coex.Event) []*coex.BranchEvent {
	var a []*coex.BranchEvent
	for _, event := range stream {
		if branch, ok := event.(*coex.BranchEvent); ok {
			a = append(a, branch)
		}
	}
	return a
}
