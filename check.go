package coex

import (
	"context"
	"fmt"
)

// AssertResult is the verdict for one assertion event.
type AssertResult struct {
	// Event is the assertion as recorded in the trace.
	Event *AssertEvent

	// Verdict is the solver's answer to the underlying query. For must-hold
	// assertions the query is path AND NOT cond; for explore assertions it
	// is path AND cond.
	Verdict Satisfiability

	// OK reports whether the assertion achieved its goal: a must-hold
	// assertion holds on every input reaching it (Verdict == Unsat), an
	// explore assertion is reachable with its condition true
	// (Verdict == Sat). Unknown verdicts report OK == false.
	OK bool

	// Model is the counterexample of a failed must-hold assertion or the
	// witness of a satisfied explore assertion.
	Model Model
}

// String returns the string representation of the result.
func (r *AssertResult) String() string {
	return fmt.Sprintf("%s ok=%v verdict=%s", r.Event, r.OK, r.Verdict)
}

// Check executes fn on args and evaluates every assertion recorded in the
// trace against the path constraint prefix leading to it. Given the same
// function, arguments, and solver, Check is deterministic; checking the same
// run twice yields identical results.
func Check(ctx context.Context, solver Solver, fn *Func, args []*ConstantExpr, opt ...Option) ([]*AssertResult, error) {
	result, err := Execute(fn, args, opt...)
	if err != nil {
		return nil, err
	}
	return CheckResult(ctx, solver, result)
}

// CheckResult evaluates the assertions of an already-executed run: those
// recorded in the trace under the path prefix that reached them, and those
// accumulated by instrumentation passes under the run's full path
// constraint.
func CheckResult(ctx context.Context, solver Solver, result *Result) ([]*AssertResult, error) {
	stream := Flatten(result.Trace)

	var results []*AssertResult
	for i, event := range stream {
		assertEvent, ok := event.(*AssertEvent)
		if !ok {
			continue
		}
		ar, err := checkAssert(ctx, solver, PathConstraint(stream, i), assertEvent)
		if err != nil {
			return nil, err
		}
		results = append(results, ar)
	}

	// Pass-recorded assertions have no position in the trace; they are
	// judged over every input that follows the run's path.
	fullPath := PathConstraint(stream, -1)
	fullPath = fullPath[:len(fullPath):len(fullPath)]
	for _, event := range result.Record {
		assertEvent, ok := event.(*AssertEvent)
		if !ok {
			continue
		}
		ar, err := checkAssert(ctx, solver, fullPath, assertEvent)
		if err != nil {
			return nil, err
		}
		results = append(results, ar)
	}
	return results, nil
}

// checkAssert solves one assertion event against a path constraint prefix.
func checkAssert(ctx context.Context, solver Solver, path []Expr, event *AssertEvent) (*AssertResult, error) {
	var constraints []Expr
	switch event.Kind {
	case AssertMustHold:
		constraints = addConstraint(path, NewIsZeroExpr(event.Cond))
	case AssertExplore:
		constraints = addConstraint(path, event.Cond)
	default:
		return nil, &InvariantError{Msg: fmt.Sprintf("assert with kind %d", int(event.Kind))}
	}

	verdict, model, err := solver.Solve(ctx, constraints, FindVars(constraints...))
	if err != nil {
		return nil, fmt.Errorf("check assert site %d: %w", event.Site, err)
	}

	ar := &AssertResult{Event: event, Verdict: verdict}
	switch event.Kind {
	case AssertMustHold:
		ar.OK = verdict == Unsat
	case AssertExplore:
		ar.OK = verdict == Sat
	}
	if verdict == Sat {
		ar.Model = model
	}
	return ar, nil
}
