package coex

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Result is the outcome of one concolic run.
type Result struct {
	// Val is the concrete return value. Nil if the run faulted.
	Val *ConstantExpr

	// Fault is the captured target fault, if the run faulted. A faulting
	// run is still a valid run; its trace covers the path up to the fault.
	Fault *TargetFault

	// Symbolic reports whether the return value carried a symbolic shadow.
	Symbolic bool

	// Trace is the root of the run's trace tree.
	Trace *TraceNode

	// Inputs is the concrete assignment of the run's input variables.
	Inputs map[string]*ConstantExpr

	// Record holds events accumulated by instrumentation passes.
	Record []Event
}

// Options configure a run.
type Options struct {
	Subs     map[string]Expr
	Passes   []Pass
	Logger   zerolog.Logger
	MaxSteps int
}

// Option is a functional option for Execute.
type Option func(*Options)

// WithSubs binds substitution expressions for named input variables.
// A constant substitution overrides the concrete seed of its variable. Any
// other expression replaces the variable's symbolic shadow, and the
// variable's concrete seed is recomputed by evaluating the expression under
// the run's input assignment.
func WithSubs(subs map[string]Expr) Option {
	return func(o *Options) { o.Subs = subs }
}

// WithPasses attaches instrumentation passes to the run.
func WithPasses(passes ...Pass) Option {
	return func(o *Options) { o.Passes = append(o.Passes, passes...) }
}

// WithLogger attaches a logger to the run. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMaxSteps overrides the per-run instruction budget.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// ArgName returns the input variable name of the i-th argument. Argument
// numbering is 1-based.
func ArgName(i int) string {
	return fmt.Sprintf("arg_%d", i+1)
}

// Execute runs fn on the given concrete arguments, shadowing each argument
// with a symbolic input variable, and returns the run's result. Target
// faults are captured on the result; engine failures are returned as errors.
func Execute(fn *Func, args []*ConstantExpr, opt ...Option) (*Result, error) {
	o := Options{Logger: zerolog.Nop(), MaxSteps: DefaultMaxSteps}
	for _, apply := range opt {
		apply(&o)
	}

	if len(args) != len(fn.Params) {
		return nil, fmt.Errorf("execute %s: arg count mismatch: %d != %d", fn.Name, len(args), len(fn.Params))
	}

	md := NewMetadata()
	for name, expr := range o.Subs {
		md.SetSub(name, expr)
	}

	// Bind every input's concrete assignment first. Constant substitutions
	// override the seed; expression substitutions are resolved afterward
	// against the full assignment.
	concretes := make([]*ConstantExpr, len(args))
	for i, arg := range args {
		param := fn.Params[i]
		if arg.Width != param.Type.Width {
			return nil, fmt.Errorf("execute %s: arg %d width mismatch: %d != %d", fn.Name, i, arg.Width, param.Type.Width)
		}

		name := ArgName(i)
		concrete := arg
		if sub, ok := md.Sub(name); ok {
			if c, ok := sub.(*ConstantExpr); ok {
				concrete = c.ZExt(param.Type.Width)
			}
		}
		concretes[i] = concrete
		md.bindInput(name, concrete)
	}

	// Wrap each argument as a tagged value seeded from its input variable.
	// An expression substitution replaces the variable's symbolic shadow;
	// its concrete seed is re-derived from the substitution under the bound
	// inputs so the recorded trace replays consistently.
	values := make([]Value, len(args))
	for i := range args {
		param := fn.Params[i]
		name := ArgName(i)

		symbolic := Expr(NewVarExpr(name, param.Type))
		if sub, ok := md.Sub(name); ok {
			if _, isConst := sub.(*ConstantExpr); !isConst {
				value, err := NewExprEvaluator(md.Inputs()).Evaluate(sub)
				if err != nil {
					return nil, fmt.Errorf("execute %s: substitution for %s: %w", fn.Name, name, err)
				} else if value.Width != param.Type.Width {
					return nil, fmt.Errorf("execute %s: substitution for %s: width mismatch: %d != %d", fn.Name, name, value.Width, param.Type.Width)
				}
				symbolic = sub
				concretes[i] = value
			}
		}
		values[i] = NewSymbolicValue(concretes[i], symbolic)
	}

	in := &interp{md: md, passes: o.Passes, logger: o.Logger, maxSteps: o.MaxSteps}
	ret, err := in.run(fn, values)

	result := &Result{Trace: md.Root(), Inputs: md.Inputs(), Record: md.Recorded()}
	if err != nil {
		var fault *TargetFault
		if !errors.As(err, &fault) {
			return nil, err
		}
		result.Fault = fault
	} else {
		result.Val = ret.Concrete
		result.Symbolic = ret.IsSymbolic()
		if ret.IsSymbolic() {
			md.Root().Children[0].addEvent(&TaintEvent{Name: "ret", Expr: ret.Symbolic})
		}
	}

	// The root is always "toplevel" with exactly one child, the top-level
	// call. Anything else is an engine defect.
	root := md.Root()
	if root.Label != TraceLabelToplevel {
		return nil, &InvariantError{Msg: fmt.Sprintf("root label %q", root.Label)}
	} else if len(root.Children) != 1 {
		return nil, &InvariantError{Msg: fmt.Sprintf("root has %d children, want 1", len(root.Children))}
	}

	if err := Verify(root, result.Inputs); err != nil {
		return nil, err
	}

	o.Logger.Debug().
		Str("fn", fn.Name).
		Bool("fault", result.Fault != nil).
		Bool("symbolic", result.Symbolic).
		Msg("run complete")

	return result, nil
}
