// Package coex implements a concolic execution engine: programs expressed in
// a small register-machine instruction set run on concrete inputs while every
// value carries an optional symbolic expression describing its dependence on
// those inputs. A single run yields the concrete result, a call-tree trace of
// branch and assertion events, and the path constraint for that run. The
// fuzzing loop negates branch conditions along discovered paths and asks a
// constraint solver for inputs that steer execution down unexplored branches.
package coex

import (
	"errors"
	"fmt"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

var (
	ErrSolverTimeout       = errors.New("Solver timeout")
	ErrSolverCanceled      = errors.New("Solver canceled")
	ErrSolverResourceLimit = errors.New("Solver resource limit")
	ErrSolverUnknown       = errors.New("Solver unknown error")

	// ErrStepLimit is returned when a run exceeds its instruction budget.
	ErrStepLimit = errors.New("execution step limit exceeded")
)

// InvariantError reports a malformed trace detected after a run. It always
// indicates a defect in the engine or an instrumentation pass, never a
// property of the target program, and is never silently repaired.
type InvariantError struct {
	Msg string
}

// Error returns the error as a string.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("trace invariant violated: %s", e.Msg)
}

// UnsupportedOpError is returned when a primitive operation has no
// propagation rule. It is fatal to the run that hit it but does not abort an
// enclosing fuzzing loop.
type UnsupportedOpError struct {
	Op string
}

// Error returns the error as a string.
func (e *UnsupportedOpError) Error() string {
	return fmt.Sprintf("unsupported operation: %s", e.Op)
}

// UnsupportedExprError is returned by a solver adapter when an expression
// shape has no translation rule.
type UnsupportedExprError struct {
	Expr string
}

// Error returns the error as a string.
func (e *UnsupportedExprError) Error() string {
	return fmt.Sprintf("unsupported expression: %s", e.Expr)
}

// TargetFault records a runtime fault raised by the target program during a
// run. It is captured as the run's result and never propagated as an engine
// error; the trace built up to the fault remains valid.
type TargetFault struct {
	Msg string
}

// Error returns the fault as a string.
func (f *TargetFault) Error() string {
	return fmt.Sprintf("target fault: %s", f.Msg)
}

// Type describes the declared type of a program value or input.
type Type struct {
	Width  uint
	Signed bool
}

// Predeclared types.
var (
	TypeBool   = Type{Width: WidthBool}
	TypeInt8   = Type{Width: Width8, Signed: true}
	TypeInt16  = Type{Width: Width16, Signed: true}
	TypeInt32  = Type{Width: Width32, Signed: true}
	TypeInt64  = Type{Width: Width64, Signed: true}
	TypeUint8  = Type{Width: Width8}
	TypeUint16 = Type{Width: Width16}
	TypeUint32 = Type{Width: Width32}
	TypeUint64 = Type{Width: Width64}
)

// String returns a short name for the type.
func (t Type) String() string {
	if t.Width == WidthBool {
		return "bool"
	} else if t.Signed {
		return fmt.Sprintf("i%d", t.Width)
	}
	return fmt.Sprintf("u%d", t.Width)
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
