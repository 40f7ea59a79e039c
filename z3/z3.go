// Package z3 implements a coex.Solver backed by the Z3 SMT solver through
// cgo. It requires libz3 at build and run time.
package z3

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/coexec/coex"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdio.h>
*/
import "C"

// Ensure solver implements interface.
var _ coex.Solver = (*Solver)(nil)

// Solver represents a solver that uses an embedded Z3 solver. A fresh Z3
// solver object is created per query; the context is shared, so a Solver
// must not be used from multiple goroutines at once.
type Solver struct {
	ctx   *Context
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	return s.stats
}

// Solve reports the satisfiability of the conjunction of constraints. On a
// Sat verdict the returned model assigns every variable in vars. A context
// deadline is forwarded to Z3 as a query timeout.
func (s *Solver) Solve(ctx context.Context, constraints []coex.Expr, vars []*coex.VarExpr) (coex.Satisfiability, coex.Model, error) {
	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	if err := ctx.Err(); err != nil {
		return coex.Unknown, nil, err
	}

	solver := C.Z3_mk_solver(s.ctx.raw)
	if err := s.ctx.err("Z3_mk_solver"); err != nil {
		return coex.Unknown, nil, err
	}
	C.Z3_solver_inc_ref(s.ctx.raw, solver)
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.ctx.setTimeout(solver, time.Until(deadline)); err != nil {
			return coex.Unknown, nil, err
		}
	}

	// Assert constraints.
	for _, constraint := range constraints {
		z3Constraint, err := s.ctx.toAST(constraint)
		if err != nil {
			return coex.Unknown, nil, err
		}
		C.Z3_solver_assert(s.ctx.raw, solver, z3Constraint)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return coex.Unknown, nil, err
		}
	}

	// Check equations with the solver.
	// Exit immediately if unsatisfiable or the solver encountered an error.
	ret := C.Z3_solver_check(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return coex.Unknown, nil, err
	} else if ret == C.Z3_L_FALSE {
		return coex.Unsat, nil, nil
	} else if ret == C.Z3_L_UNDEF {
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return coex.Unknown, nil, coex.ErrSolverTimeout
		case strings.Contains(reason, "canceled"):
			return coex.Unknown, nil, coex.ErrSolverCanceled
		case strings.Contains(reason, "(resource limits reached)"):
			return coex.Unknown, nil, coex.ErrSolverResourceLimit
		default:
			return coex.Unknown, nil, nil
		}
	} else if len(vars) == 0 {
		return coex.Sat, nil, nil // no symbolics, ignore model
	}

	// Calculate a model for the given formula.
	model := C.Z3_solver_get_model(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return coex.Sat, nil, err
	}
	C.Z3_model_inc_ref(s.ctx.raw, model)
	defer C.Z3_model_dec_ref(s.ctx.raw, model)

	// Fetch values for the symbolic variables.
	values, err := s.ctx.eval(model, vars)
	if err != nil {
		return coex.Sat, nil, err
	}
	return coex.Sat, values, nil
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// setTimeout applies a per-query timeout to the solver.
func (ctx *Context) setTimeout(solver C.Z3_solver, d time.Duration) error {
	if d <= 0 {
		return coex.ErrSolverTimeout
	}

	params := C.Z3_mk_params(ctx.raw)
	if err := ctx.err("Z3_mk_params"); err != nil {
		return err
	}
	C.Z3_params_inc_ref(ctx.raw, params)
	defer C.Z3_params_dec_ref(ctx.raw, params)

	cname := C.CString("timeout")
	defer C.free(unsafe.Pointer(cname))
	sym := C.Z3_mk_string_symbol(ctx.raw, cname)
	C.Z3_params_set_uint(ctx.raw, params, sym, C.uint(d.Milliseconds()))
	if err := ctx.err("Z3_params_set_uint"); err != nil {
		return err
	}

	C.Z3_solver_set_params(ctx.raw, solver, params)
	return ctx.err("Z3_solver_set_params")
}

// toAST returns a new instance of Z3_ast from a coex expression.
func (ctx *Context) toAST(expr coex.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *coex.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *coex.VarExpr:
		return ctx.makeVarConst(expr)
	case *coex.CastExpr:
		return ctx.toCastAST(expr)
	case *coex.NotExpr:
		return ctx.toNotAST(expr)
	case *coex.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, &coex.UnsupportedExprError{Expr: fmt.Sprintf("%T", expr)}
	}
}

func (ctx *Context) toConstantAST(expr *coex.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == 1 {
		if expr.IsTrue() {
			return ctx.makeTrue()
		}
		return ctx.makeFalse()
	} else if expr.Width <= 32 {
		return ctx.makeUint(expr.Width, uint32(expr.Value))
	} else if expr.Width <= 64 {
		return ctx.makeUint64(expr.Width, expr.Value)
	}
	return nil, fmt.Errorf("z3.Context.toConstantAST: invalid expression width: %d", expr.Width)
}

// makeVarConst returns the named constant for an input variable. Boolean
// variables use the bool sort; every other width is a bit vector.
func (ctx *Context) makeVarConst(expr *coex.VarExpr) (C.Z3_ast, error) {
	cname := C.CString(expr.Name)
	defer C.free(unsafe.Pointer(cname))
	nameSymbol := C.Z3_mk_string_symbol(ctx.raw, cname)
	if err := ctx.err("Z3_mk_string_symbol"); err != nil {
		return nil, err
	}

	var sort C.Z3_sort
	if expr.Type.Width == 1 {
		sort = C.Z3_mk_bool_sort(ctx.raw)
		if err := ctx.err("Z3_mk_bool_sort"); err != nil {
			return nil, err
		}
	} else {
		var err error
		if sort, err = ctx.makeBVSort(expr.Type.Width); err != nil {
			return nil, err
		}
	}
	return C.Z3_mk_const(ctx.raw, nameSymbol, sort), ctx.err("Z3_mk_const")
}

func (ctx *Context) toCastAST(expr *coex.CastExpr) (C.Z3_ast, error) {
	srcWidth := coex.ExprWidth(expr.Src)
	if expr.Width < srcWidth {
		return ctx.toTruncAST(expr, srcWidth)
	} else if expr.Signed {
		return ctx.toSignedCastAST(expr)
	}
	return ctx.toUnsignedCastAST(expr)
}

// toTruncAST narrows src to the cast width. Narrowing to the boolean width
// tests the value against zero, matching the concrete semantics.
func (ctx *Context) toTruncAST(expr *coex.CastExpr, srcWidth uint) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	if expr.Width == 1 {
		zero, err := ctx.makeUint64(srcWidth, 0)
		if err != nil {
			return nil, err
		}
		eq := C.Z3_mk_eq(ctx.raw, src, zero)
		if err := ctx.err("Z3_mk_eq"); err != nil {
			return nil, err
		}
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_extract(ctx.raw, C.uint(expr.Width-1), 0, src), ctx.err("Z3_mk_extract")
}

func (ctx *Context) toSignedCastAST(expr *coex.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	// Convert boolean cast to if-then-else expression.
	if coex.ExprWidth(expr.Src) == 1 {
		minusOne := int64(-1)
		whenTrue, err := ctx.makeUint64(expr.Width, uint64(minusOne))
		if err != nil {
			return nil, err
		}
		whenFalse, err := ctx.makeUint64(expr.Width, 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, src, whenTrue, whenFalse), ctx.err("Z3_mk_ite")
	}

	// Otherwise return sign-extension.
	return C.Z3_mk_sign_ext(ctx.raw, C.uint(expr.Width-uint(ctx.bvSize(src))), src), ctx.err("Z3_mk_sign_ext")
}

func (ctx *Context) toUnsignedCastAST(expr *coex.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Src)
	if err != nil {
		return nil, err
	}

	// Convert boolean cast to if-then-else expression.
	if coex.ExprWidth(expr.Src) == 1 {
		whenTrue, err := ctx.makeUint64(expr.Width, 1)
		if err != nil {
			return nil, err
		}
		whenFalse, err := ctx.makeUint64(expr.Width, 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, src, whenTrue, whenFalse), ctx.err("Z3_mk_ite")
	}

	// Otherwise return zero-padding bit vector.
	padding, err := ctx.makeUint64(expr.Width-ctx.bvSize(src), 0)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_concat(ctx.raw, padding, src), ctx.err("Z3_mk_concat")
}

func (ctx *Context) toNotAST(expr *coex.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If boolean, use boolean NOT operation.
	if coex.ExprWidth(expr.Expr) == 1 {
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
}

func (ctx *Context) toBinaryAST(expr *coex.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	boolean := coex.ExprWidth(expr.LHS) == 1

	switch expr.Op {
	case coex.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case coex.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case coex.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case coex.UDIV:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case coex.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case coex.UREM:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case coex.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case coex.AND:
		if boolean {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		}
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case coex.OR:
		if boolean {
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
		}
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case coex.XOR:
		if boolean {
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		}
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case coex.SHL:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case coex.LSHR:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case coex.ASHR:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case coex.EQ:
		if boolean {
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		}
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case coex.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case coex.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case coex.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case coex.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	default:
		return nil, &coex.UnsupportedExprError{Expr: fmt.Sprintf("binary op %s", expr.Op)}
	}
}

func (ctx *Context) makeTrue() (C.Z3_ast, error) {
	return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
}

func (ctx *Context) makeFalse() (C.Z3_ast, error) {
	return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
}

func (ctx *Context) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *Context) makeUint(width uint, value uint32) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int(ctx.raw, C.uint(value), t), ctx.err("Z3_mk_unsigned_int")
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.ulong(value), t), ctx.err("Z3_mk_unsigned_int64")
}

func (ctx *Context) bvSize(expr C.Z3_ast) uint {
	t := C.Z3_get_sort(ctx.raw, expr)
	if err := ctx.err("Z3_get_sort"); err != nil {
		panic(err)
	}
	sz := uint(C.Z3_get_bv_sort_size(ctx.raw, t))
	if err := ctx.err("Z3_get_bv_sort_size"); err != nil {
		panic(err)
	}
	return sz
}

// eval extracts the model's assignment for each variable.
func (ctx *Context) eval(model C.Z3_model, vars []*coex.VarExpr) (coex.Model, error) {
	values := make(coex.Model, len(vars))
	for _, v := range vars {
		value, err := ctx.evalVar(model, v)
		if err != nil {
			return nil, err
		}
		values[v.Name] = value
	}
	return values, nil
}

// evalVar evaluates a single variable against the model. Model completion is
// enabled so unconstrained variables still receive a value.
func (ctx *Context) evalVar(model C.Z3_model, v *coex.VarExpr) (*coex.ConstantExpr, error) {
	ref, err := ctx.makeVarConst(v)
	if err != nil {
		return nil, err
	}

	var evaluated C.Z3_ast
	C.Z3_model_eval(ctx.raw, model, ref, C.bool(true), &evaluated)
	if err := ctx.err("Z3_model_eval"); err != nil {
		return nil, err
	}

	if v.Type.Width == 1 {
		switch C.Z3_get_bool_value(ctx.raw, evaluated) {
		case C.Z3_L_TRUE:
			return coex.NewBoolConstantExpr(true), nil
		case C.Z3_L_FALSE:
			return coex.NewBoolConstantExpr(false), nil
		default:
			return nil, fmt.Errorf("z3: non-constant bool model value for %s", v.Name)
		}
	}

	var value C.uint64_t
	C.Z3_get_numeral_uint64(ctx.raw, evaluated, &value)
	if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
		return nil, err
	}
	return coex.NewConstantExpr(uint64(value), v.Type.Width), nil
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats holds counters for solver usage.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
