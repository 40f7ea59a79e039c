package coex

import "context"

// Satisfiability is a solver verdict.
type Satisfiability int

// Solver verdicts. Unknown is a legitimate outcome, not an error; callers
// that cannot act on it drop the query.
const (
	Unknown = Satisfiability(iota)
	Sat
	Unsat
)

// String returns the string representation of the verdict.
func (s Satisfiability) String() string {
	switch s {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Model is a satisfying assignment of input variables.
type Model map[string]*ConstantExpr

// Solver finds satisfying assignments for conjunctions of boolean
// constraints. Implementations must be usable for repeated queries but need
// not be safe for concurrent use.
type Solver interface {
	// Solve reports whether the conjunction of constraints is satisfiable.
	// On Sat the model assigns every variable in vars. The error return is
	// reserved for adapter failures; Unknown verdicts are not errors.
	Solve(ctx context.Context, constraints []Expr, vars []*VarExpr) (Satisfiability, Model, error)
}
