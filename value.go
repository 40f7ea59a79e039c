package coex

import "fmt"

// Value is a runtime value carrying a concrete constant plus an optional
// symbolic shadow expression. A nil symbolic side means the value is a pure
// concrete value with no input dependence.
type Value struct {
	Concrete *ConstantExpr
	Symbolic Expr
}

// NewConcreteValue returns a value with no symbolic shadow.
func NewConcreteValue(value uint64, width uint) Value {
	return Value{Concrete: NewConstantExpr(value, width)}
}

// NewSymbolicValue returns a value seeded from a symbolic variable.
func NewSymbolicValue(concrete *ConstantExpr, symbolic Expr) Value {
	return Value{Concrete: concrete, Symbolic: symbolic}
}

// IsSymbolic returns true if the value carries a symbolic shadow.
func (v Value) IsSymbolic() bool {
	return v.Symbolic != nil
}

// Width returns the bit width of the value.
func (v Value) Width() uint {
	return v.Concrete.Width
}

// Expr returns the symbolic side if present, otherwise the concrete constant.
func (v Value) Expr() Expr {
	if v.Symbolic != nil {
		return v.Symbolic
	}
	return v.Concrete
}

// String returns the string representation of the value.
func (v Value) String() string {
	if v.Symbolic != nil {
		return fmt.Sprintf("%s~%s", v.Concrete, v.Symbolic)
	}
	return v.Concrete.String()
}

// ApplyBinary applies op to two values. The concrete sides always combine
// concretely. A symbolic shadow is built only if at least one operand carries
// one; purely concrete operands never produce a symbolic result.
func ApplyBinary(op BinaryOp, lhs, rhs Value) (Value, error) {
	if err := checkConcreteBinary(op, rhs.Concrete); err != nil {
		return Value{}, err
	}

	concrete, ok := NewBinaryExpr(op, lhs.Concrete, rhs.Concrete).(*ConstantExpr)
	assert(ok, "binary op on constants did not fold: %s", op)

	if !lhs.IsSymbolic() && !rhs.IsSymbolic() {
		return Value{Concrete: concrete}, nil
	}

	symbolic := NewBinaryExpr(op, lhs.Expr(), rhs.Expr())
	if symbolic, ok := symbolic.(*ConstantExpr); ok {
		// Folded to a constant; the shadow carries no input dependence.
		assert(symbolic.Value == concrete.Value, "symbolic fold diverged from concrete: %s != %s", symbolic, concrete)
		return Value{Concrete: concrete}, nil
	}
	return Value{Concrete: concrete, Symbolic: symbolic}, nil
}

// ApplyUnary applies a unary op to a value.
func ApplyUnary(op UnaryOp, v Value) (Value, error) {
	var concrete *ConstantExpr
	var symbolic Expr
	switch op {
	case NOT:
		concrete = v.Concrete.Not()
		if v.IsSymbolic() {
			symbolic = NewNotExpr(v.Symbolic)
		}
	case NEG:
		concrete = v.Concrete.Neg()
		if v.IsSymbolic() {
			symbolic = NewBinaryExpr(SUB, NewConstantExpr(0, v.Width()), v.Symbolic)
		}
	default:
		return Value{}, &UnsupportedOpError{Op: op.String()}
	}

	if symbolic, ok := symbolic.(*ConstantExpr); ok && symbolic != nil {
		assert(symbolic.Value == concrete.Value, "symbolic fold diverged from concrete: %s != %s", symbolic, concrete)
		return Value{Concrete: concrete}, nil
	}
	return Value{Concrete: concrete, Symbolic: symbolic}, nil
}

// ApplyCast converts a value to a new width.
func ApplyCast(v Value, width uint, signed bool) Value {
	var concrete *ConstantExpr
	if signed {
		concrete = v.Concrete.SExt(width)
	} else {
		concrete = v.Concrete.ZExt(width)
	}

	if !v.IsSymbolic() {
		return Value{Concrete: concrete}
	}
	symbolic := NewCastExpr(v.Symbolic, width, signed)
	if symbolic, ok := symbolic.(*ConstantExpr); ok {
		assert(symbolic.Value == concrete.Value, "symbolic fold diverged from concrete: %s != %s", symbolic, concrete)
		return Value{Concrete: concrete}
	}
	return Value{Concrete: concrete, Symbolic: symbolic}
}

// checkConcreteBinary validates that the concrete operands permit op.
// Division or remainder by a concrete zero is a target fault, not an
// engine error.
func checkConcreteBinary(op BinaryOp, rhs *ConstantExpr) error {
	switch op {
	case UDIV, SDIV:
		if rhs.Value == 0 {
			return &TargetFault{Msg: "integer divide by zero"}
		}
	case UREM, SREM:
		if rhs.Value == 0 {
			return &TargetFault{Msg: "integer remainder by zero"}
		}
	}
	return nil
}
