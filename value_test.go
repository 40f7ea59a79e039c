package coex_test

import (
	"errors"
	"testing"

	"github.com/coexec/coex"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestApplyBinary(t *testing.T) {
	t.Run("Concrete", func(t *testing.T) {
		x := coex.NewConcreteValue(3, coex.Width64)
		y := coex.NewConcreteValue(4, coex.Width64)
		if v, err := coex.ApplyBinary(coex.ADD, x, y); err != nil {
			t.Fatal(err)
		} else if v.Concrete.Value != 7 {
			t.Fatalf("unexpected value: %d", v.Concrete.Value)
		} else if v.IsSymbolic() {
			t.Fatal("expected concrete value")
		}
	})

	t.Run("Symbolic", func(t *testing.T) {
		x := coex.NewSymbolicValue(i64(3), coex.NewVarExpr("x", coex.TypeInt64))
		y := coex.NewConcreteValue(4, coex.Width64)
		if v, err := coex.ApplyBinary(coex.ADD, x, y); err != nil {
			t.Fatal(err)
		} else if v.Concrete.Value != 7 {
			t.Fatalf("unexpected value: %d", v.Concrete.Value)
		} else if !v.IsSymbolic() {
			t.Fatal("expected symbolic value")
		}
	})

	// x - x folds to a constant; the result must drop its shadow.
	t.Run("FoldedShadow", func(t *testing.T) {
		x := coex.NewSymbolicValue(i64(3), coex.NewVarExpr("x", coex.TypeInt64))
		if v, err := coex.ApplyBinary(coex.SUB, x, x); err != nil {
			t.Fatal(err)
		} else if v.Concrete.Value != 0 {
			t.Fatalf("unexpected value: %d", v.Concrete.Value)
		} else if v.IsSymbolic() {
			t.Fatal("expected concrete value after fold")
		}
	})

	t.Run("DivByZero", func(t *testing.T) {
		x := coex.NewConcreteValue(10, coex.Width64)
		y := coex.NewConcreteValue(0, coex.Width64)
		_, err := coex.ApplyBinary(coex.SDIV, x, y)
		var fault *coex.TargetFault
		if !errors.As(err, &fault) {
			t.Fatalf("expected target fault, got %v", err)
		}
	})

	// Division by a symbolic zero still faults; the concrete side decides.
	t.Run("DivBySymbolicZero", func(t *testing.T) {
		x := coex.NewConcreteValue(10, coex.Width64)
		y := coex.NewSymbolicValue(i64(0), coex.NewVarExpr("y", coex.TypeInt64))
		_, err := coex.ApplyBinary(coex.UREM, x, y)
		var fault *coex.TargetFault
		if !errors.As(err, &fault) {
			t.Fatalf("expected target fault, got %v", err)
		}
	})
}

func TestApplyUnary(t *testing.T) {
	t.Run("Not", func(t *testing.T) {
		x := coex.NewConcreteValue(0, coex.Width8)
		if v, err := coex.ApplyUnary(coex.NOT, x); err != nil {
			t.Fatal(err)
		} else if v.Concrete.Value != 0xFF {
			t.Fatalf("unexpected value: %#x", v.Concrete.Value)
		}
	})
	t.Run("Neg", func(t *testing.T) {
		x := coex.NewSymbolicValue(i64(3), coex.NewVarExpr("x", coex.TypeInt64))
		if v, err := coex.ApplyUnary(coex.NEG, x); err != nil {
			t.Fatal(err)
		} else if v.Concrete.Int() != -3 {
			t.Fatalf("unexpected value: %d", v.Concrete.Int())
		} else if !v.IsSymbolic() {
			t.Fatal("expected symbolic value")
		}
	})
}

func TestApplyCast(t *testing.T) {
	t.Run("SExt", func(t *testing.T) {
		x := coex.NewSymbolicValue(coex.NewConstantExpr8(0x80), coex.NewVarExpr("x", coex.TypeInt8))
		v := coex.ApplyCast(x, coex.Width64, true)
		if v.Concrete.Int() != -128 {
			t.Fatalf("unexpected value: %d", v.Concrete.Int())
		} else if !v.IsSymbolic() {
			t.Fatal("expected symbolic value")
		}
	})
	t.Run("Trunc", func(t *testing.T) {
		x := coex.NewConcreteValue(0x1FF, coex.Width64)
		v := coex.ApplyCast(x, coex.Width8, false)
		if v.Concrete.Value != 0xFF {
			t.Fatalf("unexpected value: %#x", v.Concrete.Value)
		}
	})
}

// Concrete-only operands must never grow a symbolic shadow, and the concrete
// result must match direct constant arithmetic, for all operators and inputs.
func TestApplyBinary_NoSpuriousShadow(t *testing.T) {
	ops := []coex.BinaryOp{
		coex.ADD, coex.SUB, coex.MUL, coex.AND, coex.OR, coex.XOR,
		coex.SHL, coex.LSHR, coex.ASHR,
		coex.EQ, coex.ULT, coex.ULE, coex.SLT, coex.SLE,
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("concrete in, concrete out", prop.ForAll(
		func(a, b uint64, opIndex int) bool {
			op := ops[opIndex%len(ops)]
			x := coex.NewConcreteValue(a, coex.Width64)
			y := coex.NewConcreteValue(b, coex.Width64)

			v, err := coex.ApplyBinary(op, x, y)
			if err != nil {
				return false
			}
			if v.IsSymbolic() {
				return false
			}

			want, ok := coex.NewBinaryExpr(op, x.Concrete, y.Concrete).(*coex.ConstantExpr)
			return ok && v.Concrete.Value == want.Value && v.Concrete.Width == want.Width
		},
		gen.UInt64(),
		gen.UInt64(),
		gen.IntRange(0, len(ops)-1),
	))
	properties.TestingRun(t)
}
