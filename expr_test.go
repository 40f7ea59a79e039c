package coex_test

import (
	"testing"

	"github.com/coexec/coex"
	"github.com/google/go-cmp/cmp"
)

func TestExprWidth(t *testing.T) {
	t.Run("ConstantExpr", func(t *testing.T) {
		if w := coex.ExprWidth(&coex.ConstantExpr{Value: 0, Width: 8}); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("VarExpr", func(t *testing.T) {
		if w := coex.ExprWidth(coex.NewVarExpr("x", coex.TypeInt32)); w != 32 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("NotExpr", func(t *testing.T) {
		if w := coex.ExprWidth(&coex.NotExpr{Expr: &coex.ConstantExpr{Value: 0, Width: 8}}); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("CastExpr", func(t *testing.T) {
		if w := coex.ExprWidth(&coex.CastExpr{Src: coex.NewVarExpr("x", coex.TypeInt8), Width: 16}); w != 16 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("BinaryExpr", func(t *testing.T) {
		t.Run("Bool", func(t *testing.T) {
			if w := coex.ExprWidth(&coex.BinaryExpr{
				Op:  coex.EQ,
				LHS: &coex.ConstantExpr{Value: 0, Width: 8},
				RHS: &coex.ConstantExpr{Value: 0, Width: 8},
			}); w != 1 {
				t.Fatalf("unexpected width: %d", w)
			}
		})
		t.Run("NonBool", func(t *testing.T) {
			if w := coex.ExprWidth(&coex.BinaryExpr{
				Op:  coex.ADD,
				LHS: &coex.ConstantExpr{Value: 0, Width: 8},
				RHS: &coex.ConstantExpr{Value: 0, Width: 8},
			}); w != 8 {
				t.Fatalf("unexpected width: %d", w)
			}
		})
	})
}

func TestBinaryOp_String(t *testing.T) {
	t.Run("Known", func(t *testing.T) {
		if s := coex.ADD.String(); s != "add" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Unknown", func(t *testing.T) {
		if s := coex.BinaryOp(1000).String(); s != "BinaryOp<1000>" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
}

func TestNewBinaryExpr_Fold(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		expr := coex.NewBinaryExpr(coex.ADD, coex.NewConstantExpr32(3), coex.NewConstantExpr32(4))
		if diff := cmp.Diff(expr, coex.NewConstantExpr32(7)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("AddZero", func(t *testing.T) {
		x := coex.NewVarExpr("x", coex.TypeUint32)
		if expr := coex.NewBinaryExpr(coex.ADD, x, coex.NewConstantExpr32(0)); expr != coex.Expr(x) {
			t.Fatalf("unexpected expr: %s", expr)
		}
	})
	t.Run("SubSelf", func(t *testing.T) {
		x := coex.NewVarExpr("x", coex.TypeUint32)
		expr := coex.NewBinaryExpr(coex.SUB, x, x)
		if diff := cmp.Diff(expr, coex.NewConstantExpr32(0)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("MulOne", func(t *testing.T) {
		x := coex.NewVarExpr("x", coex.TypeUint32)
		if expr := coex.NewBinaryExpr(coex.MUL, x, coex.NewConstantExpr32(1)); expr != coex.Expr(x) {
			t.Fatalf("unexpected expr: %s", expr)
		}
	})
	t.Run("MulZero", func(t *testing.T) {
		x := coex.NewVarExpr("x", coex.TypeUint32)
		expr := coex.NewBinaryExpr(coex.MUL, x, coex.NewConstantExpr32(0))
		if diff := cmp.Diff(expr, coex.NewConstantExpr32(0)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("EqSelf", func(t *testing.T) {
		x := coex.NewVarExpr("x", coex.TypeUint32)
		expr := coex.NewBinaryExpr(coex.EQ, x, x)
		if !coex.IsConstantTrue(expr) {
			t.Fatalf("unexpected expr: %s", expr)
		}
	})
}

func TestNewBinaryExpr_Canonicalize(t *testing.T) {
	x := coex.NewVarExpr("x", coex.TypeInt64)
	zero := coex.NewConstantExpr64(0)

	t.Run("ConstantToLHS", func(t *testing.T) {
		expr, ok := coex.NewBinaryExpr(coex.ADD, x, coex.NewConstantExpr64(5)).(*coex.BinaryExpr)
		if !ok {
			t.Fatal("expected binary expr")
		} else if !coex.IsConstantExpr(expr.LHS) {
			t.Fatalf("constant not canonicalized to LHS: %s", expr)
		}
	})

	// SGT and SLT with mirrored operands must build the same tree so path
	// signatures dedup across runs.
	t.Run("ReversedCompare", func(t *testing.T) {
		a := coex.NewBinaryExpr(coex.SGT, x, zero)
		b := coex.NewBinaryExpr(coex.SLT, zero, x)
		if coex.CompareExpr(a, b) != 0 {
			t.Fatalf("expressions differ: %s vs %s", a, b)
		}
	})
}

func TestConstantExpr(t *testing.T) {
	t.Run("Int", func(t *testing.T) {
		if v := coex.NewConstantExpr8(0xFF).Int(); v != -1 {
			t.Fatalf("unexpected value: %d", v)
		}
	})
	t.Run("SDiv", func(t *testing.T) {
		a := coex.NewConstantExpr8(0xFA) // -6
		b := coex.NewConstantExpr8(2)
		if v := a.SDiv(b).Int(); v != -3 {
			t.Fatalf("unexpected value: %d", v)
		}
	})
	t.Run("AShr", func(t *testing.T) {
		a := coex.NewConstantExpr8(0xF8) // -8
		if v := a.AShr(coex.NewConstantExpr8(1)).Int(); v != -4 {
			t.Fatalf("unexpected value: %d", v)
		}
	})
	t.Run("ShlOverflow", func(t *testing.T) {
		if v := coex.NewConstantExpr8(1).Shl(coex.NewConstantExpr8(9)).Value; v != 0 {
			t.Fatalf("unexpected value: %d", v)
		}
	})
	t.Run("SExt", func(t *testing.T) {
		if v := coex.NewConstantExpr8(0x80).SExt(16).Value; v != 0xFF80 {
			t.Fatalf("unexpected value: %#x", v)
		}
	})
	t.Run("ZExtToBool", func(t *testing.T) {
		if v := coex.NewConstantExpr8(2).ZExt(1); !v.IsTrue() {
			t.Fatalf("unexpected value: %s", v)
		}
	})
	t.Run("Slt", func(t *testing.T) {
		a := coex.NewConstantExpr64(^uint64(0)) // -1
		b := coex.NewConstantExpr64(1)
		if !a.Slt(b).IsTrue() {
			t.Fatal("expected -1 < 1")
		} else if a.Ult(b).IsTrue() {
			t.Fatal("expected MaxUint64 >= 1 unsigned")
		}
	})
}

func TestCompareExpr(t *testing.T) {
	x := coex.NewVarExpr("x", coex.TypeInt64)
	y := coex.NewVarExpr("y", coex.TypeInt64)

	t.Run("Equal", func(t *testing.T) {
		a := coex.NewBinaryExpr(coex.ADD, x, y)
		b := coex.NewBinaryExpr(coex.ADD, x, y)
		if cmp := coex.CompareExpr(a, b); cmp != 0 {
			t.Fatalf("unexpected cmp: %d", cmp)
		}
	})
	t.Run("VarName", func(t *testing.T) {
		if cmp := coex.CompareExpr(x, y); cmp != -1 {
			t.Fatalf("unexpected cmp: %d", cmp)
		}
	})
	t.Run("Kind", func(t *testing.T) {
		if cmp := coex.CompareExpr(coex.NewConstantExpr64(0), x); cmp != -1 {
			t.Fatalf("unexpected cmp: %d", cmp)
		}
	})
	t.Run("Nil", func(t *testing.T) {
		if cmp := coex.CompareExpr(nil, nil); cmp != 0 {
			t.Fatalf("unexpected cmp: %d", cmp)
		}
	})
}

func TestFindVars(t *testing.T) {
	x := coex.NewVarExpr("x", coex.TypeInt64)
	y := coex.NewVarExpr("y", coex.TypeInt64)

	// y before x in the tree; result must be sorted and distinct.
	expr := coex.NewBinaryExpr(coex.ADD, coex.NewBinaryExpr(coex.MUL, y, x), y)
	vars := coex.FindVars(expr)
	if len(vars) != 2 {
		t.Fatalf("unexpected var count: %d", len(vars))
	} else if vars[0].Name != "x" || vars[1].Name != "y" {
		t.Fatalf("unexpected order: %s, %s", vars[0].Name, vars[1].Name)
	}
}

func TestExprEvaluator(t *testing.T) {
	x := coex.NewVarExpr("x", coex.TypeInt64)

	t.Run("Bound", func(t *testing.T) {
		eval := coex.NewExprEvaluator(map[string]*coex.ConstantExpr{"x": i64(7)})
		expr := coex.NewBinaryExpr(coex.ADD, x, coex.NewConstantExpr64(1))
		if value, err := eval.Evaluate(expr); err != nil {
			t.Fatal(err)
		} else if value.Value != 8 {
			t.Fatalf("unexpected value: %d", value.Value)
		}
	})
	t.Run("Compare", func(t *testing.T) {
		eval := coex.NewExprEvaluator(map[string]*coex.ConstantExpr{"x": i64(-3)})
		expr := coex.NewBinaryExpr(coex.SGT, x, coex.NewConstantExpr64(0))
		if value, err := eval.Evaluate(expr); err != nil {
			t.Fatal(err)
		} else if !value.IsFalse() {
			t.Fatalf("unexpected value: %s", value)
		}
	})
	t.Run("Unbound", func(t *testing.T) {
		eval := coex.NewExprEvaluator(nil)
		if _, err := eval.Evaluate(x); err == nil {
			t.Fatal("expected error")
		}
	})
}
