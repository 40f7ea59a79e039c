package coex

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultMaxSteps is the per-run instruction budget.
const DefaultMaxSteps = 1 << 20

// Pass observes every value-producing instruction after it executes. Passes
// may record events through md.Record(); they must not mutate the trace tree
// or the values they are handed.
type Pass func(md *Metadata, fn *Func, instr Instr, args []Value, result Value)

// interp drives a single run. It is not safe for concurrent use.
type interp struct {
	md       *Metadata
	passes   []Pass
	logger   zerolog.Logger
	maxSteps int
	steps    int
}

// frame is the register state of one function activation.
type frame struct {
	fn    *Func
	block *Block
	pc    int
	regs  []Value
}

func newFrame(fn *Func, args []Value) *frame {
	fr := &frame{fn: fn, block: fn.Blocks[0]}
	fr.regs = make([]Value, len(args))
	copy(fr.regs, args)
	return fr
}

// setReg binds a register, growing the frame as needed.
func (fr *frame) setReg(r Reg, v Value) {
	for int(r) >= len(fr.regs) {
		fr.regs = append(fr.regs, Value{})
	}
	fr.regs[r] = v
}

// operand resolves an operand against the frame.
func (fr *frame) operand(op Operand) Value {
	switch op := op.(type) {
	case Reg:
		assert(int(op) < len(fr.regs) && fr.regs[op].Concrete != nil, "%s: unbound register %s", fr.fn.Name, op)
		return fr.regs[op]
	case Imm:
		return NewConcreteValue(op.Value, op.Type.Width)
	default:
		panic("unreachable")
	}
}

// run executes fn to completion and returns its result value. A child trace
// node is opened for the call. Target faults and engine errors both surface
// as the returned error; Execute separates them afterward.
func (in *interp) run(fn *Func, args []Value) (Value, error) {
	assert(len(args) == len(fn.Params), "%s: arg count mismatch: %d != %d", fn.Name, len(args), len(fn.Params))

	in.md.PushFrame(fn.Name)
	defer in.md.PopFrame()

	fr := newFrame(fn, args)
	for {
		if in.steps++; in.steps > in.maxSteps {
			return Value{}, fmt.Errorf("%s: %w", fn.Name, ErrStepLimit)
		}

		assert(fr.pc < len(fr.block.Instrs), "%s: fell off block b%d", fn.Name, fr.block.Index)
		instr := fr.block.Instrs[fr.pc]
		in.logger.Debug().
			Str("fn", fn.Name).
			Int("block", fr.block.Index).
			Int("pc", fr.pc).
			Stringer("instr", instr).
			Msg("exec")

		switch instr := instr.(type) {
		case *BinOpInstr:
			x, y := fr.operand(instr.X), fr.operand(instr.Y)
			result, err := ApplyBinary(instr.Op, x, y)
			if err != nil {
				return Value{}, err
			}
			fr.setReg(instr.Dst, result)
			in.notify(fn, instr, []Value{x, y}, result)
			fr.pc++

		case *UnOpInstr:
			x := fr.operand(instr.X)
			result, err := ApplyUnary(instr.Op, x)
			if err != nil {
				return Value{}, err
			}
			fr.setReg(instr.Dst, result)
			in.notify(fn, instr, []Value{x}, result)
			fr.pc++

		case *ConvertInstr:
			x := fr.operand(instr.X)
			result := ApplyCast(x, instr.Type.Width, instr.Type.Signed)
			fr.setReg(instr.Dst, result)
			in.notify(fn, instr, []Value{x}, result)
			fr.pc++

		case *IfInstr:
			cond := fr.operand(instr.Cond)
			assert(cond.Width() == WidthBool, "%s: branch condition is not boolean: %s", fn.Name, cond)
			taken := cond.Concrete.Value != 0

			// Record the condition before its tag is discarded. Only symbolic
			// conditions constrain the path.
			if cond.IsSymbolic() {
				in.md.AddEvent(&BranchEvent{Cond: cond.Symbolic, Taken: taken, Site: instr.Site})
			}

			if taken {
				fr.block = fn.Blocks[instr.Then]
			} else {
				fr.block = fn.Blocks[instr.Else]
			}
			fr.pc = 0

		case *JumpInstr:
			fr.block = fn.Blocks[instr.Target]
			fr.pc = 0

		case *ReturnInstr:
			return fr.operand(instr.X), nil

		case *CallInstr:
			callArgs := make([]Value, len(instr.Args))
			for i, arg := range instr.Args {
				callArgs[i] = fr.operand(arg)
			}
			result, err := in.run(instr.Func, callArgs)
			if err != nil {
				return Value{}, err
			}
			fr.setReg(instr.Dst, result)
			fr.pc++

		case *AssertInstr:
			cond := fr.operand(instr.Cond)
			assert(cond.Width() == WidthBool, "%s: assert condition is not boolean: %s", fn.Name, cond)
			in.md.AddEvent(&AssertEvent{Cond: cond.Expr(), Kind: instr.Kind, Site: instr.Site})
			fr.pc++

		case *PanicInstr:
			return Value{}, &TargetFault{Msg: instr.Msg}

		default:
			return Value{}, &UnsupportedOpError{Op: fmt.Sprintf("%T", instr)}
		}
	}
}

// notify invokes all instrumentation passes for a value-producing
// instruction.
func (in *interp) notify(fn *Func, instr Instr, args []Value, result Value) {
	for _, pass := range in.passes {
		pass(in.md, fn, instr, args, result)
	}
}

// OverflowCheckPass records a must-hold assertion that signed addition and
// subtraction did not wrap. Recorded events go to the run's pass record, not
// its trace, so they never perturb the path constraint.
func OverflowCheckPass(md *Metadata, fn *Func, instr Instr, args []Value, result Value) {
	binop, ok := instr.(*BinOpInstr)
	if !ok || (binop.Op != ADD && binop.Op != SUB) {
		return
	} else if result.Width() == WidthBool {
		return
	}

	x, y := args[0], args[1]
	zero := NewConstantExpr(0, result.Width())
	sx := NewBinaryExpr(SLT, x.Expr(), zero)
	sy := NewBinaryExpr(SLT, y.Expr(), zero)
	sr := NewBinaryExpr(SLT, result.Expr(), zero)

	// add wraps when both operands share a sign the result lost; sub wraps
	// when the operands differ in sign and the result left the minuend's.
	var overflow Expr
	if binop.Op == ADD {
		overflow = NewBinaryExpr(AND, NewBinaryExpr(EQ, sx, sy), NewBinaryExpr(NE, sr, sx))
	} else {
		overflow = NewBinaryExpr(AND, NewBinaryExpr(NE, sx, sy), NewBinaryExpr(NE, sr, sx))
	}

	md.Record(&AssertEvent{Cond: NewIsZeroExpr(overflow), Kind: AssertMustHold, Site: -1})
}
