package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/coexec/coex"
)

// builtinPrograms maps a name to a constructor for one of the sample
// programs that ship with the tool.
var builtinPrograms = map[string]func() *coex.Func{
	"sign":     buildSignProgram,
	"clamp":    buildClampProgram,
	"divide":   buildDivideProgram,
	"overflow": buildOverflowProgram,
}

func lookupProgram(name string) (*coex.Func, error) {
	build, ok := builtinPrograms[name]
	if !ok {
		return nil, fmt.Errorf("unknown program: %q", name)
	}
	return build(), nil
}

func programNames() []string {
	a := make([]string, 0, len(builtinPrograms))
	for name := range builtinPrograms {
		a = append(a, name)
	}
	sort.Strings(a)
	return a
}

// buildSignProgram returns a function that computes the sign of its
// argument as -1, 0, or 1.
func buildSignProgram() *coex.Func {
	b := coex.NewFuncBuilder("sign", coex.Param{Name: "x", Type: coex.TypeInt64})
	x := b.ParamReg(0)

	neg := b.NewBlock()
	nonneg := b.NewBlock()
	zero := b.NewBlock()
	pos := b.NewBlock()

	isNeg := b.BinOp(coex.SLT, x, b.ConstInt(0, coex.TypeInt64))
	b.If(isNeg, neg, nonneg)

	b.SetBlock(neg)
	b.Return(b.ConstInt(-1, coex.TypeInt64))

	b.SetBlock(nonneg)
	isZero := b.BinOp(coex.EQ, x, b.ConstInt(0, coex.TypeInt64))
	b.If(isZero, zero, pos)

	b.SetBlock(zero)
	b.Return(b.ConstInt(0, coex.TypeInt64))

	b.SetBlock(pos)
	b.Return(b.ConstInt(1, coex.TypeInt64))

	return b.Build()
}

// buildClampProgram returns a function that clamps its argument into
// [0,100] and asserts the clamped value stays in range.
func buildClampProgram() *coex.Func {
	b := coex.NewFuncBuilder("clamp", coex.Param{Name: "x", Type: coex.TypeInt64})
	x := b.ParamReg(0)

	low := b.NewBlock()
	checkHigh := b.NewBlock()
	high := b.NewBlock()
	ret := b.NewBlock()

	isLow := b.BinOp(coex.SLT, x, b.ConstInt(0, coex.TypeInt64))
	b.If(isLow, low, checkHigh)

	b.SetBlock(low)
	b.Return(b.ConstInt(0, coex.TypeInt64))

	b.SetBlock(checkHigh)
	isHigh := b.BinOp(coex.SGT, x, b.ConstInt(100, coex.TypeInt64))
	b.If(isHigh, high, ret)

	b.SetBlock(high)
	b.Return(b.ConstInt(100, coex.TypeInt64))

	b.SetBlock(ret)
	inRange := b.BinOp(coex.SLE, x, b.ConstInt(100, coex.TypeInt64))
	b.Assert(inRange, coex.AssertMustHold)
	b.Return(x)

	return b.Build()
}

// buildDivideProgram returns a function that divides 1000 by its
// argument. A zero argument faults.
func buildDivideProgram() *coex.Func {
	b := coex.NewFuncBuilder("divide", coex.Param{Name: "x", Type: coex.TypeInt64})
	x := b.ParamReg(0)
	q := b.BinOp(coex.SDIV, b.ConstInt(1000, coex.TypeInt64), x)
	b.Return(q)
	return b.Build()
}

// buildOverflowProgram returns a function whose addition overflows for
// arguments near the top of the signed range, for use with the
// overflow check pass.
func buildOverflowProgram() *coex.Func {
	b := coex.NewFuncBuilder("overflow", coex.Param{Name: "x", Type: coex.TypeInt64})
	x := b.ParamReg(0)

	big := b.NewBlock()
	small := b.NewBlock()

	isBig := b.BinOp(coex.SGT, x, b.ConstInt(math.MaxInt64-10, coex.TypeInt64))
	b.If(isBig, big, small)

	b.SetBlock(big)
	sum := b.BinOp(coex.ADD, x, b.ConstInt(10, coex.TypeInt64))
	b.Return(sum)

	b.SetBlock(small)
	b.Return(x)

	return b.Build()
}

// ProgramsCommand lists the built-in programs.
type ProgramsCommand struct{}

// NewProgramsCommand returns a new instance of ProgramsCommand.
func NewProgramsCommand() *ProgramsCommand {
	return &ProgramsCommand{}
}

// Run executes the "programs" subcommand.
func (cmd *ProgramsCommand) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("coex-programs", flag.ContinueOnError)
	fs.Usage = cmd.usage
	if err := fs.Parse(args); err != nil {
		return err
	}

	for _, name := range programNames() {
		fn, err := lookupProgram(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s (%d params, %d sites)\n", fn.Name, len(fn.Params), countSites(fn))
	}
	return nil
}

func (cmd *ProgramsCommand) usage() {
	fmt.Fprintln(os.Stderr, `
usage: coex programs

Lists the built-in programs available to "coex fuzz".
`[1:])
}

func countSites(fn *coex.Func) int {
	n := 0
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instrs {
			switch instr.(type) {
			case *coex.IfInstr, *coex.AssertInstr:
				n++
			}
		}
	}
	return n
}
