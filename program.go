package coex

import "fmt"

// Func is a function in the engine's instruction set. A function is a list
// of basic blocks; block 0 is the entry. Functions are built once through
// FuncBuilder and are immutable afterward.
type Func struct {
	Name   string
	Params []Param
	Blocks []*Block
}

// Param declares a named, typed input of a function.
type Param struct {
	Name string
	Type Type
}

// String returns the function signature.
func (f *Func) String() string {
	return fmt.Sprintf("func %s/%d", f.Name, len(f.Params))
}

// Block is a basic block. Control enters at the first instruction and leaves
// through the block's terminator (If, Jump, Return, or Panic).
type Block struct {
	Index  int
	Instrs []Instr
}

// Instr is a single instruction.
type Instr interface {
	instr()
	String() string
}

func (*BinOpInstr) instr()   {}
func (*UnOpInstr) instr()    {}
func (*ConvertInstr) instr() {}
func (*IfInstr) instr()      {}
func (*JumpInstr) instr()    {}
func (*ReturnInstr) instr()  {}
func (*CallInstr) instr()    {}
func (*AssertInstr) instr()  {}
func (*PanicInstr) instr()   {}

// Operand is a value reference within a function, either a register or an
// immediate constant.
type Operand interface {
	operand()
	String() string
}

// Reg is a virtual register. Parameters occupy registers 0..len(Params)-1;
// instruction results are assigned ascending registers by the builder.
type Reg int

func (Reg) operand() {}

// String returns the string representation of the register.
func (r Reg) String() string {
	return fmt.Sprintf("r%d", int(r))
}

// Imm is an immediate typed constant operand.
type Imm struct {
	Value uint64
	Type  Type
}

func (Imm) operand() {}

// String returns the string representation of the immediate.
func (imm Imm) String() string {
	return fmt.Sprintf("%d:%s", imm.Value, imm.Type)
}

// BinOpInstr computes a binary operation into a register.
type BinOpInstr struct {
	Dst Reg
	Op  BinaryOp
	X   Operand
	Y   Operand
}

// String returns the string representation of the instruction.
func (in *BinOpInstr) String() string {
	return fmt.Sprintf("%s = %s %s, %s", in.Dst, in.Op, in.X, in.Y)
}

// UnOpInstr computes a unary operation into a register.
type UnOpInstr struct {
	Dst Reg
	Op  UnaryOp
	X   Operand
}

// String returns the string representation of the instruction.
func (in *UnOpInstr) String() string {
	return fmt.Sprintf("%s = %s %s", in.Dst, in.Op, in.X)
}

// ConvertInstr converts a value to a new type into a register.
type ConvertInstr struct {
	Dst  Reg
	X    Operand
	Type Type
}

// String returns the string representation of the instruction.
func (in *ConvertInstr) String() string {
	return fmt.Sprintf("%s = convert %s to %s", in.Dst, in.X, in.Type)
}

// IfInstr branches on a boolean condition. Site identifies the branch within
// its function for coverage and frontier bookkeeping.
type IfInstr struct {
	Cond Operand
	Then int // block index
	Else int // block index
	Site int
}

// String returns the string representation of the instruction.
func (in *IfInstr) String() string {
	return fmt.Sprintf("if %s goto b%d else b%d", in.Cond, in.Then, in.Else)
}

// JumpInstr transfers control to another block.
type JumpInstr struct {
	Target int // block index
}

// String returns the string representation of the instruction.
func (in *JumpInstr) String() string {
	return fmt.Sprintf("jump b%d", in.Target)
}

// ReturnInstr returns a value from the function.
type ReturnInstr struct {
	X Operand
}

// String returns the string representation of the instruction.
func (in *ReturnInstr) String() string {
	return fmt.Sprintf("return %s", in.X)
}

// CallInstr invokes another function and stores its result into a register.
type CallInstr struct {
	Dst  Reg
	Func *Func
	Args []Operand
}

// String returns the string representation of the instruction.
func (in *CallInstr) String() string {
	return fmt.Sprintf("%s = call %s", in.Dst, in.Func.Name)
}

// AssertInstr records an assertion. Assertions have no control effect; they
// are evaluated after the run by Check().
type AssertInstr struct {
	Cond Operand
	Kind AssertKind
	Site int
}

// String returns the string representation of the instruction.
func (in *AssertInstr) String() string {
	return fmt.Sprintf("assert %s %s", in.Kind, in.Cond)
}

// PanicInstr faults the run with the given message.
type PanicInstr struct {
	Msg string
}

// String returns the string representation of the instruction.
func (in *PanicInstr) String() string {
	return fmt.Sprintf("panic %q", in.Msg)
}

// FuncBuilder incrementally constructs a Func. Blocks are created up front
// with NewBlock() so branch targets can be declared before they are filled;
// instructions append to the current block selected by SetBlock().
type FuncBuilder struct {
	fn    *Func
	block *Block
	nreg  int
	nsite int
}

// NewFuncBuilder returns a builder for a function with the given parameters.
// The entry block is created and selected.
func NewFuncBuilder(name string, params ...Param) *FuncBuilder {
	b := &FuncBuilder{
		fn: &Func{Name: name, Params: params},
	}
	b.nreg = len(params)
	b.block = b.NewBlock()
	return b
}

// NewBlock creates a new empty block and returns it. The current block is
// left unchanged.
func (b *FuncBuilder) NewBlock() *Block {
	blk := &Block{Index: len(b.fn.Blocks)}
	b.fn.Blocks = append(b.fn.Blocks, blk)
	return blk
}

// SetBlock selects the block that subsequent instructions append to.
func (b *FuncBuilder) SetBlock(blk *Block) {
	b.block = blk
}

// ParamReg returns the register holding the i-th parameter.
func (b *FuncBuilder) ParamReg(i int) Reg {
	assert(i >= 0 && i < len(b.fn.Params), "param index out of range: %d", i)
	return Reg(i)
}

// Const returns an immediate operand.
func (b *FuncBuilder) Const(value uint64, typ Type) Imm {
	return Imm{Value: value, Type: typ}
}

// ConstInt returns an immediate operand from a signed value.
func (b *FuncBuilder) ConstInt(value int64, typ Type) Imm {
	return Imm{Value: uint64(value) & bitmask(typ.Width), Type: typ}
}

func (b *FuncBuilder) nextReg() Reg {
	r := Reg(b.nreg)
	b.nreg++
	return r
}

func (b *FuncBuilder) nextSite() int {
	s := b.nsite
	b.nsite++
	return s
}

func (b *FuncBuilder) append(instr Instr) {
	assert(b.block != nil, "no current block")
	b.block.Instrs = append(b.block.Instrs, instr)
}

// BinOp appends a binary operation and returns its destination register.
func (b *FuncBuilder) BinOp(op BinaryOp, x, y Operand) Reg {
	dst := b.nextReg()
	b.append(&BinOpInstr{Dst: dst, Op: op, X: x, Y: y})
	return dst
}

// UnOp appends a unary operation and returns its destination register.
func (b *FuncBuilder) UnOp(op UnaryOp, x Operand) Reg {
	dst := b.nextReg()
	b.append(&UnOpInstr{Dst: dst, Op: op, X: x})
	return dst
}

// Convert appends a type conversion and returns its destination register.
func (b *FuncBuilder) Convert(x Operand, typ Type) Reg {
	dst := b.nextReg()
	b.append(&ConvertInstr{Dst: dst, X: x, Type: typ})
	return dst
}

// If appends a conditional branch terminator.
func (b *FuncBuilder) If(cond Operand, then, els *Block) {
	b.append(&IfInstr{Cond: cond, Then: then.Index, Else: els.Index, Site: b.nextSite()})
}

// Jump appends an unconditional branch terminator.
func (b *FuncBuilder) Jump(target *Block) {
	b.append(&JumpInstr{Target: target.Index})
}

// Return appends a return terminator.
func (b *FuncBuilder) Return(x Operand) {
	b.append(&ReturnInstr{X: x})
}

// Call appends a call instruction and returns its destination register.
func (b *FuncBuilder) Call(fn *Func, args ...Operand) Reg {
	assert(len(args) == len(fn.Params), "call %s: arg count mismatch: %d != %d", fn.Name, len(args), len(fn.Params))
	dst := b.nextReg()
	b.append(&CallInstr{Dst: dst, Func: fn, Args: args})
	return dst
}

// Assert appends an assertion instruction.
func (b *FuncBuilder) Assert(cond Operand, kind AssertKind) {
	b.append(&AssertInstr{Cond: cond, Kind: kind, Site: b.nextSite()})
}

// Panic appends a faulting terminator.
func (b *FuncBuilder) Panic(msg string) {
	b.append(&PanicInstr{Msg: msg})
}

// Build finalizes and returns the function.
// Every block must end in a terminator.
func (b *FuncBuilder) Build() *Func {
	for _, blk := range b.fn.Blocks {
		assert(len(blk.Instrs) > 0, "%s: block b%d is empty", b.fn.Name, blk.Index)
		switch blk.Instrs[len(blk.Instrs)-1].(type) {
		case *IfInstr, *JumpInstr, *ReturnInstr, *PanicInstr:
		default:
			panic(fmt.Sprintf("%s: block b%d does not end in a terminator", b.fn.Name, blk.Index))
		}
	}
	return b.fn
}

// NumSites returns the number of branch and assert sites allocated so far.
// Exposed for coverage sizing.
func (b *FuncBuilder) NumSites() int {
	return b.nsite
}
