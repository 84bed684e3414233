package compiler

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// argRegs are the integer argument registers, in order.
var argRegs = [...]string{"a0", "a1", "a2", "a3", "a4", "a5"}

// CodeGen walks a typed Program and emits RV64 assembly text. Expressions
// are evaluated into a0; intermediate values are spilled to an operand
// stack on sp.
type CodeGen struct {
	out       strings.Builder
	depth     int // operand stack depth, in 8-byte slots
	nextLabel int
	curFn     *Obj
}

func newCodeGen() *CodeGen {
	return &CodeGen{}
}

func (cg *CodeGen) count() int {
	n := cg.nextLabel
	cg.nextLabel++
	return n
}

func (cg *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&cg.out, format+"\n", args...)
}

func (cg *CodeGen) comment(format string, args ...any) {
	cg.line("  # "+format, args...)
}

// push spills a0 to the operand stack.
func (cg *CodeGen) push() {
	cg.line("  addi sp, sp, -8")
	cg.line("  sd a0, 0(sp)")
	cg.depth++
}

// pop reloads the top of the operand stack into reg.
func (cg *CodeGen) pop(reg string) {
	cg.line("  ld %s, 0(sp)", reg)
	cg.line("  addi sp, sp, 8")
	cg.depth--
}

func fitsImm12(v int) bool {
	return v >= -2048 && v <= 2047
}

// addImm emits dst = src + imm, going through t0 when imm does not fit.
func (cg *CodeGen) addImm(dst, src string, imm int) {
	if fitsImm12(imm) {
		cg.line("  addi %s, %s, %d", dst, src, imm)
		return
	}
	cg.line("  li t0, %d", imm)
	cg.line("  add %s, %s, t0", dst, src)
}

func internalError(n Node, format string, args ...any) error {
	return newError(InternalConsistency, n.Pos(), format, args...)
}

func unsupported(n Node, format string, args ...any) error {
	return newError(Unsupported, n.Pos(), format, args...)
}

// genAddr computes the address of an lvalue into a0.
func (cg *CodeGen) genAddr(n Node) error {
	switch n := n.(type) {
	case *VarRef:
		if n.Var.IsLocal {
			cg.addImm("a0", "fp", n.Var.Offset)
			return nil
		}
		cg.line("  la a0, %s", n.Var.Name)
		return nil

	case *DerefExpr:
		return cg.genExpr(n.X)

	case *MemberExpr:
		if err := cg.genAddr(n.X); err != nil {
			return err
		}
		if n.Mem.Offset != 0 {
			cg.addImm("a0", "a0", n.Mem.Offset)
		}
		return nil
	}
	return newError(NotAnLvalue, n.Pos(), "not an lvalue: %s", n)
}

// load replaces the address in a0 with the value it points to. Arrays,
// structs, unions and functions are used by address, so nothing is loaded.
func (cg *CodeGen) load(ty *Type) {
	switch ty.Kind {
	case TyArray, TyStruct, TyUnion, TyFunc:
		return
	}
	switch ty.Size {
	case 1:
		cg.line("  lb a0, 0(a0)")
	case 2:
		cg.line("  lh a0, 0(a0)")
	case 4:
		cg.line("  lw a0, 0(a0)")
	default:
		cg.line("  ld a0, 0(a0)")
	}
}

// store writes a0 to the address on top of the operand stack.
func (cg *CodeGen) store(ty *Type) {
	cg.pop("a1")

	if ty.Kind == TyStruct || ty.Kind == TyUnion {
		cg.copyBytes(ty.Size)
		return
	}
	switch ty.Size {
	case 1:
		cg.line("  sb a0, 0(a1)")
	case 2:
		cg.line("  sh a0, 0(a1)")
	case 4:
		cg.line("  sw a0, 0(a1)")
	default:
		cg.line("  sd a0, 0(a1)")
	}
}

// copyBytes copies size bytes from the address in a0 to the address in a1.
// Both registers keep their values.
func (cg *CodeGen) copyBytes(size int) {
	if fitsImm12(size - 1) {
		for i := 0; i < size; i++ {
			cg.line("  lb t0, %d(a0)", i)
			cg.line("  sb t0, %d(a1)", i)
		}
		return
	}
	c := cg.count()
	cg.line("  mv t1, a0")
	cg.line("  mv t2, a1")
	cg.line("  li t3, %d", size)
	cg.line(".L.copy.%d:", c)
	cg.line("  lb t0, 0(t1)")
	cg.line("  sb t0, 0(t2)")
	cg.line("  addi t1, t1, 1")
	cg.line("  addi t2, t2, 1")
	cg.line("  addi t3, t3, -1")
	cg.line("  bnez t3, .L.copy.%d", c)
}

// storeParam spills argument register reg to a parameter's slot.
func (cg *CodeGen) storeParam(reg int, v *Obj) {
	op := "sd"
	switch v.Ty.Size {
	case 1:
		op = "sb"
	case 2:
		op = "sh"
	case 4:
		op = "sw"
	}
	if fitsImm12(v.Offset) {
		cg.line("  %s %s, %d(fp)", op, argRegs[reg], v.Offset)
		return
	}
	cg.addImm("t1", "fp", v.Offset)
	cg.line("  %s %s, 0(t1)", op, argRegs[reg])
}

// memZero clears size bytes starting at offset(fp).
func (cg *CodeGen) memZero(offset, size int) {
	if size <= 64 && fitsImm12(offset) {
		for i := 0; i < size; i++ {
			cg.line("  sb zero, %d(fp)", offset+i)
		}
		return
	}
	c := cg.count()
	cg.addImm("t1", "fp", offset)
	cg.line("  li t2, %d", size)
	cg.line(".L.zero.%d:", c)
	cg.line("  sb zero, 0(t1)")
	cg.line("  addi t1, t1, 1")
	cg.line("  addi t2, t2, -1")
	cg.line("  bnez t2, .L.zero.%d", c)
}

// valueSize is the width of a value of ty held in a register.
func valueSize(ty *Type) int {
	switch ty.Kind {
	case TyArray, TyFunc, TyPtr:
		return PointerSize
	}
	return ty.Size
}

// cast converts a0 from one type to another. Integers are kept
// sign-extended to 64 bits.
func (cg *CodeGen) cast(n Node, from, to *Type) error {
	if to.Kind == TyVoid {
		return nil
	}
	if from.IsFloat() || to.IsFloat() {
		if from.Kind == to.Kind {
			return nil
		}
		return unsupported(n, "conversion from %s to %s needs floating-point code", from, to)
	}
	if to.Kind == TyBool {
		if from.Kind != TyBool {
			cg.line("  snez a0, a0")
		}
		return nil
	}
	if valueSize(to) >= valueSize(from) || to.Kind == TyStruct || to.Kind == TyUnion {
		return nil
	}
	switch valueSize(to) {
	case 1:
		cg.line("  slli a0, a0, 56")
		cg.line("  srai a0, a0, 56")
	case 2:
		cg.line("  slli a0, a0, 48")
		cg.line("  srai a0, a0, 48")
	case 4:
		cg.line("  addiw a0, a0, 0")
	}
	return nil
}

// requireInteger rejects operands that would need floating-point code.
func requireInteger(n Node, operands ...Node) error {
	for _, x := range operands {
		if x.Type().IsFloat() {
			return unsupported(n, "floating-point arithmetic is not supported")
		}
	}
	return nil
}

// genExpr evaluates n into a0.
func (cg *CodeGen) genExpr(n Node) error {
	if n.Type() == nil {
		return internalError(n, "expression reached code generation without a type: %s", n)
	}

	switch n := n.(type) {
	case *NumLit:
		switch n.Ty.Kind {
		case TyFloat:
			cg.line("  li a0, %d", math.Float32bits(float32(n.FVal)))
		case TyDouble:
			cg.line("  li a0, %d", int64(math.Float64bits(n.FVal)))
		default:
			cg.line("  li a0, %d", n.Val)
		}
		return nil

	case *VarRef:
		if err := cg.genAddr(n); err != nil {
			return err
		}
		cg.load(n.Ty)
		return nil

	case *MemberExpr:
		if err := cg.genAddr(n); err != nil {
			return err
		}
		cg.load(n.Ty)
		return nil

	case *DerefExpr:
		if err := cg.genExpr(n.X); err != nil {
			return err
		}
		cg.load(n.Ty)
		return nil

	case *AddrExpr:
		return cg.genAddr(n.X)

	case *AssignExpr:
		if err := cg.genAddr(n.LHS); err != nil {
			return err
		}
		cg.push()
		if err := cg.genExpr(n.RHS); err != nil {
			return err
		}
		cg.store(n.Ty)
		return nil

	case *StmtExpr:
		for _, s := range n.Body {
			if err := cg.genStmt(s); err != nil {
				return err
			}
		}
		return nil

	case *CommaExpr:
		if err := cg.genExpr(n.LHS); err != nil {
			return err
		}
		return cg.genExpr(n.RHS)

	case *CastExpr:
		if err := cg.genExpr(n.X); err != nil {
			return err
		}
		return cg.cast(n, n.X.Type(), n.Ty)

	case *NullExpr:
		return nil

	case *MemZero:
		cg.memZero(n.Var.Offset, n.Var.Ty.Size)
		return nil

	case *CondExpr:
		if err := requireInteger(n, n.Cond); err != nil {
			return err
		}
		c := cg.count()
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.line("  beqz a0, .L.else.%d", c)
		if err := cg.genExpr(n.Then); err != nil {
			return err
		}
		cg.line("  j .L.end.%d", c)
		cg.line(".L.else.%d:", c)
		if err := cg.genExpr(n.Else); err != nil {
			return err
		}
		cg.line(".L.end.%d:", c)
		return nil

	case *UnaryExpr:
		if err := requireInteger(n, n.X); err != nil {
			return err
		}
		if err := cg.genExpr(n.X); err != nil {
			return err
		}
		switch n.Op {
		case OpNeg:
			if valueSize(n.Ty) == 8 {
				cg.line("  neg a0, a0")
			} else {
				cg.line("  negw a0, a0")
			}
		case OpNot:
			cg.line("  seqz a0, a0")
		case OpBitNot:
			cg.line("  not a0, a0")
		}
		return nil

	case *LogicalExpr:
		return cg.genLogical(n)

	case *CallExpr:
		return cg.genCall(n)

	case *BinaryExpr:
		return cg.genBinary(n)
	}

	return internalError(n, "invalid expression %T", n)
}

func (cg *CodeGen) genLogical(n *LogicalExpr) error {
	if err := requireInteger(n, n.LHS, n.RHS); err != nil {
		return err
	}
	c := cg.count()
	branch, short, other := "beqz", "false", "true"
	if !n.And {
		branch, short, other = "bnez", "true", "false"
	}

	if err := cg.genExpr(n.LHS); err != nil {
		return err
	}
	cg.line("  %s a0, .L.%s.%d", branch, short, c)
	if err := cg.genExpr(n.RHS); err != nil {
		return err
	}
	cg.line("  %s a0, .L.%s.%d", branch, short, c)
	cg.line("  li a0, %d", boolInt(other == "true"))
	cg.line("  j .L.end.%d", c)
	cg.line(".L.%s.%d:", short, c)
	cg.line("  li a0, %d", boolInt(short == "true"))
	cg.line(".L.end.%d:", c)
	return nil
}

// genCall pushes the arguments left to right and pops them into the
// argument registers last first.
func (cg *CodeGen) genCall(n *CallExpr) error {
	if len(n.Args) > len(argRegs) {
		return unsupported(n, "call to %q passes %d arguments; at most %d are supported", n.Name, len(n.Args), len(argRegs))
	}
	for _, arg := range n.Args {
		if err := cg.genExpr(arg); err != nil {
			return err
		}
		cg.push()
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		cg.pop(argRegs[i])
	}

	// sp must be 16-byte aligned at the call.
	if cg.depth%2 == 1 {
		cg.line("  addi sp, sp, -8")
		cg.line("  call %s", n.Name)
		cg.line("  addi sp, sp, 8")
	} else {
		cg.line("  call %s", n.Name)
	}

	switch n.Ty.Kind {
	case TyBool:
		cg.line("  andi a0, a0, 0xff")
	case TyChar:
		cg.line("  slli a0, a0, 56")
		cg.line("  srai a0, a0, 56")
	case TyShort:
		cg.line("  slli a0, a0, 48")
		cg.line("  srai a0, a0, 48")
	}
	return nil
}

// genBinary evaluates the right operand first, then the left, so a0 holds
// the left value and a1 the right when they are combined.
func (cg *CodeGen) genBinary(n *BinaryExpr) error {
	if err := requireInteger(n, n.LHS, n.RHS); err != nil {
		return err
	}
	if err := cg.genExpr(n.RHS); err != nil {
		return err
	}
	cg.push()
	if err := cg.genExpr(n.LHS); err != nil {
		return err
	}
	cg.pop("a1")

	// 64-bit operands use the full-width instructions, the rest the 32-bit word forms.
	w := "w"
	if valueSize(n.LHS.Type()) == 8 {
		w = ""
	}

	switch n.Op {
	case OpAdd:
		cg.line("  add%s a0, a0, a1", w)
	case OpSub:
		cg.line("  sub%s a0, a0, a1", w)
	case OpMul:
		cg.line("  mul%s a0, a0, a1", w)
	case OpDiv:
		cg.line("  div%s a0, a0, a1", w)
	case OpMod:
		cg.line("  rem%s a0, a0, a1", w)
	case OpBitAnd:
		cg.line("  and a0, a0, a1")
	case OpBitOr:
		cg.line("  or a0, a0, a1")
	case OpBitXor:
		cg.line("  xor a0, a0, a1")
	case OpShl:
		cg.line("  sll%s a0, a0, a1", w)
	case OpShr:
		cg.line("  sra%s a0, a0, a1", w)
	case OpEq:
		cg.line("  xor a0, a0, a1")
		cg.line("  seqz a0, a0")
	case OpNe:
		cg.line("  xor a0, a0, a1")
		cg.line("  snez a0, a0")
	case OpLt:
		cg.line("  slt a0, a0, a1")
	case OpLe:
		// a <= b is !(b < a)
		cg.line("  slt a0, a1, a0")
		cg.line("  xori a0, a0, 1")
	default:
		return internalError(n, "invalid binary operator %d", n.Op)
	}
	return nil
}

// genStmt emits one statement.
func (cg *CodeGen) genStmt(n Node) error {
	switch n := n.(type) {
	case *IfStmt:
		if err := requireInteger(n, n.Cond); err != nil {
			return err
		}
		c := cg.count()
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		cg.line("  beqz a0, .L.else.%d", c)
		if err := cg.genStmt(n.Then); err != nil {
			return err
		}
		cg.line("  j .L.end.%d", c)
		cg.line(".L.else.%d:", c)
		if n.Else != nil {
			if err := cg.genStmt(n.Else); err != nil {
				return err
			}
		}
		cg.line(".L.end.%d:", c)
		return nil

	case *ForStmt:
		c := cg.count()
		if n.Init != nil {
			if err := cg.genStmt(n.Init); err != nil {
				return err
			}
		}
		cg.line(".L.begin.%d:", c)
		if n.Cond != nil {
			if err := requireInteger(n, n.Cond); err != nil {
				return err
			}
			if err := cg.genExpr(n.Cond); err != nil {
				return err
			}
			cg.line("  beqz a0, %s", n.BrkLabel)
		}
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		cg.line("%s:", n.ContLabel)
		if n.Inc != nil {
			if err := cg.genExpr(n.Inc); err != nil {
				return err
			}
		}
		cg.line("  j .L.begin.%d", c)
		cg.line("%s:", n.BrkLabel)
		return nil

	case *SwitchStmt:
		if err := cg.genExpr(n.Cond); err != nil {
			return err
		}
		for _, c := range n.Cases {
			cg.line("  li t0, %d", c.Val)
			cg.line("  beq a0, t0, %s", c.Label)
		}
		if n.Default != nil {
			cg.line("  j %s", n.Default.Label)
		}
		cg.line("  j %s", n.BrkLabel)
		if err := cg.genStmt(n.Body); err != nil {
			return err
		}
		cg.line("%s:", n.BrkLabel)
		return nil

	case *CaseStmt:
		cg.line("%s:", n.Label)
		return cg.genStmt(n.Body)

	case *BlockStmt:
		for _, s := range n.Body {
			if err := cg.genStmt(s); err != nil {
				return err
			}
		}
		return nil

	case *GotoStmt:
		cg.line("  j %s", n.Unique)
		return nil

	case *LabelStmt:
		cg.line("%s:", n.Unique)
		return cg.genStmt(n.Body)

	case *ReturnStmt:
		if n.X != nil {
			if err := cg.genExpr(n.X); err != nil {
				return err
			}
		}
		cg.line("  j .L.return.%s", cg.curFn.Name)
		return nil

	case *ExprStmt:
		return cg.genExpr(n.X)
	}

	return internalError(n, "invalid statement %T", n)
}

// assignLVarOffsets gives every local a slot below the frame pointer. A
// scalar takes one 8-byte slot; an aggregate takes its size rounded up to
// whole slots. The frame is rounded up to 16 bytes.
func assignLVarOffsets(prog *Program) {
	for _, fn := range prog.Functions() {
		offset := 0
		for _, v := range fn.Locals {
			size := 8
			if v.Ty.IsAggregate() {
				size = alignUp(v.Ty.Size, 8)
			}
			offset += size
			v.Offset = -offset
		}
		fn.StackSize = alignUp(offset, 16)
	}
}

// log2 of a power-of-two alignment, as .align expects.
func alignExp(align int) int {
	return bits.TrailingZeros(uint(align))
}

func (cg *CodeGen) emitData(prog *Program) {
	for _, v := range prog.Globals {
		if v.IsFunction || !v.IsDefinition {
			continue
		}

		if v.IsStatic {
			cg.line("  .local %s", v.Name)
		} else {
			cg.line("  .globl %s", v.Name)
		}

		size := v.Ty.Size
		if v.InitData == nil {
			cg.line("  .bss")
			cg.line("  .align %d", alignExp(v.Ty.Align))
			cg.line("%s:", v.Name)
			cg.line("  .zero %d", size)
			continue
		}

		cg.line("  .data")
		cg.line("  .type %s, @object", v.Name)
		cg.line("  .size %s, %d", v.Name, size)
		cg.line("  .align %d", alignExp(v.Ty.Align))
		cg.line("%s:", v.Name)

		relocs := v.Relocs
		for pos := 0; pos < size; {
			if len(relocs) > 0 && relocs[0].Offset == pos {
				cg.line("  .quad %s%+d", relocs[0].Label, relocs[0].Addend)
				relocs = relocs[1:]
				pos += PointerSize
				continue
			}
			cg.line("  .byte %d", v.InitData[pos])
			pos++
		}
	}
}

func (cg *CodeGen) emitText(prog *Program) error {
	for _, fn := range prog.Functions() {
		if fn.IsStatic {
			cg.line("  .local %s", fn.Name)
		} else {
			cg.line("  .globl %s", fn.Name)
		}
		cg.line("  .text")
		cg.line("  .type %s, @function", fn.Name)
		cg.line("%s:", fn.Name)
		cg.curFn = fn

		if len(fn.Params) > len(argRegs) {
			return newError(Unsupported, fn.Tok, "function %q has %d parameters; at most %d are supported", fn.Name, len(fn.Params), len(argRegs))
		}

		// Prologue: save ra and the caller's fp, then reserve the frame.
		cg.comment("prologue")
		cg.line("  addi sp, sp, -16")
		cg.line("  sd ra, 8(sp)")
		cg.line("  sd fp, 0(sp)")
		cg.line("  mv fp, sp")
		cg.line("  li t0, -%d", fn.StackSize)
		cg.line("  add sp, sp, t0")

		for i, p := range fn.Params {
			cg.storeParam(i, p)
		}

		cg.comment("body")
		if err := cg.genStmt(fn.Body); err != nil {
			return err
		}
		if cg.depth != 0 {
			return newError(InternalConsistency, fn.Tok, "operand stack depth %d at end of %q", cg.depth, fn.Name)
		}

		// Falling off the end of main returns 0.
		if fn.Name == "main" {
			cg.line("  li a0, 0")
		}

		cg.comment("epilogue")
		cg.line(".L.return.%s:", fn.Name)
		cg.line("  mv sp, fp")
		cg.line("  ld fp, 0(sp)")
		cg.line("  ld ra, 8(sp)")
		cg.line("  addi sp, sp, 16")
		cg.line("  ret")
	}
	return nil
}

// Generate emits assembly for a parsed program. Local frame offsets are
// assigned here, once every function's locals are known.
func Generate(prog *Program) (string, error) {
	cg := newCodeGen()
	assignLVarOffsets(prog)
	cg.emitData(prog)
	if err := cg.emitText(prog); err != nil {
		return "", err
	}
	return cg.out.String(), nil
}
