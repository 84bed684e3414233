package compiler

import (
	"fmt"
	"strings"
)

// Node is implemented by every AST node. The set of node types is closed:
// setType is unexported, so only this package can add kinds, and both the
// type annotation pass and the code generator switch over all of them.
type Node interface {
	Pos() Token
	Type() *Type
	setType(*Type)
	String() string
}

// nodeInfo is embedded in every node.
type nodeInfo struct {
	Tok Token
	Ty  *Type
}

func (n *nodeInfo) Pos() Token        { return n.Tok }
func (n *nodeInfo) Type() *Type       { return n.Ty }
func (n *nodeInfo) setType(ty *Type) { n.Ty = ty }

// UnaryOp is the operator of a UnaryExpr.
type UnaryOp int

const (
	OpNeg    UnaryOp = iota // -x
	OpNot                   // !x
	OpBitNot                // ~x
)

var unaryOpNames = [...]string{OpNeg: "-", OpNot: "!", OpBitNot: "~"}

func (op UnaryOp) String() string { return unaryOpNames[op] }

// BinaryOp is the operator of a BinaryExpr. There is no > or >=: the parser
// swaps the operands into < and <=.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
)

var binaryOpNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^", OpShl: "<<", OpShr: ">>",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=",
}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// isComparison reports whether op yields a boolean int.
func (op BinaryOp) isComparison() bool {
	return op >= OpEq
}

//  Expression nodes

// NumLit is an integer or floating constant.
//
//	return 42;
//	       ^^  NumLit{Val: 42}
type NumLit struct {
	nodeInfo
	Val  int64
	FVal float64
}

func (n *NumLit) String() string {
	if n.Ty != nil && n.Ty.IsFloat() {
		return fmt.Sprintf("%g", n.FVal)
	}
	return fmt.Sprintf("%d", n.Val)
}

// VarRef reads a local, global or function by its resolved object.
type VarRef struct {
	nodeInfo
	Var *Obj
}

func (v *VarRef) String() string { return v.Var.Name }

// UnaryExpr is -x, !x or ~x.
type UnaryExpr struct {
	nodeInfo
	Op UnaryOp
	X  Node
}

func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s%s)", u.Op, u.X) }

// BinaryExpr is LHS Op RHS.
//
//	x + 1
//	^ ^ ^
//	| | RHS
//	| Op
//	LHS
type BinaryExpr struct {
	nodeInfo
	Op  BinaryOp
	LHS Node
	RHS Node
}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.LHS, b.Op, b.RHS)
}

// LogicalExpr is && or ||. It is separate from BinaryExpr because the
// right operand is evaluated only when needed.
type LogicalExpr struct {
	nodeInfo
	And bool
	LHS Node
	RHS Node
}

func (l *LogicalExpr) String() string {
	op := "||"
	if l.And {
		op = "&&"
	}
	return fmt.Sprintf("(%s %s %s)", l.LHS, op, l.RHS)
}

// AssignExpr stores RHS through the address of LHS.
type AssignExpr struct {
	nodeInfo
	LHS Node
	RHS Node
}

func (a *AssignExpr) String() string { return fmt.Sprintf("(%s = %s)", a.LHS, a.RHS) }

// DerefExpr is *X.
type DerefExpr struct {
	nodeInfo
	X Node
}

func (d *DerefExpr) String() string { return fmt.Sprintf("*%s", d.X) }

// AddrExpr is &X.
type AddrExpr struct {
	nodeInfo
	X Node
}

func (a *AddrExpr) String() string { return fmt.Sprintf("&%s", a.X) }

// MemberExpr is X.Mem; p->m is parsed as (*p).m.
type MemberExpr struct {
	nodeInfo
	X   Node
	Mem *Member
}

func (m *MemberExpr) String() string { return fmt.Sprintf("%s.%s", m.X, m.Mem.Name.Lexeme) }

// CallExpr calls a function by name.
type CallExpr struct {
	nodeInfo
	Name   string
	FuncTy *Type
	Args   []Node
}

func (c *CallExpr) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ", "))
}

// CommaExpr evaluates LHS for effect and yields RHS.
type CommaExpr struct {
	nodeInfo
	LHS Node
	RHS Node
}

func (c *CommaExpr) String() string { return fmt.Sprintf("(%s, %s)", c.LHS, c.RHS) }

// CondExpr is Cond ? Then : Else.
type CondExpr struct {
	nodeInfo
	Cond Node
	Then Node
	Else Node
}

func (c *CondExpr) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", c.Cond, c.Then, c.Else)
}

// CastExpr converts X to the node's own type.
type CastExpr struct {
	nodeInfo
	X Node
}

func (c *CastExpr) String() string { return fmt.Sprintf("(%s)%s", c.Ty, c.X) }

// StmtExpr is a GNU statement expression ({ ... }); its value is that of
// the last expression statement in Body.
type StmtExpr struct {
	nodeInfo
	Body []Node
}

func (s *StmtExpr) String() string { return fmt.Sprintf("({ %s })", joinNodes(s.Body, "; ")) }

// NullExpr does nothing. It seeds initializer assignment chains.
type NullExpr struct {
	nodeInfo
}

func (*NullExpr) String() string { return "<null>" }

// MemZero clears the whole storage of a local before it is initialized.
type MemZero struct {
	nodeInfo
	Var *Obj
}

func (m *MemZero) String() string { return fmt.Sprintf("memzero(%s)", m.Var.Name) }

//  Statement nodes

// ExprStmt evaluates X and discards the result.
type ExprStmt struct {
	nodeInfo
	X Node
}

func (e *ExprStmt) String() string { return e.X.String() + ";" }

// BlockStmt is { ... }.
type BlockStmt struct {
	nodeInfo
	Body []Node
}

func (b *BlockStmt) String() string { return fmt.Sprintf("{ %s }", joinNodes(b.Body, " ")) }

// IfStmt; Else may be nil.
type IfStmt struct {
	nodeInfo
	Cond Node
	Then Node
	Else Node
}

func (s *IfStmt) String() string {
	if s.Else == nil {
		return fmt.Sprintf("if (%s) %s", s.Cond, s.Then)
	}
	return fmt.Sprintf("if (%s) %s else %s", s.Cond, s.Then, s.Else)
}

// ForStmt models both for and while. Init, Cond and Inc may be nil.
type ForStmt struct {
	nodeInfo
	Init      Node
	Cond      Node
	Inc       Node
	Body      Node
	BrkLabel  string
	ContLabel string
}

func (s *ForStmt) String() string {
	return fmt.Sprintf("for (%s; %s; %s) %s", orEmpty(s.Init), orEmpty(s.Cond), orEmpty(s.Inc), s.Body)
}

// ReturnStmt; X is nil for a bare return.
type ReturnStmt struct {
	nodeInfo
	X Node
}

func (s *ReturnStmt) String() string {
	if s.X == nil {
		return "return;"
	}
	return fmt.Sprintf("return %s;", s.X)
}

// GotoStmt jumps to Unique, which the parser binds once the enclosing
// function is complete. break and continue are GotoStmts too.
type GotoStmt struct {
	nodeInfo
	Label  string
	Unique string
}

func (s *GotoStmt) String() string { return fmt.Sprintf("goto %s;", s.Unique) }

// LabelStmt is "Label: Body".
type LabelStmt struct {
	nodeInfo
	Label  string
	Unique string
	Body   Node
}

func (s *LabelStmt) String() string { return fmt.Sprintf("%s: %s", s.Label, s.Body) }

// SwitchStmt dispatches on Cond to one of Cases, else Default, else out.
type SwitchStmt struct {
	nodeInfo
	Cond     Node
	Body     Node
	Cases    []*CaseStmt
	Default  *CaseStmt
	BrkLabel string
}

func (s *SwitchStmt) String() string { return fmt.Sprintf("switch (%s) %s", s.Cond, s.Body) }

// CaseStmt is a case or default label inside a switch body.
type CaseStmt struct {
	nodeInfo
	Val       int64
	IsDefault bool
	Label     string
	Body      Node
}

func (s *CaseStmt) String() string {
	if s.IsDefault {
		return fmt.Sprintf("default: %s", s.Body)
	}
	return fmt.Sprintf("case %d: %s", s.Val, s.Body)
}

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}

func orEmpty(n Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}

//  Program objects

// Relocation records that the pointer-sized slot at Offset in a global's
// data must hold the address of Label plus Addend.
type Relocation struct {
	Offset int
	Label  string
	Addend int64
}

// Obj is a named storage location: a local, a global or a function.
type Obj struct {
	Name string
	Ty   *Type
	Tok  Token

	IsLocal bool
	Offset  int // locals: negative, relative to the frame pointer

	IsStatic     bool
	IsFunction   bool
	IsDefinition bool

	// Globals.
	InitData []byte
	Relocs   []Relocation

	// Functions.
	Params    []*Obj
	Locals    []*Obj
	Body      *BlockStmt
	StackSize int
}

// Program is a translation unit: globals and functions in source order.
type Program struct {
	Globals []*Obj
}

// Functions returns the function definitions in source order.
func (p *Program) Functions() []*Obj {
	var fns []*Obj
	for _, g := range p.Globals {
		if g.IsFunction && g.IsDefinition {
			fns = append(fns, g)
		}
	}
	return fns
}
