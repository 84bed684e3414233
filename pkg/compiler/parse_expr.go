package compiler

import "math"

//  Node constructors

func newNum(val int64, tok Token) *NumLit {
	return &NumLit{nodeInfo: nodeInfo{Tok: tok}, Val: val}
}

func newLong(val int64, tok Token) *NumLit {
	return &NumLit{nodeInfo: nodeInfo{Tok: tok, Ty: tyLong}, Val: val}
}

func newVarRef(v *Obj, tok Token) *VarRef {
	return &VarRef{nodeInfo: nodeInfo{Tok: tok}, Var: v}
}

func newBinary(op BinaryOp, lhs, rhs Node, tok Token) *BinaryExpr {
	return &BinaryExpr{nodeInfo: nodeInfo{Tok: tok}, Op: op, LHS: lhs, RHS: rhs}
}

func newDeref(x Node, tok Token) *DerefExpr {
	return &DerefExpr{nodeInfo: nodeInfo{Tok: tok}, X: x}
}

func newAddr(x Node, tok Token) *AddrExpr {
	return &AddrExpr{nodeInfo: nodeInfo{Tok: tok}, X: x}
}

func newAssign(lhs, rhs Node, tok Token) *AssignExpr {
	return &AssignExpr{nodeInfo: nodeInfo{Tok: tok}, LHS: lhs, RHS: rhs}
}

func newComma(lhs, rhs Node, tok Token) *CommaExpr {
	return &CommaExpr{nodeInfo: nodeInfo{Tok: tok}, LHS: lhs, RHS: rhs}
}

// newCast wraps x in a conversion to ty.
func newCast(x Node, ty *Type) (Node, error) {
	if err := addType(x); err != nil {
		return nil, err
	}
	return &CastExpr{nodeInfo: nodeInfo{Tok: x.Pos(), Ty: ty}, X: x}, nil
}

//  Expressions, lowest precedence first

// parseExpr handles the comma operator.
func (p *Parser) parseExpr() (Node, error) {
	x, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if p.at(",") {
		tok := p.advance()
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return newComma(x, rhs, tok), nil
	}
	return x, nil
}

var compoundAssignOps = map[string]BinaryOp{
	"+=": OpAdd, "-=": OpSub, "*=": OpMul, "/=": OpDiv, "%=": OpMod,
	"&=": OpBitAnd, "|=": OpBitOr, "^=": OpBitXor, "<<=": OpShl, ">>=": OpShr,
}

// parseAssign handles = and the compound assignment operators, right to left.
func (p *Parser) parseAssign() (Node, error) {
	lhs, err := p.parseConditional()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	if tok.is("=") {
		p.advance()
		rhs, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return newAssign(lhs, rhs, tok), nil
	}

	if op, ok := compoundAssignOps[tok.Lexeme]; ok && tok.Type == PUNCT {
		p.advance()
		rhs, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		return p.toAssign(lhs, rhs, tok, p.binaryBuilder(op))
	}
	return lhs, nil
}

// binaryBuilder returns the constructor for op, pointer-aware for + and -.
func (p *Parser) binaryBuilder(op BinaryOp) func(lhs, rhs Node, tok Token) (Node, error) {
	switch op {
	case OpAdd:
		return p.newAdd
	case OpSub:
		return p.newSub
	}
	return func(lhs, rhs Node, tok Token) (Node, error) {
		return newBinary(op, lhs, rhs, tok), nil
	}
}

// toAssign rewrites "A op= B" as "tmp = &A, *tmp = *tmp op B" so that A is
// evaluated once.
func (p *Parser) toAssign(lhs, rhs Node, tok Token, build func(lhs, rhs Node, tok Token) (Node, error)) (Node, error) {
	if err := addType(lhs); err != nil {
		return nil, err
	}
	if err := addType(rhs); err != nil {
		return nil, err
	}

	tmp := p.newTempLVar(pointerTo(lhs.Type()), tok)
	save := newAssign(newVarRef(tmp, tok), newAddr(lhs, tok), tok)

	op, err := build(newDeref(newVarRef(tmp, tok), tok), rhs, tok)
	if err != nil {
		return nil, err
	}
	store := newAssign(newDeref(newVarRef(tmp, tok), tok), op, tok)
	return newComma(save, store, tok), nil
}

// parseConditional handles "?:", right to left.
func (p *Parser) parseConditional() (Node, error) {
	cond, err := p.parseLogOr()
	if err != nil {
		return nil, err
	}
	if !p.at("?") {
		return cond, nil
	}

	tok := p.advance()
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &CondExpr{nodeInfo: nodeInfo{Tok: tok}, Cond: cond, Then: then, Else: els}, nil
}

// parseLogOr handles ||
func (p *Parser) parseLogOr() (Node, error) {
	x, err := p.parseLogAnd()
	if err != nil {
		return nil, err
	}
	for p.at("||") {
		tok := p.advance()
		rhs, err := p.parseLogAnd()
		if err != nil {
			return nil, err
		}
		x = &LogicalExpr{nodeInfo: nodeInfo{Tok: tok}, LHS: x, RHS: rhs}
	}
	return x, nil
}

// parseLogAnd handles &&
func (p *Parser) parseLogAnd() (Node, error) {
	x, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	for p.at("&&") {
		tok := p.advance()
		rhs, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		x = &LogicalExpr{nodeInfo: nodeInfo{Tok: tok}, And: true, LHS: x, RHS: rhs}
	}
	return x, nil
}

var (
	bitOrOps    = map[string]BinaryOp{"|": OpBitOr}
	bitXorOps   = map[string]BinaryOp{"^": OpBitXor}
	bitAndOps   = map[string]BinaryOp{"&": OpBitAnd}
	equalityOps = map[string]BinaryOp{"==": OpEq, "!=": OpNe}
	shiftOps    = map[string]BinaryOp{"<<": OpShl, ">>": OpShr}
	mulOps      = map[string]BinaryOp{"*": OpMul, "/": OpDiv, "%": OpMod}
)

// binaryLevel is one left-associative precedence level.
type binaryLevel struct {
	ops  map[string]BinaryOp
	next func() (Node, error)
}

func (p *Parser) parseLevel(lv binaryLevel) (Node, error) {
	x, err := lv.next()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		op, ok := lv.ops[tok.Lexeme]
		if !ok || tok.Type != PUNCT {
			return x, nil
		}
		p.advance()
		rhs, err := lv.next()
		if err != nil {
			return nil, err
		}
		x = newBinary(op, x, rhs, tok)
	}
}

// parseBitOr handles |
func (p *Parser) parseBitOr() (Node, error) {
	return p.parseLevel(binaryLevel{bitOrOps, p.parseBitXor})
}

// parseBitXor handles ^
func (p *Parser) parseBitXor() (Node, error) {
	return p.parseLevel(binaryLevel{bitXorOps, p.parseBitAnd})
}

// parseBitAnd handles binary &. Unary & is handled in parseUnary.
func (p *Parser) parseBitAnd() (Node, error) {
	return p.parseLevel(binaryLevel{bitAndOps, p.parseEquality})
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (Node, error) {
	return p.parseLevel(binaryLevel{equalityOps, p.parseRelational})
}

// parseRelational handles <, <=, > and >=. The last two swap their
// operands so only < and <= reach code generation.
func (p *Parser) parseRelational() (Node, error) {
	x, err := p.parseShift()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		var op BinaryOp
		swap := false
		switch {
		case tok.is("<"):
			op = OpLt
		case tok.is("<="):
			op = OpLe
		case tok.is(">"):
			op, swap = OpLt, true
		case tok.is(">="):
			op, swap = OpLe, true
		default:
			return x, nil
		}
		p.advance()
		rhs, err := p.parseShift()
		if err != nil {
			return nil, err
		}
		if swap {
			x = newBinary(op, rhs, x, tok)
		} else {
			x = newBinary(op, x, rhs, tok)
		}
	}
}

// parseShift handles << and >>
func (p *Parser) parseShift() (Node, error) {
	return p.parseLevel(binaryLevel{shiftOps, p.parseAdd})
}

// parseAdd handles + and -, scaling pointer operands.
func (p *Parser) parseAdd() (Node, error) {
	x, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.at("+") || p.at("-") {
		tok := p.advance()
		rhs, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		if tok.is("+") {
			x, err = p.newAdd(x, rhs, tok)
		} else {
			x, err = p.newSub(x, rhs, tok)
		}
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}

// newAdd builds lhs + rhs. For ptr + n the integer is scaled by the
// pointee size: p + n means p + n*sizeof(*p).
func (p *Parser) newAdd(lhs, rhs Node, tok Token) (Node, error) {
	if err := addType(lhs); err != nil {
		return nil, err
	}
	if err := addType(rhs); err != nil {
		return nil, err
	}
	lt, rt := lhs.Type(), rhs.Type()

	if lt.IsNumeric() && rt.IsNumeric() {
		return newBinary(OpAdd, lhs, rhs, tok), nil
	}
	if lt.hasBase() && rt.hasBase() {
		return nil, p.fmtError(InvalidOperands, tok, "invalid operands to binary +: %s and %s", lt, rt)
	}
	// n + ptr
	if !lt.hasBase() && rt.hasBase() {
		lhs, rhs = rhs, lhs
		lt, rt = rt, lt
	}
	if !lt.hasBase() || !rt.IsInteger() {
		return nil, p.fmtError(InvalidOperands, tok, "invalid operands to binary +: %s and %s", lt, rt)
	}

	scaled := newBinary(OpMul, rhs, newLong(int64(lt.Base.Size), tok), tok)
	return newBinary(OpAdd, lhs, scaled, tok), nil
}

// newSub builds lhs - rhs. ptr - n scales n; ptr - ptr yields the element
// count between them.
func (p *Parser) newSub(lhs, rhs Node, tok Token) (Node, error) {
	if err := addType(lhs); err != nil {
		return nil, err
	}
	if err := addType(rhs); err != nil {
		return nil, err
	}
	lt, rt := lhs.Type(), rhs.Type()

	if lt.IsNumeric() && rt.IsNumeric() {
		return newBinary(OpSub, lhs, rhs, tok), nil
	}

	if lt.hasBase() && rt.IsInteger() {
		scaled := newBinary(OpMul, rhs, newLong(int64(lt.Base.Size), tok), tok)
		if err := addType(scaled); err != nil {
			return nil, err
		}
		diff := newBinary(OpSub, lhs, scaled, tok)
		diff.Ty = lt
		return diff, nil
	}

	if lt.hasBase() && rt.hasBase() {
		diff := newBinary(OpSub, lhs, rhs, tok)
		diff.Ty = tyLong
		return newBinary(OpDiv, diff, newLong(int64(lt.Base.Size), tok), tok), nil
	}
	return nil, p.fmtError(InvalidOperands, tok, "invalid operands to binary -: %s and %s", lt, rt)
}

// parseMul handles *, / and %
func (p *Parser) parseMul() (Node, error) {
	return p.parseLevel(binaryLevel{mulOps, p.parseCast})
}

// parseCast handles "(type) expr".
func (p *Parser) parseCast() (Node, error) {
	if p.at("(") && p.isTypename(p.peekAt(1)) {
		p.advance()
		ty, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		x, err := p.parseCast()
		if err != nil {
			return nil, err
		}
		return newCast(x, ty)
	}
	return p.parseUnary()
}

// parseUnary handles prefix operators.
func (p *Parser) parseUnary() (Node, error) {
	tok := p.peek()

	switch {
	case tok.is("+"):
		p.advance()
		return p.parseCast()

	case tok.is("-"), tok.is("!"), tok.is("~"):
		p.advance()
		x, err := p.parseCast()
		if err != nil {
			return nil, err
		}
		op := OpNeg
		if tok.is("!") {
			op = OpNot
		} else if tok.is("~") {
			op = OpBitNot
		}
		return &UnaryExpr{nodeInfo: nodeInfo{Tok: tok}, Op: op, X: x}, nil

	case tok.is("&"):
		p.advance()
		x, err := p.parseCast()
		if err != nil {
			return nil, err
		}
		return newAddr(x, tok), nil

	case tok.is("*"):
		p.advance()
		x, err := p.parseCast()
		if err != nil {
			return nil, err
		}
		if err := addType(x); err != nil {
			return nil, err
		}
		// *f for a function designator is f itself.
		if x.Type().Kind == TyFunc {
			return x, nil
		}
		return newDeref(x, tok), nil

	case tok.is("++"), tok.is("--"):
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		build := p.newAdd
		if tok.is("--") {
			build = p.newSub
		}
		return p.toAssign(x, newNum(1, tok), tok, build)
	}

	return p.parsePostfix()
}

// parsePostfix handles a[i], s.m, p->m, x++ and x--.
func (p *Parser) parsePostfix() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		switch {
		case tok.is("["):
			// a[i] is *(a + i)
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			sum, err := p.newAdd(x, idx, tok)
			if err != nil {
				return nil, err
			}
			x = newDeref(sum, tok)

		case tok.is("."):
			p.advance()
			if x, err = p.structRef(x); err != nil {
				return nil, err
			}

		case tok.is("->"):
			// p->m is (*p).m
			p.advance()
			if x, err = p.structRef(newDeref(x, tok)); err != nil {
				return nil, err
			}

		case tok.is("++"):
			p.advance()
			if x, err = p.newIncDec(x, tok, 1); err != nil {
				return nil, err
			}

		case tok.is("--"):
			p.advance()
			if x, err = p.newIncDec(x, tok, -1); err != nil {
				return nil, err
			}

		default:
			return x, nil
		}
	}
}

// newIncDec turns x++ into (typeof x)((x += 1) - 1), and x-- likewise.
func (p *Parser) newIncDec(x Node, tok Token, addend int64) (Node, error) {
	if err := addType(x); err != nil {
		return nil, err
	}
	inc, err := p.toAssign(x, newNum(addend, tok), tok, p.newAdd)
	if err != nil {
		return nil, err
	}
	orig, err := p.newAdd(inc, newNum(-addend, tok), tok)
	if err != nil {
		return nil, err
	}
	return newCast(orig, x.Type())
}

// structRef resolves the member named by the next token.
func (p *Parser) structRef(x Node) (Node, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := addType(x); err != nil {
		return nil, err
	}
	ty := x.Type()
	if ty.Kind != TyStruct && ty.Kind != TyUnion {
		return nil, p.fmtError(InvalidOperands, name, "member access on %s, which is not a struct nor a union", ty)
	}
	mem := ty.findMember(name.Lexeme)
	if mem == nil {
		return nil, p.fmtError(UndefinedSymbol, name, "no member named %q", name.Lexeme)
	}
	return &MemberExpr{nodeInfo: nodeInfo{Tok: name}, X: x, Mem: mem}, nil
}

// parseFuncCall parses "ident ( args )". Each argument is converted to the
// declared parameter type when one exists.
func (p *Parser) parseFuncCall(name Token) (Node, error) {
	p.advance() // (

	vs := p.scope.LookupVar(name.Lexeme)
	if vs == nil {
		return nil, p.fmtError(UndefinedSymbol, name, "implicit declaration of function %q", name.Lexeme)
	}
	if vs.Var == nil || vs.Var.Ty.Kind != TyFunc {
		return nil, p.fmtError(InvalidType, name, "%q is not a function", name.Lexeme)
	}
	fnTy := vs.Var.Ty

	call := &CallExpr{nodeInfo: nodeInfo{Tok: name, Ty: fnTy.ReturnTy}, Name: name.Lexeme, FuncTy: fnTy}
	for !p.consume(")") {
		if len(call.Args) > 0 {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}
		argTok := p.peek()
		arg, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		if err := addType(arg); err != nil {
			return nil, err
		}

		if i := len(call.Args); i < len(fnTy.Params) {
			if pk := fnTy.Params[i].Kind; pk == TyStruct || pk == TyUnion {
				return nil, p.fmtError(UnsupportedArgumentType, argTok, "passing struct or union by value is not supported")
			}
			if arg, err = newCast(arg, fnTy.Params[i]); err != nil {
				return nil, err
			}
		}
		if k := arg.Type().Kind; k == TyStruct || k == TyUnion {
			return nil, p.fmtError(UnsupportedArgumentType, argTok, "passing struct or union by value is not supported")
		}
		call.Args = append(call.Args, arg)
	}
	return call, nil
}

// parsePrimary handles literals, names, sizeof, parentheses and statement
// expressions.
func (p *Parser) parsePrimary() (Node, error) {
	tok := p.peek()

	// GNU statement expression
	if tok.is("(") && p.peekAt(1).is("{") {
		p.advance()
		lbrace := p.advance()
		blk, err := p.parseCompoundStmt(lbrace)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return &StmtExpr{nodeInfo: nodeInfo{Tok: tok}, Body: blk.Body}, nil
	}

	if tok.is("(") {
		p.advance()
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return x, nil
	}

	if tok.is("sizeof") {
		p.advance()
		if p.at("(") && p.isTypename(p.peekAt(1)) {
			p.advance()
			ty, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			if ty.Size < 0 {
				return nil, p.fmtError(IncompleteType, tok, "sizeof applied to incomplete type %s", ty)
			}
			return newNum(int64(ty.Size), tok), nil
		}
		// The operand is only typed, never evaluated. Objects created while
		// parsing it are dropped again.
		m := p.mark()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if err := addType(x); err != nil {
			return nil, err
		}
		p.discard(m)
		if x.Type().Size < 0 {
			return nil, p.fmtError(IncompleteType, tok, "sizeof applied to incomplete type %s", x.Type())
		}
		return newNum(int64(x.Type().Size), tok), nil
	}

	switch tok.Type {
	case IDENT:
		if p.peekAt(1).is("(") {
			p.advance()
			return p.parseFuncCall(tok)
		}
		p.advance()
		vs := p.scope.LookupVar(tok.Lexeme)
		if vs == nil || (vs.Var == nil && vs.EnumTy == nil) {
			return nil, p.fmtError(UndefinedSymbol, tok, "undefined variable %q", tok.Lexeme)
		}
		if vs.Var != nil {
			return newVarRef(vs.Var, tok), nil
		}
		return &NumLit{nodeInfo: nodeInfo{Tok: tok, Ty: tyInt}, Val: vs.EnumVal}, nil

	case STR:
		p.advance()
		return newVarRef(p.newStringLiteral(tok), tok), nil

	case NUM:
		p.advance()
		if tok.IsFloat {
			ty := tyDouble
			if tok.IsFloat32 {
				ty = tyFloat
			}
			return &NumLit{nodeInfo: nodeInfo{Tok: tok, Ty: ty}, FVal: tok.Float}, nil
		}
		n := newNum(tok.Int, tok)
		if tok.IsLong || !isIntLiteral(tok.Int) {
			n.Ty = tyLong
		} else {
			n.Ty = tyInt
		}
		return n, nil
	}

	return nil, p.fmtError(SyntaxError, tok, "expected an expression, got %s", describe(tok))
}

// isIntLiteral reports whether v fits a 32-bit int.
func isIntLiteral(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
