package compiler

// constExpr parses a conditional expression and folds it to an integer.
// Used for array sizes, enum values and case labels.
func (p *Parser) constExpr() (int64, error) {
	m := p.mark()
	n, err := p.parseConditional()
	if err != nil {
		return 0, err
	}
	if err := addType(n); err != nil {
		return 0, err
	}
	// Anything the expression created is not needed once it is folded.
	p.discard(m)
	return eval(n)
}

// eval folds n to an integer. Addresses are not allowed.
func eval(n Node) (int64, error) {
	return evalLabel(n, nil)
}

func notConstant(n Node) error {
	return newError(SyntaxError, n.Pos(), "not a compile-time constant")
}

// evalLabel folds n to an integer. If label is non-nil, n may also be the
// address of a global plus a constant; the global's name is stored in
// *label and the constant is returned.
func evalLabel(n Node, label *string) (int64, error) {
	if err := addType(n); err != nil {
		return 0, err
	}
	if n.Type().IsFloat() {
		f, err := evalDouble(n)
		return int64(f), err
	}

	switch n := n.(type) {
	case *NumLit:
		return n.Val, nil

	case *BinaryExpr:
		switch n.Op {
		case OpAdd, OpSub:
			l, err := evalLabel(n.LHS, label)
			if err != nil {
				return 0, err
			}
			r, err := eval(n.RHS)
			if err != nil {
				return 0, err
			}
			if n.Op == OpAdd {
				return l + r, nil
			}
			return l - r, nil
		}
		l, err := eval(n.LHS)
		if err != nil {
			return 0, err
		}
		r, err := eval(n.RHS)
		if err != nil {
			return 0, err
		}
		return foldBinary(n, l, r)

	case *LogicalExpr:
		l, err := eval(n.LHS)
		if err != nil {
			return 0, err
		}
		if n.And && l == 0 {
			return 0, nil
		}
		if !n.And && l != 0 {
			return 1, nil
		}
		r, err := eval(n.RHS)
		if err != nil {
			return 0, err
		}
		return boolInt(r != 0), nil

	case *UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case OpNeg:
			return -x, nil
		case OpNot:
			return boolInt(x == 0), nil
		default:
			return ^x, nil
		}

	case *CondExpr:
		c, err := eval(n.Cond)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return evalLabel(n.Then, label)
		}
		return evalLabel(n.Else, label)

	case *CommaExpr:
		return evalLabel(n.RHS, label)

	case *CastExpr:
		v, err := evalLabel(n.X, label)
		if err != nil {
			return 0, err
		}
		if !n.Ty.IsInteger() {
			return v, nil
		}
		return truncate(v, n.Ty), nil

	case *AddrExpr:
		return evalRval(n.X, label)

	case *MemberExpr:
		if label == nil || n.Ty.Kind != TyArray {
			return 0, notConstant(n)
		}
		base, err := evalRval(n.X, label)
		if err != nil {
			return 0, err
		}
		return base + int64(n.Mem.Offset), nil

	case *VarRef:
		// An array or function name decays to its address.
		if label == nil || n.Var.IsLocal {
			return 0, notConstant(n)
		}
		if n.Var.Ty.Kind != TyArray && n.Var.Ty.Kind != TyFunc {
			return 0, notConstant(n)
		}
		*label = n.Var.Name
		return 0, nil
	}
	return 0, notConstant(n)
}

// evalRval folds the address of an lvalue.
func evalRval(n Node, label *string) (int64, error) {
	switch n := n.(type) {
	case *VarRef:
		if label == nil || n.Var.IsLocal {
			return 0, notConstant(n)
		}
		*label = n.Var.Name
		return 0, nil
	case *DerefExpr:
		return evalLabel(n.X, label)
	case *MemberExpr:
		base, err := evalRval(n.X, label)
		if err != nil {
			return 0, err
		}
		return base + int64(n.Mem.Offset), nil
	}
	return 0, notConstant(n)
}

// evalDouble folds n to a floating value.
func evalDouble(n Node) (float64, error) {
	if err := addType(n); err != nil {
		return 0, err
	}
	if n.Type().IsInteger() {
		v, err := eval(n)
		return float64(v), err
	}

	switch n := n.(type) {
	case *NumLit:
		return n.FVal, nil

	case *BinaryExpr:
		l, err := evalDouble(n.LHS)
		if err != nil {
			return 0, err
		}
		r, err := evalDouble(n.RHS)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case OpAdd:
			return l + r, nil
		case OpSub:
			return l - r, nil
		case OpMul:
			return l * r, nil
		case OpDiv:
			return l / r, nil
		}

	case *UnaryExpr:
		if n.Op == OpNeg {
			x, err := evalDouble(n.X)
			return -x, err
		}

	case *CondExpr:
		c, err := evalDouble(n.Cond)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return evalDouble(n.Then)
		}
		return evalDouble(n.Else)

	case *CommaExpr:
		return evalDouble(n.RHS)

	case *CastExpr:
		if n.X.Type().IsFloat() {
			return evalDouble(n.X)
		}
		v, err := eval(n.X)
		return float64(v), err
	}
	return 0, notConstant(n)
}

func foldBinary(n *BinaryExpr, l, r int64) (int64, error) {
	switch n.Op {
	case OpMul:
		return l * r, nil
	case OpDiv, OpMod:
		if r == 0 {
			return 0, newError(InvalidOperands, n.Tok, "division by zero in constant expression")
		}
		if n.Op == OpDiv {
			return l / r, nil
		}
		return l % r, nil
	case OpBitAnd:
		return l & r, nil
	case OpBitOr:
		return l | r, nil
	case OpBitXor:
		return l ^ r, nil
	case OpShl:
		return l << uint64(r), nil
	case OpShr:
		return l >> uint64(r), nil
	case OpEq:
		return boolInt(l == r), nil
	case OpNe:
		return boolInt(l != r), nil
	case OpLt:
		return boolInt(l < r), nil
	case OpLe:
		return boolInt(l <= r), nil
	}
	return 0, notConstant(n)
}

// truncate narrows v to the width of an integer type, sign-extending.
func truncate(v int64, ty *Type) int64 {
	switch {
	case ty.Kind == TyBool:
		return boolInt(v != 0)
	case ty.Size == 1:
		return int64(int8(v))
	case ty.Size == 2:
		return int64(int16(v))
	case ty.Size == 4:
		return int64(int32(v))
	}
	return v
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
