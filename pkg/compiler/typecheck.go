package compiler

// addType annotates n and everything below it with types, inserting casts
// for the usual arithmetic conversions. Nodes that already carry a type are
// left alone, so calling it twice is harmless.
func addType(n Node) error {
	if n == nil || n.Type() != nil {
		return nil
	}

	switch n := n.(type) {
	case *NumLit:
		if isIntLiteral(n.Val) {
			n.Ty = tyInt
		} else {
			n.Ty = tyLong
		}

	case *VarRef:
		n.Ty = n.Var.Ty

	case *UnaryExpr:
		if err := addType(n.X); err != nil {
			return err
		}
		switch n.Op {
		case OpNeg:
			ty := commonType(tyInt, n.X.Type())
			n.X = castTo(n.X, ty)
			n.Ty = ty
		case OpNot:
			n.Ty = tyInt
		case OpBitNot:
			if !n.X.Type().IsInteger() {
				return newError(InvalidOperands, n.Tok, "invalid operand to unary ~: %s", n.X.Type())
			}
			n.Ty = n.X.Type()
		}

	case *BinaryExpr:
		if err := addType(n.LHS); err != nil {
			return err
		}
		if err := addType(n.RHS); err != nil {
			return err
		}
		lt, rt := n.LHS.Type(), n.RHS.Type()
		if !isScalar(lt) || !isScalar(rt) {
			return newError(InvalidOperands, n.Tok, "invalid operands to binary %s: %s and %s", n.Op, lt, rt)
		}
		switch {
		case n.Op == OpShl || n.Op == OpShr:
			if lt.IsInteger() && lt.Size < 4 {
				n.LHS = castTo(n.LHS, tyInt)
				lt = tyInt
			}
			n.Ty = lt
		case n.Op.isComparison():
			usualArithConv(&n.LHS, &n.RHS)
			n.Ty = tyInt
		default:
			usualArithConv(&n.LHS, &n.RHS)
			n.Ty = n.LHS.Type()
		}

	case *LogicalExpr:
		if err := addType(n.LHS); err != nil {
			return err
		}
		if err := addType(n.RHS); err != nil {
			return err
		}
		n.Ty = tyInt

	case *AssignExpr:
		if err := addType(n.LHS); err != nil {
			return err
		}
		if err := addType(n.RHS); err != nil {
			return err
		}
		lt := n.LHS.Type()
		if lt.Kind == TyArray {
			return newError(NotAnLvalue, n.Tok, "assignment to array")
		}
		if lt.Kind != TyStruct && lt.Kind != TyUnion {
			n.RHS = castTo(n.RHS, lt)
		}
		n.Ty = lt

	case *DerefExpr:
		if err := addType(n.X); err != nil {
			return err
		}
		xt := n.X.Type()
		if !xt.hasBase() {
			return newError(InvalidOperands, n.Tok, "invalid pointer dereference of %s", xt)
		}
		if xt.Base.Kind == TyVoid {
			return newError(InvalidOperands, n.Tok, "dereferencing a void pointer")
		}
		n.Ty = xt.Base

	case *AddrExpr:
		if err := addType(n.X); err != nil {
			return err
		}
		if xt := n.X.Type(); xt.Kind == TyArray {
			n.Ty = pointerTo(xt.Base)
		} else {
			n.Ty = pointerTo(xt)
		}

	case *MemberExpr:
		if err := addType(n.X); err != nil {
			return err
		}
		n.Ty = n.Mem.Ty

	case *CallExpr:
		for _, a := range n.Args {
			if err := addType(a); err != nil {
				return err
			}
		}
		n.Ty = n.FuncTy.ReturnTy

	case *CommaExpr:
		if err := addType(n.LHS); err != nil {
			return err
		}
		if err := addType(n.RHS); err != nil {
			return err
		}
		n.Ty = n.RHS.Type()

	case *CondExpr:
		for _, c := range []Node{n.Cond, n.Then, n.Else} {
			if err := addType(c); err != nil {
				return err
			}
		}
		if n.Then.Type().Kind == TyVoid || n.Else.Type().Kind == TyVoid {
			n.Ty = tyVoid
		} else if isScalar(n.Then.Type()) && isScalar(n.Else.Type()) {
			usualArithConv(&n.Then, &n.Else)
			n.Ty = n.Then.Type()
		} else {
			n.Ty = n.Then.Type()
		}

	case *CastExpr:
		// Only reached for a cast built without newCast.
		return newError(InternalConsistency, n.Tok, "cast without a target type")

	case *StmtExpr:
		for _, s := range n.Body {
			if err := addType(s); err != nil {
				return err
			}
		}
		n.Ty = tyVoid
		if len(n.Body) > 0 {
			if last, ok := n.Body[len(n.Body)-1].(*ExprStmt); ok {
				n.Ty = last.X.Type()
			}
		}

	case *NullExpr:
		n.Ty = tyVoid

	case *MemZero:
		n.Ty = tyVoid

	case *ExprStmt:
		if err := addType(n.X); err != nil {
			return err
		}
		n.Ty = tyVoid

	case *BlockStmt:
		for _, s := range n.Body {
			if err := addType(s); err != nil {
				return err
			}
		}
		n.Ty = tyVoid

	case *IfStmt:
		for _, c := range []Node{n.Cond, n.Then, n.Else} {
			if err := addType(c); err != nil {
				return err
			}
		}
		n.Ty = tyVoid

	case *ForStmt:
		for _, c := range []Node{n.Init, n.Cond, n.Inc, n.Body} {
			if err := addType(c); err != nil {
				return err
			}
		}
		n.Ty = tyVoid

	case *ReturnStmt:
		if err := addType(n.X); err != nil {
			return err
		}
		n.Ty = tyVoid

	case *GotoStmt:
		n.Ty = tyVoid

	case *LabelStmt:
		if err := addType(n.Body); err != nil {
			return err
		}
		n.Ty = tyVoid

	case *SwitchStmt:
		if err := addType(n.Cond); err != nil {
			return err
		}
		if !n.Cond.Type().IsInteger() {
			return newError(InvalidOperands, n.Tok, "switch on non-integer type %s", n.Cond.Type())
		}
		if err := addType(n.Body); err != nil {
			return err
		}
		n.Ty = tyVoid

	case *CaseStmt:
		if err := addType(n.Body); err != nil {
			return err
		}
		n.Ty = tyVoid

	default:
		return newError(InternalConsistency, n.Pos(), "unknown node %T", n)
	}
	return nil
}

// isScalar reports whether values of ty can take part in arithmetic.
func isScalar(ty *Type) bool {
	return ty.IsNumeric() || ty.hasBase() || ty.Kind == TyFunc
}

// commonType is the type both operands of a binary operator convert to.
func commonType(a, b *Type) *Type {
	if a.hasBase() {
		return pointerTo(a.Base)
	}
	if a.Kind == TyFunc {
		return pointerTo(a)
	}
	if b.Kind == TyFunc {
		return pointerTo(b)
	}
	if a.Kind == TyDouble || b.Kind == TyDouble {
		return tyDouble
	}
	if a.Kind == TyFloat || b.Kind == TyFloat {
		return tyFloat
	}
	if a.Size < 4 {
		a = tyInt
	}
	if b.Size < 4 {
		b = tyInt
	}
	if a.Size != b.Size {
		if a.Size < b.Size {
			return b
		}
		return a
	}
	return b
}

// usualArithConv converts both operands to their common type.
func usualArithConv(lhs, rhs *Node) {
	ty := commonType((*lhs).Type(), (*rhs).Type())
	*lhs = castTo(*lhs, ty)
	*rhs = castTo(*rhs, ty)
}

// castTo wraps an already typed node in a cast.
func castTo(x Node, ty *Type) Node {
	return &CastExpr{nodeInfo: nodeInfo{Tok: x.Pos(), Ty: ty}, X: x}
}
