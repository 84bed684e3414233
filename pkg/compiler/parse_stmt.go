package compiler

// parseCompoundStmt parses the statements of a block after its "{" and
// annotates each with types. It opens and closes one scope frame.
func (p *Parser) parseCompoundStmt(lbrace Token) (*BlockStmt, error) {
	blk := &BlockStmt{nodeInfo: nodeInfo{Tok: lbrace}}

	p.scope.EnterScope()
	defer p.scope.LeaveScope()

	for !p.consume("}") {
		tok := p.peek()
		if tok.Type == EOF {
			return nil, p.fmtError(SyntaxError, tok, "expected \"}\" to close block opened on line %d", lbrace.Line)
		}

		var n Node
		var err error
		if p.isTypename(tok) && !p.peekAt(1).is(":") {
			attr := &varAttr{}
			basety, err := p.parseDeclspec(attr)
			if err != nil {
				return nil, err
			}
			if attr.isTypedef {
				if err := p.parseTypedef(basety); err != nil {
					return nil, err
				}
				continue
			}
			n, err = p.parseDeclaration(basety, attr)
			if err != nil {
				return nil, err
			}
		} else {
			n, err = p.parseStmt()
			if err != nil {
				return nil, err
			}
		}

		if err := addType(n); err != nil {
			return nil, err
		}
		blk.Body = append(blk.Body, n)
	}
	return blk, nil
}

// parseDeclaration parses the declarators of a block-scope declaration.
// Initialized locals become assignment statements in the returned block.
func (p *Parser) parseDeclaration(basety *Type, attr *varAttr) (Node, error) {
	blk := &BlockStmt{nodeInfo: nodeInfo{Tok: p.peek()}}

	first := true
	for !p.consume(";") {
		if !first {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}
		first = false

		ty, name, err := p.parseDeclarator(basety)
		if err != nil {
			return nil, err
		}
		if name.Type != IDENT {
			return nil, p.fmtError(SyntaxError, p.peek(), "variable name omitted")
		}
		if ty.Kind == TyVoid {
			return nil, p.fmtError(VoidVariable, name, "variable %q declared void", name.Lexeme)
		}

		if attr != nil && attr.isStatic {
			// Block-scope statics live in the data section under a generated name.
			v := p.newAnonGVar(ty, name)
			p.scope.PushVar(name.Lexeme).Var = v
			if p.consume("=") {
				if err := p.parseGVarInitializer(v); err != nil {
					return nil, err
				}
			}
			if v.Ty.Size < 0 {
				return nil, p.fmtError(IncompleteType, name, "variable %q has incomplete type %s", name.Lexeme, v.Ty)
			}
			continue
		}

		v := p.newLVar(name.Lexeme, ty, name)
		if p.at("=") {
			eq := p.advance()
			init, err := p.parseLVarInitializer(v, eq)
			if err != nil {
				return nil, err
			}
			blk.Body = append(blk.Body, &ExprStmt{nodeInfo: nodeInfo{Tok: eq}, X: init})
		}
		if v.Ty.Size < 0 {
			return nil, p.fmtError(IncompleteType, name, "variable %q has incomplete type %s", name.Lexeme, v.Ty)
		}
	}
	return blk, nil
}

// parseStmt parses one statement.
func (p *Parser) parseStmt() (Node, error) {
	tok := p.peek()

	switch {
	case tok.is("return"):
		return p.parseReturn()
	case tok.is("if"):
		return p.parseIf()
	case tok.is("switch"):
		return p.parseSwitch()
	case tok.is("case"):
		return p.parseCase()
	case tok.is("default"):
		return p.parseDefault()
	case tok.is("for"):
		return p.parseFor()
	case tok.is("while"):
		return p.parseWhile()

	case tok.is("goto"):
		p.advance()
		label, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		g := &GotoStmt{nodeInfo: nodeInfo{Tok: label}, Label: label.Lexeme}
		p.gotos = append(p.gotos, g)
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}
		return g, nil

	case tok.is("break"):
		p.advance()
		if p.brkLabel == "" {
			return nil, p.fmtError(StrayControlTransfer, tok, "stray break")
		}
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}
		return &GotoStmt{nodeInfo: nodeInfo{Tok: tok}, Label: "break", Unique: p.brkLabel}, nil

	case tok.is("continue"):
		p.advance()
		if p.contLabel == "" {
			return nil, p.fmtError(StrayControlTransfer, tok, "stray continue")
		}
		if _, err := p.expect(";"); err != nil {
			return nil, err
		}
		return &GotoStmt{nodeInfo: nodeInfo{Tok: tok}, Label: "continue", Unique: p.contLabel}, nil

	case tok.Type == IDENT && p.peekAt(1).is(":"):
		p.pos += 2
		for _, l := range p.labels {
			if l.Label == tok.Lexeme {
				return nil, p.fmtError(SyntaxError, tok, "duplicate label %q", tok.Lexeme)
			}
		}
		l := &LabelStmt{nodeInfo: nodeInfo{Tok: tok}, Label: tok.Lexeme, Unique: p.newUniqueName()}
		p.labels = append(p.labels, l)
		body, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		l.Body = body
		return l, nil

	case tok.is("{"):
		p.advance()
		return p.parseCompoundStmt(tok)
	}

	return p.parseExprStmt()
}

// parseExprStmt parses "expr? ;". An empty statement is an empty block.
func (p *Parser) parseExprStmt() (Node, error) {
	tok := p.peek()
	if p.consume(";") {
		return &BlockStmt{nodeInfo: nodeInfo{Tok: tok}}, nil
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return &ExprStmt{nodeInfo: nodeInfo{Tok: tok}, X: x}, nil
}

func (p *Parser) parseReturn() (Node, error) {
	tok := p.advance()
	ret := &ReturnStmt{nodeInfo: nodeInfo{Tok: tok}}
	if p.consume(";") {
		return ret, nil
	}

	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	if err := addType(x); err != nil {
		return nil, err
	}
	if rt := p.curFn.Ty.ReturnTy; rt.Kind != TyStruct && rt.Kind != TyUnion {
		if x, err = newCast(x, rt); err != nil {
			return nil, err
		}
	}
	ret.X = x
	return ret, nil
}

func (p *Parser) parseIf() (Node, error) {
	tok := p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	then, err := p.parseStmt()
	if err != nil {
		return nil, err
	}

	s := &IfStmt{nodeInfo: nodeInfo{Tok: tok}, Cond: cond, Then: then}
	if p.consume("else") {
		if s.Else, err = p.parseStmt(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// parseSwitch records the cases found while parsing its body. continue
// inside a switch still targets the enclosing loop.
func (p *Parser) parseSwitch() (Node, error) {
	tok := p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}

	sw := &SwitchStmt{nodeInfo: nodeInfo{Tok: tok}, Cond: cond, BrkLabel: p.newUniqueName()}
	prevSwitch := p.curSwitch
	p.curSwitch = sw
	restore := p.pushJumpTargets(sw.BrkLabel, p.contLabel)
	defer func() {
		restore()
		p.curSwitch = prevSwitch
	}()

	if sw.Body, err = p.parseStmt(); err != nil {
		return nil, err
	}
	return sw, nil
}

func (p *Parser) parseCase() (Node, error) {
	tok := p.advance()
	if p.curSwitch == nil {
		return nil, p.fmtError(StrayControlTransfer, tok, "stray case")
	}
	val, err := p.constExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}

	c := &CaseStmt{nodeInfo: nodeInfo{Tok: tok}, Val: val, Label: p.newUniqueName()}
	p.curSwitch.Cases = append(p.curSwitch.Cases, c)
	if c.Body, err = p.parseStmt(); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseDefault() (Node, error) {
	tok := p.advance()
	if p.curSwitch == nil {
		return nil, p.fmtError(StrayControlTransfer, tok, "stray default")
	}
	if p.curSwitch.Default != nil {
		return nil, p.fmtError(SyntaxError, tok, "multiple default labels in one switch")
	}
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}

	c := &CaseStmt{nodeInfo: nodeInfo{Tok: tok}, IsDefault: true, Label: p.newUniqueName()}
	p.curSwitch.Default = c
	var err error
	if c.Body, err = p.parseStmt(); err != nil {
		return nil, err
	}
	return c, nil
}

// parseFor parses "for (init; cond; inc) body". A declaration in init is
// scoped to the loop.
func (p *Parser) parseFor() (Node, error) {
	tok := p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}

	p.scope.EnterScope()
	defer p.scope.LeaveScope()

	f := &ForStmt{nodeInfo: nodeInfo{Tok: tok}, BrkLabel: p.newUniqueName(), ContLabel: p.newUniqueName()}
	restore := p.pushJumpTargets(f.BrkLabel, f.ContLabel)
	defer restore()

	var err error
	if p.isTypename(p.peek()) {
		basety, err := p.parseDeclspec(nil)
		if err != nil {
			return nil, err
		}
		if f.Init, err = p.parseDeclaration(basety, nil); err != nil {
			return nil, err
		}
	} else if f.Init, err = p.parseExprStmt(); err != nil {
		return nil, err
	}

	if !p.at(";") {
		if f.Cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	if !p.at(")") {
		if f.Inc, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if f.Body, err = p.parseStmt(); err != nil {
		return nil, err
	}
	return f, nil
}

// parseWhile parses "while (cond) body" as a for loop without init or inc.
func (p *Parser) parseWhile() (Node, error) {
	tok := p.advance()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}

	f := &ForStmt{nodeInfo: nodeInfo{Tok: tok}, BrkLabel: p.newUniqueName(), ContLabel: p.newUniqueName()}
	restore := p.pushJumpTargets(f.BrkLabel, f.ContLabel)
	defer restore()

	var err error
	if f.Cond, err = p.parseExpr(); err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	if f.Body, err = p.parseStmt(); err != nil {
		return nil, err
	}
	return f, nil
}
