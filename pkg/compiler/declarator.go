package compiler

// Keyword weights for parseDeclspec. Each type keyword adds its weight to a
// counter; the final sum names exactly one type. The gaps leave room for a
// keyword to repeat (long long) without colliding with the next one.
const (
	kwVoid   = 1 << 0
	kwBool   = 1 << 2
	kwChar   = 1 << 4
	kwShort  = 1 << 6
	kwInt    = 1 << 8
	kwLong   = 1 << 10
	kwFloat  = 1 << 12
	kwDouble = 1 << 14
	kwOther  = 1 << 16
)

var typeKeywords = map[string]bool{
	"void": true, "_Bool": true, "char": true, "short": true, "int": true,
	"long": true, "float": true, "double": true, "struct": true, "union": true,
	"enum": true, "typedef": true, "static": true, "const": true, "volatile": true,
}

// findTypedef returns the typedef binding for tok, or nil.
func (p *Parser) findTypedef(tok Token) *VarScope {
	if tok.Type != IDENT {
		return nil
	}
	if vs := p.scope.LookupVar(tok.Lexeme); vs != nil && vs.Typedef != nil {
		return vs
	}
	return nil
}

// isTypename reports whether tok can start a declaration.
func (p *Parser) isTypename(tok Token) bool {
	if tok.Type == KEYWORD && typeKeywords[tok.Lexeme] {
		return true
	}
	return p.findTypedef(tok) != nil
}

// parseDeclspec resolves a run of declaration specifiers to one type.
// attr is nil where storage classes are not allowed (parameters, members,
// type names).
func (p *Parser) parseDeclspec(attr *varAttr) (*Type, error) {
	ty := tyInt
	counter := 0

	for p.isTypename(p.peek()) {
		tok := p.peek()

		if tok.is("typedef") || tok.is("static") {
			if attr == nil {
				return nil, p.fmtError(StorageClassNotAllowed, tok, "storage class specifier %q is not allowed in this context", tok.Lexeme)
			}
			p.advance()
			if tok.is("typedef") {
				attr.isTypedef = true
			} else {
				attr.isStatic = true
			}
			if attr.isTypedef && attr.isStatic {
				return nil, p.fmtError(StorageClassConflict, tok, "typedef and static may not be used together")
			}
			continue
		}

		if tok.is("const") || tok.is("volatile") {
			p.advance()
			continue
		}

		vs := p.findTypedef(tok)
		if tok.is("struct") || tok.is("union") || tok.is("enum") || vs != nil {
			if counter != 0 {
				break
			}
			p.advance()
			var err error
			switch {
			case tok.is("struct"):
				ty, err = p.parseStructUnionDecl(TyStruct)
			case tok.is("union"):
				ty, err = p.parseStructUnionDecl(TyUnion)
			case tok.is("enum"):
				ty, err = p.parseEnumSpecifier()
			default:
				ty = vs.Typedef
			}
			if err != nil {
				return nil, err
			}
			counter += kwOther
			continue
		}

		p.advance()
		switch tok.Lexeme {
		case "void":
			counter += kwVoid
		case "_Bool":
			counter += kwBool
		case "char":
			counter += kwChar
		case "short":
			counter += kwShort
		case "int":
			counter += kwInt
		case "long":
			counter += kwLong
		case "float":
			counter += kwFloat
		case "double":
			counter += kwDouble
		}

		switch counter {
		case kwVoid:
			ty = tyVoid
		case kwBool:
			ty = tyBool
		case kwChar:
			ty = tyChar
		case kwShort, kwShort + kwInt:
			ty = tyShort
		case kwInt:
			ty = tyInt
		case kwLong, kwLong + kwInt, kwLong + kwLong, kwLong + kwLong + kwInt:
			ty = tyLong
		case kwFloat:
			ty = tyFloat
		case kwDouble, kwLong + kwDouble:
			ty = tyDouble
		default:
			return nil, p.fmtError(InvalidType, tok, "invalid type")
		}
	}
	return ty, nil
}

// parseDeclarator applies pointers, a nested declarator and a type suffix
// to ty. The returned name token has Type EOF when the declarator is
// abstract.
//
// For "(" the interior is first parsed against a dummy type only to find
// the matching ")"; the suffix after it is applied to ty, and then the
// interior is parsed again against that result:
//
//	int (*a[6])(int)
//	     ^^^^^ interior, re-parsed against int(int)
func (p *Parser) parseDeclarator(ty *Type) (*Type, Token, error) {
	for p.consume("*") {
		ty = pointerTo(ty)
		for p.consume("const") || p.consume("volatile") {
		}
	}

	if p.at("(") {
		start := p.pos
		p.advance()
		if _, _, err := p.parseDeclarator(tyInt); err != nil {
			return nil, Token{}, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, Token{}, err
		}
		outer, err := p.parseTypeSuffix(ty)
		if err != nil {
			return nil, Token{}, err
		}
		end := p.pos
		p.pos = start + 1
		inner, name, err := p.parseDeclarator(outer)
		if err != nil {
			return nil, Token{}, err
		}
		p.pos = end
		return inner, name, nil
	}

	var name Token
	if p.peek().Type == IDENT {
		name = p.advance()
	}
	ty, err := p.parseTypeSuffix(ty)
	if err != nil {
		return nil, Token{}, err
	}
	if ty.Kind == TyFunc && name.Type == IDENT {
		n := name
		ty.Name = &n
	}
	return ty, name, nil
}

// parseAbstractDeclarator is parseDeclarator without a name.
func (p *Parser) parseAbstractDeclarator(ty *Type) (*Type, error) {
	for p.consume("*") {
		ty = pointerTo(ty)
		for p.consume("const") || p.consume("volatile") {
		}
	}

	if p.at("(") {
		start := p.pos
		p.advance()
		if _, err := p.parseAbstractDeclarator(tyInt); err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		outer, err := p.parseTypeSuffix(ty)
		if err != nil {
			return nil, err
		}
		end := p.pos
		p.pos = start + 1
		inner, err := p.parseAbstractDeclarator(outer)
		if err != nil {
			return nil, err
		}
		p.pos = end
		return inner, nil
	}
	return p.parseTypeSuffix(ty)
}

// parseTypeName parses a type in a cast or sizeof.
func (p *Parser) parseTypeName() (*Type, error) {
	basety, err := p.parseDeclspec(nil)
	if err != nil {
		return nil, err
	}
	return p.parseAbstractDeclarator(basety)
}

func (p *Parser) parseTypeSuffix(ty *Type) (*Type, error) {
	if p.consume("(") {
		return p.parseFuncParams(ty)
	}
	if p.consume("[") {
		return p.parseArrayDimensions(ty)
	}
	return ty, nil
}

// parseFuncParams parses a parameter list after "(". Array parameters decay
// to pointers and every parameter type carries its declared name.
func (p *Parser) parseFuncParams(ret *Type) (*Type, error) {
	fn := funcType(ret)
	if p.at("void") && p.peekAt(1).is(")") {
		p.pos += 2
		return fn, nil
	}

	for !p.consume(")") {
		if len(fn.Params) > 0 {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}
		basety, err := p.parseDeclspec(nil)
		if err != nil {
			return nil, err
		}
		ty, name, err := p.parseDeclarator(basety)
		if err != nil {
			return nil, err
		}

		switch ty.Kind {
		case TyArray:
			ty = pointerTo(ty.Base)
		case TyFunc:
			ty = pointerTo(ty)
		default:
			ty = copyType(ty)
		}
		if name.Type == IDENT {
			n := name
			ty.Name = &n
		}
		fn.Params = append(fn.Params, ty)
	}
	return fn, nil
}

// parseArrayDimensions parses "[" N? "]" and any following suffix, which
// binds tighter: int a[2][3] is an array of 2 arrays of 3 ints.
func (p *Parser) parseArrayDimensions(ty *Type) (*Type, error) {
	if p.consume("]") {
		base, err := p.parseTypeSuffix(ty)
		if err != nil {
			return nil, err
		}
		return arrayOf(base, -1), nil
	}

	tok := p.peek()
	n, err := p.constExpr()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, p.fmtError(InvalidType, tok, "array size is negative")
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	base, err := p.parseTypeSuffix(ty)
	if err != nil {
		return nil, err
	}
	return arrayOf(base, int(n)), nil
}

// parseStructUnionDecl parses the part after "struct" or "union".
func (p *Parser) parseStructUnionDecl(kind TypeKind) (*Type, error) {
	var tag Token
	if p.peek().Type == IDENT {
		tag = p.advance()
	}

	if tag.Type == IDENT && !p.at("{") {
		if ty := p.scope.LookupTag(tag.Lexeme); ty != nil {
			if ty.Kind != kind {
				return nil, p.fmtError(InvalidType, tag, "%q defined as wrong kind of tag", tag.Lexeme)
			}
			return ty, nil
		}
		ty := structType()
		ty.Kind = kind
		ty.Size = -1
		p.scope.PushTag(tag.Lexeme, ty)
		return ty, nil
	}

	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	ty := structType()
	ty.Kind = kind
	if err := p.parseMembers(ty); err != nil {
		return nil, err
	}
	if kind == TyStruct {
		layoutStruct(ty)
	} else {
		layoutUnion(ty)
	}

	if tag.Type != IDENT {
		return ty, nil
	}
	// A body for a tag already declared in this scope completes that type
	// in place, so earlier pointers to it see the layout.
	if existing := p.scope.LookupTagInCurrent(tag.Lexeme); existing != nil && existing.Kind == kind {
		*existing = *ty
		return existing, nil
	}
	p.scope.PushTag(tag.Lexeme, ty)
	return ty, nil
}

// parseMembers parses member declarations up to the closing "}".
func (p *Parser) parseMembers(ty *Type) error {
	var members []*Member
	for !p.consume("}") {
		if p.peek().Type == EOF {
			return p.fmtError(SyntaxError, p.peek(), "unterminated member list")
		}
		basety, err := p.parseDeclspec(nil)
		if err != nil {
			return err
		}
		first := true
		for !p.consume(";") {
			if !first {
				if _, err := p.expect(","); err != nil {
					return err
				}
			}
			first = false
			mty, name, err := p.parseDeclarator(basety)
			if err != nil {
				return err
			}
			if name.Type != IDENT {
				return p.fmtError(SyntaxError, p.peek(), "member name omitted")
			}
			members = append(members, &Member{Name: name, Ty: mty, Idx: len(members)})
		}
	}

	if n := len(members); n > 0 {
		last := members[n-1]
		if last.Ty.Kind == TyArray && last.Ty.ArrayLen < 0 {
			last.Ty = arrayOf(last.Ty.Base, 0)
			ty.Flexible = true
		}
	}
	for _, m := range members {
		if m.Ty.Size < 0 {
			return p.fmtError(IncompleteType, m.Name, "member %q has incomplete type", m.Name.Lexeme)
		}
	}
	ty.Members = members
	return nil
}

// parseEnumSpecifier parses the part after "enum". Enumerators are bound
// in the ordinary namespace as constants.
func (p *Parser) parseEnumSpecifier() (*Type, error) {
	ty := enumType()

	var tag Token
	if p.peek().Type == IDENT {
		tag = p.advance()
	}

	if tag.Type == IDENT && !p.at("{") {
		found := p.scope.LookupTag(tag.Lexeme)
		if found == nil {
			return nil, p.fmtError(UndefinedSymbol, tag, "unknown enum type %q", tag.Lexeme)
		}
		if found.Kind != TyEnum {
			return nil, p.fmtError(InvalidType, tag, "%q is not an enum tag", tag.Lexeme)
		}
		return found, nil
	}

	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	var val int64
	first := true
	for !p.consumeEnd() {
		if !first {
			if _, err := p.expect(","); err != nil {
				return nil, err
			}
		}
		first = false

		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.consume("=") {
			if val, err = p.constExpr(); err != nil {
				return nil, err
			}
		}
		vs := p.scope.PushVar(name.Lexeme)
		vs.EnumTy = ty
		vs.EnumVal = val
		val++
	}

	if tag.Type == IDENT {
		p.scope.PushTag(tag.Lexeme, ty)
	}
	return ty, nil
}
