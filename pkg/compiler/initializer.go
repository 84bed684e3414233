package compiler

import (
	"encoding/binary"
	"math"
)

// Initializer mirrors the shape of the type it initializes: a scalar leaf
// holds Expr, an array, struct or union holds one child per element or
// member. Flexible marks an array whose length is still to be counted.
type Initializer struct {
	Ty       *Type
	Tok      Token
	Flexible bool
	Expr     Node
	Children []*Initializer
}

// newInitializer builds the empty tree for ty. When flexible is set an
// incomplete array, or the trailing flexible member of a struct, is left
// open so its length can be taken from the initializer.
func newInitializer(ty *Type, flexible bool) *Initializer {
	init := &Initializer{Ty: ty}

	switch ty.Kind {
	case TyArray:
		if flexible && ty.Size < 0 {
			init.Flexible = true
			return init
		}
		init.Children = make([]*Initializer, ty.ArrayLen)
		for i := range init.Children {
			init.Children[i] = newInitializer(ty.Base, false)
		}

	case TyStruct, TyUnion:
		init.Children = make([]*Initializer, len(ty.Members))
		for i, m := range ty.Members {
			if flexible && ty.Flexible && i == len(ty.Members)-1 {
				init.Children[i] = &Initializer{Ty: m.Ty, Flexible: true}
				continue
			}
			init.Children[i] = newInitializer(m.Ty, false)
		}
	}
	return init
}

// skipExcessElement parses one initializer that has no slot and drops it.
func (p *Parser) skipExcessElement() error {
	if p.consume("{") {
		if err := p.skipExcessElement(); err != nil {
			return err
		}
		_, err := p.expect("}")
		return err
	}
	_, err := p.parseAssign()
	return err
}

// countArrayInitElements parses ahead through an element list to learn its
// length, then rewinds. Nothing created while looking ahead survives.
func (p *Parser) countArrayInitElements(ty *Type) (int, error) {
	m := p.mark()
	defer p.reset(m)

	dummy := newInitializer(ty.Base, true)
	n := 0
	for !p.consumeEnd() {
		if n > 0 {
			if _, err := p.expect(","); err != nil {
				return 0, err
			}
		}
		if err := p.parseInitializer2(dummy); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// resizeFlexible replaces a flexible array initializer with a complete one.
func resizeFlexible(init *Initializer, n int) {
	*init = *newInitializer(arrayOf(init.Ty.Base, n), false)
}

// parseArrayInitializer1 parses "{" elem ("," elem)* ","? "}".
func (p *Parser) parseArrayInitializer1(init *Initializer) error {
	if _, err := p.expect("{"); err != nil {
		return err
	}
	if init.Flexible {
		n, err := p.countArrayInitElements(init.Ty)
		if err != nil {
			return err
		}
		resizeFlexible(init, n)
	}

	for i := 0; !p.consumeEnd(); i++ {
		if i > 0 {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}
		var err error
		if i < init.Ty.ArrayLen {
			err = p.parseInitializer2(init.Children[i])
		} else {
			err = p.skipExcessElement()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// parseArrayInitializer2 parses elements without braces, as in the inner
// rows of int a[2][2] = {1, 2, 3, 4}.
func (p *Parser) parseArrayInitializer2(init *Initializer) error {
	if init.Flexible {
		n, err := p.countArrayInitElements(init.Ty)
		if err != nil {
			return err
		}
		resizeFlexible(init, n)
	}

	for i := 0; i < init.Ty.ArrayLen && !p.isEnd(); i++ {
		if i > 0 {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}
		if err := p.parseInitializer2(init.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

// parseStructInitializer1 parses "{" member ("," member)* ","? "}".
func (p *Parser) parseStructInitializer1(init *Initializer) error {
	if _, err := p.expect("{"); err != nil {
		return err
	}
	for i := 0; !p.consumeEnd(); i++ {
		if i > 0 {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}
		var err error
		if i < len(init.Children) {
			err = p.parseInitializer2(init.Children[i])
		} else {
			err = p.skipExcessElement()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// parseStructInitializer2 parses members without braces.
func (p *Parser) parseStructInitializer2(init *Initializer) error {
	for i := 0; i < len(init.Children) && !p.isEnd(); i++ {
		if i > 0 {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}
		if err := p.parseInitializer2(init.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

// parseUnionInitializer initializes the first member only.
func (p *Parser) parseUnionInitializer(init *Initializer) error {
	if len(init.Children) == 0 {
		return p.fmtError(IncompleteType, p.peek(), "initializer for union with no members")
	}
	if p.consume("{") {
		if err := p.parseInitializer2(init.Children[0]); err != nil {
			return err
		}
		p.consume(",")
		_, err := p.expect("}")
		return err
	}
	return p.parseInitializer2(init.Children[0])
}

// parseStringInitializer copies a string literal's bytes, terminator
// included, into a char array, stopping at whichever is shorter.
func (p *Parser) parseStringInitializer(init *Initializer) {
	tok := p.advance()
	if init.Flexible {
		resizeFlexible(init, len(tok.Str))
	}
	n := min(init.Ty.ArrayLen, len(tok.Str))
	for i := 0; i < n; i++ {
		lit := newNum(int64(int8(tok.Str[i])), tok)
		lit.Ty = tyInt
		init.Children[i].Expr = lit
	}
}

// parseInitializer2 fills init from the token stream.
func (p *Parser) parseInitializer2(init *Initializer) error {
	tok := p.peek()
	init.Tok = tok

	switch init.Ty.Kind {
	case TyArray:
		if tok.Type == STR && init.Ty.Base.Kind == TyChar {
			p.parseStringInitializer(init)
			return nil
		}
		if tok.is("{") {
			return p.parseArrayInitializer1(init)
		}
		return p.parseArrayInitializer2(init)

	case TyStruct:
		if tok.is("{") {
			return p.parseStructInitializer1(init)
		}
		// A struct may be initialized from another struct value.
		m := p.mark()
		x, err := p.parseAssign()
		if err != nil {
			return err
		}
		if err := addType(x); err != nil {
			return err
		}
		if x.Type().Kind == TyStruct {
			init.Expr = x
			return nil
		}
		p.reset(m)
		return p.parseStructInitializer2(init)

	case TyUnion:
		return p.parseUnionInitializer(init)
	}

	// Braces around a scalar.
	if tok.is("{") {
		p.advance()
		if err := p.parseInitializer2(init); err != nil {
			return err
		}
		_, err := p.expect("}")
		return err
	}

	x, err := p.parseAssign()
	if err != nil {
		return err
	}
	init.Expr = x
	return nil
}

// parseInitializer builds the initializer for ty and returns it with the
// resolved type. A struct whose flexible member got elements is copied and
// grown; the declared type itself is never modified.
func (p *Parser) parseInitializer(ty *Type) (*Initializer, *Type, error) {
	init := newInitializer(ty, true)
	if err := p.parseInitializer2(init); err != nil {
		return nil, nil, err
	}

	if (ty.Kind == TyStruct || ty.Kind == TyUnion) && ty.Flexible {
		grown := copyType(ty)
		grown.Members = make([]*Member, len(ty.Members))
		for i, m := range ty.Members {
			c := *m
			grown.Members[i] = &c
		}
		last := grown.Members[len(grown.Members)-1]
		last.Ty = init.Children[last.Idx].Ty
		grown.Size += last.Ty.Size
		return init, grown, nil
	}
	return init, init.Ty, nil
}

//  Locals

// initDesg is a path from a leaf back to the variable being initialized.
// Exactly one of idx (with mem nil and v nil), mem or v applies per step.
type initDesg struct {
	next *initDesg
	idx  int
	mem  *Member
	v    *Obj
}

// initDesgExpr builds the lvalue a designator names.
func (p *Parser) initDesgExpr(d *initDesg, tok Token) (Node, error) {
	if d.v != nil {
		return newVarRef(d.v, tok), nil
	}
	base, err := p.initDesgExpr(d.next, tok)
	if err != nil {
		return nil, err
	}
	if d.mem != nil {
		return &MemberExpr{nodeInfo: nodeInfo{Tok: tok}, X: base, Mem: d.mem}, nil
	}
	sum, err := p.newAdd(base, newNum(int64(d.idx), tok), tok)
	if err != nil {
		return nil, err
	}
	return newDeref(sum, tok), nil
}

// createLVarInit turns an initializer tree into a comma chain of
// assignments, one per initialized leaf.
func (p *Parser) createLVarInit(init *Initializer, ty *Type, d *initDesg, tok Token) (Node, error) {
	switch {
	case ty.Kind == TyArray:
		var chain Node = &NullExpr{nodeInfo: nodeInfo{Tok: tok}}
		for i := 0; i < ty.ArrayLen; i++ {
			elem, err := p.createLVarInit(init.Children[i], ty.Base, &initDesg{next: d, idx: i}, tok)
			if err != nil {
				return nil, err
			}
			chain = newComma(chain, elem, tok)
		}
		return chain, nil

	case ty.Kind == TyStruct && init.Expr == nil:
		var chain Node = &NullExpr{nodeInfo: nodeInfo{Tok: tok}}
		for _, m := range ty.Members {
			elem, err := p.createLVarInit(init.Children[m.Idx], m.Ty, &initDesg{next: d, mem: m}, tok)
			if err != nil {
				return nil, err
			}
			chain = newComma(chain, elem, tok)
		}
		return chain, nil

	case ty.Kind == TyUnion:
		m := ty.Members[0]
		return p.createLVarInit(init.Children[0], m.Ty, &initDesg{next: d, mem: m}, tok)
	}

	if init.Expr == nil {
		return &NullExpr{nodeInfo: nodeInfo{Tok: tok}}, nil
	}
	lhs, err := p.initDesgExpr(d, tok)
	if err != nil {
		return nil, err
	}
	return newAssign(lhs, init.Expr, tok), nil
}

// parseLVarInitializer returns "memzero(v), v... = ..." for a local. The
// whole variable is cleared first so elements the list leaves out are zero.
func (p *Parser) parseLVarInitializer(v *Obj, tok Token) (Node, error) {
	init, ty, err := p.parseInitializer(v.Ty)
	if err != nil {
		return nil, err
	}
	v.Ty = ty

	assigns, err := p.createLVarInit(init, v.Ty, &initDesg{v: v}, tok)
	if err != nil {
		return nil, err
	}
	zero := &MemZero{nodeInfo: nodeInfo{Tok: tok}, Var: v}
	return newComma(zero, assigns, tok), nil
}

//  Globals

// parseGVarInitializer evaluates the initializer of a global into its
// static image and relocation list.
func (p *Parser) parseGVarInitializer(v *Obj) error {
	init, ty, err := p.parseInitializer(v.Ty)
	if err != nil {
		return err
	}
	v.Ty = ty
	if ty.Size < 0 {
		return p.fmtError(IncompleteType, v.Tok, "variable %q has incomplete type %s", v.Name, ty)
	}

	buf := make([]byte, ty.Size)
	relocs, err := writeGVarData(nil, init, ty, buf, 0)
	if err != nil {
		return err
	}
	v.InitData = buf
	v.Relocs = relocs
	return nil
}

// writeGVarData writes the leaves of init into buf at offset, appending a
// relocation for every leaf that is an address.
func writeGVarData(relocs []Relocation, init *Initializer, ty *Type, buf []byte, offset int) ([]Relocation, error) {
	var err error
	switch ty.Kind {
	case TyArray:
		for i := 0; i < ty.ArrayLen; i++ {
			if relocs, err = writeGVarData(relocs, init.Children[i], ty.Base, buf, offset+ty.Base.Size*i); err != nil {
				return nil, err
			}
		}
		return relocs, nil

	case TyStruct:
		for _, m := range ty.Members {
			if relocs, err = writeGVarData(relocs, init.Children[m.Idx], m.Ty, buf, offset+m.Offset); err != nil {
				return nil, err
			}
		}
		return relocs, nil

	case TyUnion:
		if len(ty.Members) == 0 {
			return relocs, nil
		}
		return writeGVarData(relocs, init.Children[0], ty.Members[0].Ty, buf, offset)
	}

	if init.Expr == nil {
		return relocs, nil
	}

	switch ty.Kind {
	case TyFloat:
		f, err := evalDouble(init.Expr)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(float32(f)))
		return relocs, nil
	case TyDouble:
		f, err := evalDouble(init.Expr)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint64(buf[offset:], math.Float64bits(f))
		return relocs, nil
	}

	var label string
	val, err := evalLabel(init.Expr, &label)
	if err != nil {
		return nil, err
	}
	if label == "" {
		if ty.Kind == TyBool {
			val = boolInt(val != 0)
		}
		writeBuf(buf[offset:], val, ty.Size)
		return relocs, nil
	}
	if ty.Size != PointerSize {
		return nil, newError(InvalidType, init.Tok, "address constant stored in %d-byte %s", ty.Size, ty)
	}
	return append(relocs, Relocation{Offset: offset, Label: label, Addend: val}), nil
}

// writeBuf stores the low size bytes of val little-endian.
func writeBuf(buf []byte, val int64, size int) {
	switch size {
	case 1:
		buf[0] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(val))
	case 8:
		binary.LittleEndian.PutUint64(buf, uint64(val))
	}
}
