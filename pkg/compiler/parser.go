package compiler

import (
	"fmt"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds a
// typed AST plus the program's global objects.
//
// Grammar:
//
//	program        = (typedef | functionDef | globalVar)*
//	functionDef    = declspec declarator ("{" compoundStmt | ";")
//	declspec       = ("void" | "_Bool" | "char" | "short" | "int" | "long"
//	                 | "float" | "double" | "typedef" | "static" | "const"
//	                 | "volatile" | structDecl | unionDecl | enumSpecifier
//	                 | typedefName)+
//	declarator     = "*"* ("(" declarator ")" | ident?) typeSuffix
//	typeSuffix     = "(" funcParams | "[" arrayDimensions | ε
//	compoundStmt   = (typedef | declaration | stmt)* "}"
//	stmt           = "return" expr? ";" | "if" ... | "switch" ... | "case" ... | "default" ...
//	               | "for" ... | "while" ... | "goto" ident ";" | "break" ";"
//	               | "continue" ";" | ident ":" stmt | "{" compoundStmt | exprStmt
//	expr           = assign ("," expr)?
//	assign         = conditional (assignOp assign)?
//	conditional    = logOr ("?" expr ":" conditional)?
//	logOr          = logAnd ("||" logAnd)*
//	logAnd         = bitOr ("&&" bitOr)*
//	bitOr          = bitXor ("|" bitXor)*
//	bitXor         = bitAnd ("^" bitAnd)*
//	bitAnd         = equality ("&" equality)*
//	equality       = relational ("==" relational | "!=" relational)*
//	relational     = shift ("<" shift | "<=" shift | ">" shift | ">=" shift)*
//	shift          = add ("<<" add | ">>" add)*
//	add            = mul ("+" mul | "-" mul)*
//	mul            = cast ("*" cast | "/" cast | "%" cast)*
//	cast           = "(" typeName ")" cast | unary
//	unary          = ("+" | "-" | "*" | "&" | "!" | "~") cast | ("++" | "--") unary | postfix
//	postfix        = primary ("[" expr "]" | "." ident | "->" ident | "++" | "--")*
//	primary        = "(" "{" stmt+ "}" ")" | "(" expr ")" | "sizeof" "(" typeName ")"
//	               | "sizeof" unary | ident funcArgs? | str | num
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string

	scope   *Scope
	globals []*Obj

	// Per-function state, reset by parseFunction.
	curFn  *Obj
	locals []*Obj
	gotos  []*GotoStmt
	labels []*LabelStmt

	// Innermost jump targets; saved and restored around loops and switches.
	brkLabel  string
	contLabel string
	curSwitch *SwitchStmt

	uniqueID int
}

// varAttr collects storage-class keywords seen by parseDeclspec.
type varAttr struct {
	isTypedef bool
	isStatic  bool
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{
		tokens:      tokens,
		sourceLines: strings.Split(rawSource, "\n"),
		scope:       NewScope(),
	}
}

// fmtError builds a compiler error of the given kind and attaches the
// source line where tok appears.
func (p *Parser) fmtError(kind ErrorKind, tok Token, format string, args ...any) error {
	return withSnippet(newError(kind, tok, format, args...), p.sourceLines)
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	return p.peekAt(0)
}

// peekAt returns the token at the given offset from the current position.
func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		if len(p.tokens) > 0 {
			last := p.tokens[len(p.tokens)-1]
			return Token{Type: EOF, Line: last.Line, Col: last.Col}
		}
		return Token{Type: EOF}
	}
	return p.tokens[p.pos+offset]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// at reports whether the current token is the keyword or punctuator s.
func (p *Parser) at(s string) bool {
	return p.peek().is(s)
}

// consume advances past s if it is the current token.
func (p *Parser) consume(s string) bool {
	if p.at(s) {
		p.advance()
		return true
	}
	return false
}

// expect consumes the current token if it is s, otherwise returns an error.
func (p *Parser) expect(s string) (Token, error) {
	tok := p.peek()
	if !tok.is(s) {
		return tok, p.fmtError(SyntaxError, tok, "expected %q, got %s", s, describe(tok))
	}
	return p.advance(), nil
}

// expectIdent consumes an identifier.
func (p *Parser) expectIdent() (Token, error) {
	tok := p.peek()
	if tok.Type != IDENT {
		return tok, p.fmtError(SyntaxError, tok, "expected an identifier, got %s", describe(tok))
	}
	return p.advance(), nil
}

// isEnd reports whether the next tokens close a brace list: "}" or ",}".
func (p *Parser) isEnd() bool {
	return p.at("}") || (p.at(",") && p.peekAt(1).is("}"))
}

// consumeEnd consumes "}" or ",}".
func (p *Parser) consumeEnd() bool {
	if p.at("}") {
		p.advance()
		return true
	}
	if p.at(",") && p.peekAt(1).is("}") {
		p.pos += 2
		return true
	}
	return false
}

func describe(tok Token) string {
	if tok.Type == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", tok.Type, tok.Lexeme)
}

// newUniqueName mints a label or anonymous symbol name. The counter is
// shared by the whole translation unit.
func (p *Parser) newUniqueName() string {
	name := fmt.Sprintf(".L..%d", p.uniqueID)
	p.uniqueID++
	return name
}

// pushJumpTargets installs new break/continue targets and returns a func
// that restores the enclosing ones.
func (p *Parser) pushJumpTargets(brk, cont string) func() {
	prevBrk, prevCont := p.brkLabel, p.contLabel
	p.brkLabel, p.contLabel = brk, cont
	return func() {
		p.brkLabel, p.contLabel = prevBrk, prevCont
	}
}

//  Object creation

func (p *Parser) newLVar(name string, ty *Type, tok Token) *Obj {
	v := &Obj{Name: name, Ty: ty, Tok: tok, IsLocal: true}
	p.scope.PushVar(name).Var = v
	p.locals = append(p.locals, v)
	return v
}

func (p *Parser) newGVar(name string, ty *Type, tok Token) *Obj {
	v := &Obj{Name: name, Ty: ty, Tok: tok, IsDefinition: true}
	p.scope.PushVar(name).Var = v
	p.globals = append(p.globals, v)
	return v
}

// newTempLVar adds a compiler temporary to the current function. It is not
// visible to name lookup.
func (p *Parser) newTempLVar(ty *Type, tok Token) *Obj {
	v := &Obj{Name: "", Ty: ty, Tok: tok, IsLocal: true}
	p.locals = append(p.locals, v)
	return v
}

// newAnonGVar creates a file-local global with a generated name, used for
// string literals and block-scope statics.
func (p *Parser) newAnonGVar(ty *Type, tok Token) *Obj {
	v := &Obj{Name: p.newUniqueName(), Ty: ty, Tok: tok, IsStatic: true, IsDefinition: true}
	p.globals = append(p.globals, v)
	return v
}

func (p *Parser) newStringLiteral(tok Token) *Obj {
	v := p.newAnonGVar(arrayOf(tyChar, len(tok.Str)), tok)
	v.InitData = append([]byte(nil), tok.Str...)
	return v
}

// snapshot and restore bracket speculative parses so that objects, gotos
// and labels created while parsing ahead are discarded.
type parserMark struct {
	pos     int
	globals int
	locals  int
	gotos   int
	labels  int
}

func (p *Parser) mark() parserMark {
	return parserMark{
		pos:     p.pos,
		globals: len(p.globals),
		locals:  len(p.locals),
		gotos:   len(p.gotos),
		labels:  len(p.labels),
	}
}

func (p *Parser) reset(m parserMark) {
	p.pos = m.pos
	p.discard(m)
}

// discard drops everything recorded since m but keeps the current position.
// Used after parsing an operand that is typed but never emitted.
func (p *Parser) discard(m parserMark) {
	p.globals = p.globals[:m.globals]
	p.locals = p.locals[:m.locals]
	p.gotos = p.gotos[:m.gotos]
	p.labels = p.labels[:m.labels]
}

//  Top level

// ParseProgram parses the whole token stream.
func (p *Parser) ParseProgram() (*Program, error) {
	for p.peek().Type != EOF {
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

		isFunc, err := p.isFunction()
		if err != nil {
			return nil, err
		}
		if isFunc {
			if err := p.parseFunction(basety, attr); err != nil {
				return nil, err
			}
			continue
		}

		if err := p.parseGlobalVariable(basety, attr); err != nil {
			return nil, err
		}
	}
	return &Program{Globals: p.globals}, nil
}

// isFunction looks ahead through one declarator without consuming it.
func (p *Parser) isFunction() (bool, error) {
	if p.at(";") {
		return false, nil
	}
	m := p.mark()
	defer p.reset(m)
	ty, _, err := p.parseDeclarator(tyInt)
	if err != nil {
		return false, err
	}
	return ty.Kind == TyFunc, nil
}

func (p *Parser) parseTypedef(basety *Type) error {
	first := true
	for !p.consume(";") {
		if !first {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}
		first = false

		ty, name, err := p.parseDeclarator(basety)
		if err != nil {
			return err
		}
		if name.Type != IDENT {
			return p.fmtError(SyntaxError, p.peek(), "typedef name omitted")
		}
		p.scope.PushVar(name.Lexeme).Typedef = ty
	}
	return nil
}

func (p *Parser) parseFunction(basety *Type, attr *varAttr) error {
	ty, name, err := p.parseDeclarator(basety)
	if err != nil {
		return err
	}
	if name.Type != IDENT {
		return p.fmtError(SyntaxError, p.peek(), "function name omitted")
	}

	fn := p.newGVar(name.Lexeme, ty, name)
	fn.IsFunction = true
	fn.IsStatic = attr.isStatic
	fn.IsDefinition = !p.consume(";")
	if !fn.IsDefinition {
		return nil
	}

	p.curFn = fn
	p.locals = nil
	p.gotos, p.labels = nil, nil
	depth := p.scope.Depth()

	p.scope.EnterScope()
	for _, param := range ty.Params {
		if param.Name == nil {
			return p.fmtError(SyntaxError, name, "parameter name omitted in definition of %q", fn.Name)
		}
		p.newLVar(param.Name.Lexeme, param, *param.Name)
	}
	fn.Params = append([]*Obj(nil), p.locals...)

	lbrace, err := p.expect("{")
	if err != nil {
		return err
	}
	body, err := p.parseCompoundStmt(lbrace)
	if err != nil {
		return err
	}
	p.scope.LeaveScope()
	if p.scope.Depth() != depth {
		return newError(InternalConsistency, name, "scope depth %d after %q, want %d", p.scope.Depth(), fn.Name, depth)
	}

	fn.Body = body
	fn.Locals = p.locals
	if err := p.resolveGotoLabels(); err != nil {
		return err
	}

	p.curFn = nil
	p.locals = nil
	return nil
}

// resolveGotoLabels binds every goto in the finished function to the unique
// name of the label it names.
func (p *Parser) resolveGotoLabels() error {
	for _, g := range p.gotos {
		for _, l := range p.labels {
			if l.Label == g.Label {
				g.Unique = l.Unique
				break
			}
		}
		if g.Unique == "" {
			return p.fmtError(StrayControlTransfer, g.Tok, "use of undeclared label %q", g.Label)
		}
	}
	p.gotos, p.labels = nil, nil
	return nil
}

func (p *Parser) parseGlobalVariable(basety *Type, attr *varAttr) error {
	first := true
	for !p.consume(";") {
		if !first {
			if _, err := p.expect(","); err != nil {
				return err
			}
		}
		first = false

		ty, name, err := p.parseDeclarator(basety)
		if err != nil {
			return err
		}
		if name.Type != IDENT {
			return p.fmtError(SyntaxError, p.peek(), "variable name omitted")
		}
		if ty.Kind == TyVoid {
			return p.fmtError(VoidVariable, name, "variable %q declared void", name.Lexeme)
		}

		v := p.newGVar(name.Lexeme, ty, name)
		v.IsStatic = attr.isStatic
		if p.consume("=") {
			if err := p.parseGVarInitializer(v); err != nil {
				return err
			}
		}
		if v.Ty.Size < 0 {
			return p.fmtError(IncompleteType, name, "variable %q has incomplete type %s", name.Lexeme, v.Ty)
		}
	}
	return nil
}

// Scope exposes the parser's scope stack. After ParseProgram only file
// scope remains.
func (p *Parser) Scope() *Scope {
	return p.scope
}

// Parse builds the Program for one translation unit.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	p := NewParser(tokens, rawSource)
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, withSnippet(err, p.sourceLines)
	}
	return prog, nil
}
