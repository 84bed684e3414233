package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// keywords lists every reserved word the parser understands.
var keywords = map[string]bool{
	"void": true, "_Bool": true, "char": true, "short": true, "int": true,
	"long": true, "float": true, "double": true, "struct": true, "union": true,
	"enum": true, "typedef": true, "static": true, "const": true, "volatile": true,
	"if": true, "else": true, "for": true, "while": true, "return": true,
	"goto": true, "break": true, "continue": true, "switch": true, "case": true,
	"default": true, "sizeof": true,
}

// punctuators is ordered longest first so the scanner is greedy.
var punctuators = []string{
	"<<=", ">>=", "...",
	"==", "!=", "<=", ">=", "->", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"&&", "||", "++", "--", "<<", ">>",
}

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
	col  int // current 1-based column
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1, col: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	return l.peekAt(0)
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	return l.peekAt(1)
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// skipLineComment discards everything from the current position to end-of-line.
// The opening "//" must already have been consumed.
func (l *Lexer) skipLineComment() {
	for l.pos < len(l.src) && l.peek() != '\n' {
		l.advance()
	}
}

// skipBlockComment discards everything up to and including the closing "*/".
// The opening "/*" must already have been consumed.
func (l *Lexer) skipBlockComment() error {
	for l.pos < len(l.src) {
		if l.peek() == '*' && l.peek2() == '/' {
			l.advance() // *
			l.advance() // /
			return nil
		}
		l.advance()
	}
	return errors.New("unterminated block comment")
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent(tok Token) Token {
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	tok.Lexeme = string(l.src[start:l.pos])
	tok.Type = IDENT
	if keywords[tok.Lexeme] {
		tok.Type = KEYWORD
	}
	return tok
}

// scanNumber collects an integer or floating literal. Integers may be
// decimal, 0x hex, 0b binary or leading-zero octal, with an optional l/L
// suffix. A '.', 'e' or 'E' in a decimal literal makes it floating.
// The first character must still be at l.peek().
func (l *Lexer) scanNumber(tok Token) (Token, error) {
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' {
			l.advance()
			continue
		}
		if (r == '+' || r == '-') && l.pos > start {
			prev := l.src[l.pos-1]
			isHex := l.pos-start > 1 && (l.src[start+1] == 'x' || l.src[start+1] == 'X')
			if (prev == 'e' || prev == 'E') && !isHex {
				l.advance()
				continue
			}
		}
		break
	}
	text := string(l.src[start:l.pos])
	tok.Type = NUM
	tok.Lexeme = text

	lower := strings.ToLower(text)
	isHex := strings.HasPrefix(lower, "0x")
	if !isHex && strings.ContainsAny(lower, ".e") {
		body := text
		if strings.HasSuffix(lower, "f") {
			tok.IsFloat32 = true
			body = text[:len(text)-1]
		} else if strings.HasSuffix(lower, "l") {
			body = text[:len(text)-1]
		}
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return tok, fmt.Errorf("invalid floating constant %q", text)
		}
		tok.Float = v
		tok.IsFloat = true
		return tok, nil
	}

	body := text
	for strings.HasSuffix(strings.ToLower(body), "l") {
		tok.IsLong = true
		body = body[:len(body)-1]
	}
	base := 10
	digits := body
	switch {
	case isHex:
		base, digits = 16, body[2:]
	case strings.HasPrefix(strings.ToLower(body), "0b"):
		base, digits = 2, body[2:]
	case len(body) > 1 && body[0] == '0':
		base, digits = 8, body[1:]
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return tok, fmt.Errorf("invalid integer constant %q", text)
	}
	tok.Int = int64(v)
	return tok, nil
}

// readEscape decodes one escape sequence; the backslash is already consumed.
func (l *Lexer) readEscape() (byte, error) {
	next := l.advance()
	switch next {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case 'a':
		return 7, nil
	case 'b':
		return 8, nil
	case 'f':
		return 12, nil
	case 'v':
		return 11, nil
	case 'e':
		return 27, nil
	case '\\', '\'', '"', '?':
		return byte(next), nil
	case 'x':
		var v int
		n := 0
		for isHexDigit(l.peek()) {
			v = v*16 + hexValue(l.advance())
			n++
		}
		if n == 0 {
			return 0, errors.New("invalid hex escape sequence")
		}
		return byte(v), nil
	}
	if next >= '0' && next <= '7' {
		v := int(next - '0')
		for i := 0; i < 2 && l.peek() >= '0' && l.peek() <= '7'; i++ {
			v = v*8 + int(l.advance()-'0')
		}
		return byte(v), nil
	}
	return 0, fmt.Errorf("unknown escape sequence \\%c", next)
}

func isHexDigit(r rune) bool {
	return unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func hexValue(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10
	default:
		return int(r-'A') + 10
	}
}

// scanChar collects a character literal 'c'. Character literals are NUM
// tokens whose value is the (signed char) code of the character.
func (l *Lexer) scanChar(tok Token) (Token, error) {
	start := l.pos
	l.advance() // consume opening '

	if l.peek() == '\'' {
		return Token{}, errors.New("empty character literal")
	}

	var val byte
	if l.peek() == '\\' {
		l.advance()
		c, err := l.readEscape()
		if err != nil {
			return Token{}, err
		}
		val = c
	} else {
		val = byte(l.advance())
	}

	if l.peek() != '\'' {
		return Token{}, errors.New("unterminated character literal")
	}
	l.advance() // consume closing '

	tok.Type = NUM
	tok.Lexeme = string(l.src[start:l.pos])
	tok.Int = int64(int8(val))
	return tok, nil
}

// scanString collects a string literal "..." and appends the NUL terminator.
func (l *Lexer) scanString(tok Token) (Token, error) {
	start := l.pos
	l.advance() // consume opening "
	var val []byte

	for l.pos < len(l.src) {
		r := l.peek()
		if r == '"' {
			break
		}
		if r == '\n' {
			return Token{}, errors.New("unterminated string literal")
		}
		if r == '\\' {
			l.advance()
			c, err := l.readEscape()
			if err != nil {
				return Token{}, err
			}
			val = append(val, c)
			continue
		}
		val = append(val, string(r)...)
		l.advance()
	}

	if l.pos >= len(l.src) {
		return Token{}, errors.New("unterminated string literal")
	}
	l.advance() // consume closing "

	tok.Type = STR
	tok.Lexeme = string(l.src[start:l.pos])
	tok.Str = append(val, 0)
	return tok, nil
}

// nextToken skips whitespace/comments and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Line: l.line, Col: l.col}, nil
		}
		if l.peek() == '/' && l.peek2() == '/' {
			l.advance()
			l.advance()
			l.skipLineComment()
			continue
		}
		if l.peek() == '/' && l.peek2() == '*' {
			at := Token{Line: l.line, Col: l.col}
			l.advance()
			l.advance()
			if err := l.skipBlockComment(); err != nil {
				return Token{}, lexError(at, err)
			}
			continue
		}
		break
	}

	ch := l.peek()
	tok := Token{Line: l.line, Col: l.col}

	switch {
	case unicode.IsLetter(ch) || ch == '_':
		return l.scanIdent(tok), nil
	case unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peek2())):
		t, err := l.scanNumber(tok)
		return t, lexError(tok, err)
	case ch == '"':
		t, err := l.scanString(tok)
		return t, lexError(tok, err)
	case ch == '\'':
		t, err := l.scanChar(tok)
		return t, lexError(tok, err)
	}

	for _, p := range punctuators {
		if l.hasPrefix(p) {
			for range p {
				l.advance()
			}
			tok.Type = PUNCT
			tok.Lexeme = p
			return tok, nil
		}
	}

	if strings.ContainsRune("+-*/%&|^~!<>=?:;,.(){}[]", ch) {
		l.advance()
		tok.Type = PUNCT
		tok.Lexeme = string(ch)
		return tok, nil
	}
	return Token{}, newError(SyntaxError, tok, "unexpected character %q", ch)
}

// lexError pins err to the start of the token being scanned.
func lexError(at Token, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: SyntaxError, Tok: at, Msg: err.Error()}
}

func (l *Lexer) hasPrefix(p string) bool {
	for i, r := range p {
		if l.peekAt(i) != r {
			return false
		}
	}
	return true
}

// Lex tokenises src and returns all tokens including the final EOF token.
// The first illegal character, literal or unterminated comment stops it with
// a SyntaxError at that position.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens, nil
		}
	}
}
