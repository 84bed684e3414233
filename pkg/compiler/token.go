package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF     TokenType = iota // sentinel: end of input
	IDENT                    // variable / function / typedef / tag name
	KEYWORD                  // reserved word such as "int" or "return"
	PUNCT                    // operator or delimiter, e.g. "+=", "->", "{"
	NUM                      // integer, character or floating literal
	STR                      // string literal "..."
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:     "EOF",
	IDENT:   "IDENT",
	KEYWORD: "KEYWORD",
	PUNCT:   "PUNCT",
	NUM:     "NUM",
	STR:     "STR",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit. The compiler core only ever reads tokens;
// it never rewrites the slice it was handed.
type Token struct {
	Type   TokenType
	Lexeme string // the exact source text that was matched
	Line   int    // 1-based source line
	Col    int    // 1-based column of the first character

	// NUM payload.
	Int       int64
	Float     float64
	IsFloat   bool // literal had a fraction or exponent
	IsFloat32 bool // floating literal with an f/F suffix
	IsLong    bool // integer literal with an l/L suffix

	// STR payload, including the terminating NUL byte.
	Str []byte
}

func (t Token) String() string {
	return fmt.Sprintf("%-8s %-14q  line %d:%d", t.Type, t.Lexeme, t.Line, t.Col)
}

// is reports whether the token's text is exactly s. Identifiers never match
// a keyword or punctuator spelling because the lexer classifies them apart.
func (t Token) is(s string) bool {
	return t.Type != STR && t.Type != EOF && t.Lexeme == s
}
