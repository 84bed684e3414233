package compiler

import "strings"

// Compile runs the whole pipeline over one translation unit and returns
// RV64 assembly text.
func Compile(src string) (string, error) {
	prog, err := Frontend(src)
	if err != nil {
		return "", err
	}
	out, err := Generate(prog)
	if err != nil {
		return "", withSnippet(err, strings.Split(src, "\n"))
	}
	return out, nil
}

// Frontend lexes and parses src into a typed Program without generating
// code. Lexical errors are reported as SyntaxError at the offending position.
func Frontend(src string) (*Program, error) {
	tokens, err := Lex(src)
	if err != nil {
		return nil, withSnippet(err, strings.Split(src, "\n"))
	}
	return Parse(tokens, src)
}
