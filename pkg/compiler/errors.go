package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a compile failure. Every kind is itself an error so
// callers can write errors.Is(err, compiler.NotAnLvalue).
type ErrorKind int

const (
	SyntaxError ErrorKind = iota + 1
	InvalidType
	IncompleteType
	VoidVariable
	StorageClassConflict
	StorageClassNotAllowed
	UndefinedSymbol
	NotAnLvalue
	InvalidOperands
	StrayControlTransfer
	UnsupportedArgumentType
	Unsupported
	InternalConsistency
)

var errorKindNames = [...]string{
	SyntaxError:             "syntax error",
	InvalidType:             "invalid type",
	IncompleteType:          "incomplete type",
	VoidVariable:            "void variable",
	StorageClassConflict:    "storage class conflict",
	StorageClassNotAllowed:  "storage class not allowed",
	UndefinedSymbol:         "undefined symbol",
	NotAnLvalue:             "not an lvalue",
	InvalidOperands:         "invalid operands",
	StrayControlTransfer:    "stray control transfer",
	UnsupportedArgumentType: "unsupported argument type",
	Unsupported:             "unsupported",
	InternalConsistency:     "internal consistency",
}

func (k ErrorKind) String() string {
	if k > 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) Error() string { return k.String() }

// Error is the single failure type raised by the compiler core. Tok is the
// token that precipitated the failure; Snippet is the trimmed source line
// containing it, filled in when the source text is known.
type Error struct {
	Kind    ErrorKind
	Tok     Token
	Msg     string
	Snippet string
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Tok.Line > 0 {
		fmt.Fprintf(&sb, "line %d:%d: ", e.Tok.Line, e.Tok.Col)
	}
	sb.WriteString(e.Msg)
	if e.Snippet != "" {
		fmt.Fprintf(&sb, "\n  |> %s", e.Snippet)
	}
	return sb.String()
}

// Is matches an *Error against its ErrorKind.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func newError(kind ErrorKind, tok Token, format string, args ...any) *Error {
	return &Error{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// withSnippet attaches the offending source line to err if it is a compiler
// error that does not carry one yet.
func withSnippet(err error, lines []string) error {
	var ce *Error
	if !errors.As(err, &ce) || ce.Snippet != "" {
		return err
	}
	idx := ce.Tok.Line - 1
	if idx >= 0 && idx < len(lines) {
		ce.Snippet = strings.TrimSpace(lines[idx])
	}
	return err
}
