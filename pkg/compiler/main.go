// Package compiler translates a C subset into RV64 assembly.
//
// Pipeline: C source → Lex → Parse (typed AST, scopes, initializers) → Generate → assembly text
//
// The generated code is a stack machine: every expression leaves its value
// in a0 and spills intermediates to the stack.
package compiler
