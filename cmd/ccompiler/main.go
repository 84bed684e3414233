package main

import (
	"flag"
	"fmt"
	"os"

	"rvcc/pkg/compiler"
)

const testSource = `int x = 10;
int y[2] = {20, 30};
int main() { return x + y[1]; }
`

func main() {
	showTokens := flag.Bool("tokens", true, "print tokens")
	showAST := flag.Bool("ast", true, "print globals and function bodies")
	showAsm := flag.Bool("asm", true, "print generated assembly")
	flag.Parse()

	src := testSource
	if flag.NArg() > 0 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			os.Exit(1)
		}
		src = string(data)
	}

	fmt.Printf("Source:\n%s\n", src)

	// Lex
	tokens, err := compiler.Lex(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lex error:", err)
		os.Exit(1)
	}

	if *showTokens {
		fmt.Printf("Tokens (%d)\n", len(tokens))
		for _, tok := range tokens {
			fmt.Println(" ", tok)
		}
		fmt.Println()
	}

	// Parse
	p := compiler.NewParser(tokens, src)
	prog, err := p.ParseProgram()
	if err != nil {
		fmt.Fprintln(os.Stderr, "parse error:", err)
		os.Exit(1)
	}

	if *showAST {
		fmt.Print(p.Scope())
		fmt.Println()

		fmt.Println("Globals")
		for _, obj := range prog.Globals {
			if obj.IsFunction {
				continue
			}
			fmt.Printf("  %s: %s (%d bytes, %d relocations)\n", obj.Name, obj.Ty, obj.Ty.Size, len(obj.Relocs))
		}
		fmt.Println()

		fmt.Println("AST")
		for _, obj := range prog.Globals {
			if !obj.IsFunction || !obj.IsDefinition {
				continue
			}
			fmt.Printf("  %s: %s\n", obj.Name, obj.Ty)
			for _, local := range obj.Locals {
				fmt.Printf("    local %s: %s\n", local.Name, local.Ty)
			}
			fmt.Println("   ", obj.Body)
		}
		fmt.Println()
	}

	// code Generation
	asm, err := compiler.Generate(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "codegen error:", err)
		os.Exit(1)
	}

	if *showAsm {
		fmt.Println("Generated Assembly")
		fmt.Print(asm)
	}
}
