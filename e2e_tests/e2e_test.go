package main

import (
	"testing"

	"rvcc/pkg/asm"
	"rvcc/pkg/compiler"
	"rvcc/pkg/cpu"
)

func TestCompilerAndCPU(t *testing.T) {
	source := `
long out;

int fib(int n) {
    if (n == 0) { return 0; }
    if (n == 1) { return 1; }
    return fib(n - 1) + fib(n - 2);
}

int main() {
    int limit = 6;
    int result = fib(limit);
    long *p = &out;
    *p = result;
    return result;
}
`

	tokens, err := compiler.Lex(source)
	if err != nil {
		t.Fatalf("Lexing failed: %v", err)
	}

	prog, err := compiler.Parse(tokens, source)
	if err != nil {
		t.Fatalf("Parsing failed: %v", err)
	}

	assembly, err := compiler.Generate(prog)
	if err != nil {
		t.Fatalf("Code generation failed: %v", err)
	}
	t.Logf("Generated Assembly:\n%s", assembly)

	img, _, err := asm.Assemble(assembly)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}

	vm := cpu.NewCPU()
	if err := vm.Load(img); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ret, err := vm.Run(img.Entry, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// fib(6): 0, 1, 1, 2, 3, 5, 8
	if ret != 8 {
		t.Errorf("Expected a0 to be 8, got %d", ret)
	}

	addr, ok := img.Symbols["out"]
	if !ok {
		t.Fatalf("symbol out not found")
	}
	v, err := vm.Read(addr, 8)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v != 8 {
		t.Errorf("Expected out to be 8, got %d", v)
	}

	top := uint64(len(vm.Memory)) &^ 15
	if vm.Regs[cpu.RegSP] != top {
		t.Errorf("Expected sp to be 0x%X, got 0x%X", top, vm.Regs[cpu.RegSP])
	}
	if vm.Regs[cpu.RegFP] != 0 {
		t.Errorf("Expected fp to be restored to 0, got 0x%X", vm.Regs[cpu.RegFP])
	}
}

func TestGlobalStateAcrossCalls(t *testing.T) {
	source := `
int counter;
int calls[4];

void bump(int i) {
    counter = counter + i;
    calls[i] = counter;
}

int main() {
    for (int i = 0; i < 4; i++)
        bump(i);
    return counter;
}
`
	code, err := compiler.Compile(source)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	img, _, err := asm.Assemble(code)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}
	vm := cpu.NewCPU()
	if err := vm.Load(img); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ret, err := vm.Run(img.Entry, 0)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ret != 6 {
		t.Errorf("Expected 6, got %d", ret)
	}

	want := []uint64{0, 1, 3, 6}
	base := img.Symbols["calls"]
	for i, w := range want {
		v, err := vm.Read(base+uint64(4*i), 4)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if v != w {
			t.Errorf("calls[%d] = %d, want %d", i, v, w)
		}
	}
}
