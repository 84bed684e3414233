package cpu

import (
	"errors"
	"math"
	"testing"
)

// runProgram loads instructions at TextBase and runs them from the first
// one. Programs finish with ret (jalr zero, 0(ra)).
func runProgram(t *testing.T, data []byte, text ...Instruction) (*CPU, int64) {
	t.Helper()
	img := &Image{Text: text, Data: data, DataBase: 0x8000, Entry: TextBase}
	c := NewCPU()
	if err := c.Load(img); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got, err := c.Run(img.Entry, 1000)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return c, got
}

var ret = Instruction{Op: OpJALR, Rd: RegZero, Rs1: RegRA}

func li(rd uint8, v int64) Instruction {
	return Instruction{Op: OpLI, Rd: rd, Imm: v}
}

func TestALU(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		a, b int64
		want int64
	}{
		{"add", OpADD, 10, 20, 30},
		{"sub", OpSUB, 10, 25, -15},
		{"mul", OpMUL, 6, 7, 42},
		{"div", OpDIV, -7, 2, -3},
		{"rem", OpREM, -7, 2, -1},
		{"div by zero", OpDIV, 5, 0, -1},
		{"rem by zero", OpREM, 5, 0, 5},
		{"div overflow", OpDIV, math.MinInt64, -1, math.MinInt64},
		{"and", OpAND, 0xF0, 0x3C, 0x30},
		{"or", OpOR, 0xF0, 0x0F, 0xFF},
		{"xor", OpXOR, 0xFF, 0x0F, 0xF0},
		{"sll", OpSLL, 1, 40, 1 << 40},
		{"sra", OpSRA, -16, 2, -4},
		{"srl", OpSRL, -1, 60, 0xF},
		{"slt", OpSLT, -1, 1, 1},
		{"sltu", OpSLTU, -1, 1, 0},
		{"addw wraps", OpADDW, math.MaxInt32, 1, math.MinInt32},
		{"mulw", OpMULW, 0x10000, 0x10000, 0},
		{"sllw", OpSLLW, 1, 31, math.MinInt32},
		{"sraw", OpSRAW, -8, 1, -4},
		{"divw", OpDIVW, 100, -3, -33},
		{"remw", OpREMW, 100, -3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := runProgram(t, nil,
				li(RegA0, tt.a),
				li(RegA1, tt.b),
				Instruction{Op: tt.op, Rd: RegA0, Rs1: RegA0, Rs2: RegA1},
				ret,
			)
			if got != tt.want {
				t.Errorf("%s(%d, %d) = %d, want %d", tt.op, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestImmediateOps(t *testing.T) {
	tests := []struct {
		name string
		in   Instruction
		a    int64
		want int64
	}{
		{"addi", Instruction{Op: OpADDI, Imm: -5}, 3, -2},
		{"addiw sign-extends", Instruction{Op: OpADDIW}, 0xFFFFFFFF, -1},
		{"xori not", Instruction{Op: OpXORI, Imm: -1}, 0, -1},
		{"seqz", Instruction{Op: OpSLTIU, Imm: 1}, 0, 1},
		{"andi", Instruction{Op: OpANDI, Imm: 0xff}, 0x1234, 0x34},
		{"slli srai narrows", Instruction{Op: OpSRAI, Imm: 56}, math.MinInt64, -128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.Rd, in.Rs1 = RegA0, RegA0
			_, got := runProgram(t, nil, li(RegA0, tt.a), in, ret)
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadStore(t *testing.T) {
	c, got := runProgram(t, []byte{0x80, 0xff, 0, 0},
		li(5, 0x8000),
		Instruction{Op: OpLB, Rd: RegA0, Rs1: 5},
		Instruction{Op: OpLBU, Rd: RegA1, Rs1: 5},
		Instruction{Op: OpSD, Rs1: 5, Rs2: RegA1, Imm: 8},
		ret,
	)
	if got != -128 {
		t.Errorf("lb: got %d, want -128", got)
	}
	if c.Regs[RegA1] != 0x80 {
		t.Errorf("lbu: got %#x, want 0x80", c.Regs[RegA1])
	}
	v, err := c.Read(0x8008, 8)
	if err != nil || v != 0x80 {
		t.Errorf("sd: got %#x (%v), want 0x80", v, err)
	}
}

func TestBranchesAndCalls(t *testing.T) {
	// a0 = 0; loop: a0 += 1; if a0 != 5 goto loop; call f; ret
	// f: a0 *= 2; ret
	_, got := runProgram(t, nil,
		li(RegA0, 0),                                              // 0x1000
		li(5, 5),                                                  // 0x1004
		Instruction{Op: OpADDI, Rd: RegA0, Rs1: RegA0, Imm: 1},    // 0x1008
		Instruction{Op: OpBNE, Rs1: RegA0, Rs2: 5, Imm: 0x1008},   // 0x100c
		Instruction{Op: OpADDI, Rd: 9, Rs1: RegRA},                // 0x1010 save ra in s1
		Instruction{Op: OpJAL, Rd: RegRA, Imm: 0x1020},            // 0x1014
		Instruction{Op: OpADDI, Rd: RegRA, Rs1: 9},                // 0x1018
		ret,                                                       // 0x101c
		Instruction{Op: OpADD, Rd: RegA0, Rs1: RegA0, Rs2: RegA0}, // 0x1020
		ret,                                                       // 0x1024
	)
	if got != 10 {
		t.Errorf("got %d, want 10", got)
	}
}

func TestZeroRegisterIsHardwired(t *testing.T) {
	c, _ := runProgram(t, nil, li(RegZero, 99), ret)
	if c.Regs[RegZero] != 0 {
		t.Errorf("zero register = %d", c.Regs[RegZero])
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("step limit", func(t *testing.T) {
		c := NewCPU()
		loop := Instruction{Op: OpJAL, Rd: RegZero, Imm: TextBase}
		if err := c.Load(&Image{Text: []Instruction{loop}}); err != nil {
			t.Fatal(err)
		}
		_, err := c.Run(TextBase, 100)
		if !errors.Is(err, ErrStepLimit) {
			t.Fatalf("expected ErrStepLimit, got %v", err)
		}
	})

	t.Run("out of range load", func(t *testing.T) {
		c := NewCPU()
		img := &Image{Text: []Instruction{
			li(5, -8),
			{Op: OpLD, Rd: RegA0, Rs1: 5},
			ret,
		}}
		if err := c.Load(img); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Run(TextBase, 100); err == nil {
			t.Fatal("expected an error for an out of range load")
		}
	})

	t.Run("fall off text", func(t *testing.T) {
		c := NewCPU()
		if err := c.Load(&Image{Text: []Instruction{{Op: OpNOP}}}); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Run(TextBase, 100); err == nil {
			t.Fatal("expected an error when pc leaves text")
		}
	})

	t.Run("image too large", func(t *testing.T) {
		c := NewCPU()
		img := &Image{Data: make([]byte, 16), DataBase: DefaultMemSize - 8}
		if err := c.Load(img); err == nil {
			t.Fatal("expected an error for data past the end of memory")
		}
	})
}

func TestLookupReg(t *testing.T) {
	tests := []struct {
		name string
		want uint8
		ok   bool
	}{
		{"zero", 0, true},
		{"fp", 8, true},
		{"s0", 8, true},
		{"a0", 10, true},
		{"t6", 31, true},
		{"x17", 17, true},
		{"x32", 0, false},
		{"x01", 0, false},
		{"r1", 0, false},
	}
	for _, tt := range tests {
		got, ok := LookupReg(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LookupReg(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
