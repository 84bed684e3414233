package asm

import (
	"reflect"
	"strings"
	"testing"

	"rvcc/pkg/cpu"
)

func TestHelperFunctions(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abc", true},
		{"_abc", true},
		{"abc1", true},
		{".L.end.3", true},
		{".L..12", true},
		{"1abc", false},
		{"", false},
		{"ab-c", false},
	}
	for _, tc := range tests {
		if got := isIdentifier(tc.input); got != tc.want {
			t.Errorf("isIdentifier(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}

	memTests := []struct {
		token   string
		off     int64
		reg     uint8
		wantErr bool
	}{
		{"0(sp)", 0, cpu.RegSP, false},
		{"-24(fp)", -24, cpu.RegFP, false},
		{"(a0)", 0, cpu.RegA0, false},
		{"8(s0)", 8, cpu.RegFP, false},
		{"4096(sp)", 0, 0, true},
		{"8(q9)", 0, 0, true},
		{"sp", 0, 0, true},
	}
	for _, tc := range memTests {
		off, reg, err := parseMemOperand(tc.token, 1)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseMemOperand(%q) error = %v, wantErr %v", tc.token, err, tc.wantErr)
			continue
		}
		if !tc.wantErr && (off != tc.off || reg != tc.reg) {
			t.Errorf("parseMemOperand(%q) = %d, %d; want %d, %d", tc.token, off, reg, tc.off, tc.reg)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    parsedLine
		wantErr bool
	}{
		{
			"li a0, 5",
			parsedLine{lineNo: 1, mnemonic: "li", operands: []string{"a0", "5"}},
			false,
		},
		{
			"  mv a0, a1  # comment",
			parsedLine{lineNo: 1, mnemonic: "mv", operands: []string{"a0", "a1"}},
			false,
		},
		{
			"start: nop",
			parsedLine{lineNo: 1, labels: []string{"start"}, mnemonic: "nop"},
			false,
		},
		{
			"a: b: ret",
			parsedLine{lineNo: 1, labels: []string{"a", "b"}, mnemonic: "ret"},
			false,
		},
		{
			".L.return.main:",
			parsedLine{lineNo: 1, labels: []string{".L.return.main"}},
			false,
		},
		{
			"\tsd\ta0, 0(sp)",
			parsedLine{lineNo: 1, mnemonic: "sd", operands: []string{"a0", "0(sp)"}},
			false,
		},
		{
			"  .type g, @object",
			parsedLine{lineNo: 1, mnemonic: ".type", operands: []string{"g", "@object"}},
			false,
		},
		{"1label: nop", parsedLine{}, true},
		{"add a0, , a1", parsedLine{}, true},
	}

	for _, tc := range tests {
		got, err := parseLine(tc.line, 1)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseLine(%q) error = %v, wantErr %v", tc.line, err, tc.wantErr)
			continue
		}
		if tc.wantErr {
			continue
		}
		if got.mnemonic != tc.want.mnemonic {
			t.Errorf("parseLine(%q) mnemonic = %q, want %q", tc.line, got.mnemonic, tc.want.mnemonic)
		}
		if !reflect.DeepEqual(got.labels, tc.want.labels) && !(len(got.labels) == 0 && len(tc.want.labels) == 0) {
			t.Errorf("parseLine(%q) labels = %v, want %v", tc.line, got.labels, tc.want.labels)
		}
		if !reflect.DeepEqual(got.operands, tc.want.operands) && !(len(got.operands) == 0 && len(tc.want.operands) == 0) {
			t.Errorf("parseLine(%q) operands = %v, want %v", tc.line, got.operands, tc.want.operands)
		}
	}
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []cpu.Instruction
	}{
		{
			"Basic Instructions",
			`
			li a0, 10
			add a0, a0, a1
			ret
			`,
			[]cpu.Instruction{
				{Op: cpu.OpLI, Rd: cpu.RegA0, Imm: 10},
				{Op: cpu.OpADD, Rd: cpu.RegA0, Rs1: cpu.RegA0, Rs2: cpu.RegA1},
				{Op: cpu.OpJALR, Rd: cpu.RegZero, Rs1: cpu.RegRA},
			},
		},
		{
			"Labels and Branches",
			`
			li a0, 5
			loop:
			addi a0, a0, -1
			bnez a0, loop
			j done
			done:
			ret
			`,
			[]cpu.Instruction{
				{Op: cpu.OpLI, Rd: cpu.RegA0, Imm: 5},
				{Op: cpu.OpADDI, Rd: cpu.RegA0, Rs1: cpu.RegA0, Imm: -1},
				{Op: cpu.OpBNE, Rs1: cpu.RegA0, Rs2: cpu.RegZero, Imm: cpu.TextBase + 4},
				{Op: cpu.OpJAL, Rd: cpu.RegZero, Imm: cpu.TextBase + 16},
				{Op: cpu.OpJALR, Rd: cpu.RegZero, Rs1: cpu.RegRA},
			},
		},
		{
			"Pseudo Instructions",
			`
			mv fp, sp
			neg a0, a0
			negw a0, a1
			not a0, a0
			seqz a0, a0
			snez a0, a0
			call f
			f:
			ld a1, 0(sp)
			sb zero, -3(fp)
			`,
			[]cpu.Instruction{
				{Op: cpu.OpADDI, Rd: cpu.RegFP, Rs1: cpu.RegSP},
				{Op: cpu.OpSUB, Rd: cpu.RegA0, Rs1: cpu.RegZero, Rs2: cpu.RegA0},
				{Op: cpu.OpSUBW, Rd: cpu.RegA0, Rs1: cpu.RegZero, Rs2: cpu.RegA1},
				{Op: cpu.OpXORI, Rd: cpu.RegA0, Rs1: cpu.RegA0, Imm: -1},
				{Op: cpu.OpSLTIU, Rd: cpu.RegA0, Rs1: cpu.RegA0, Imm: 1},
				{Op: cpu.OpSLTU, Rd: cpu.RegA0, Rs1: cpu.RegZero, Rs2: cpu.RegA0},
				{Op: cpu.OpJAL, Rd: cpu.RegRA, Imm: cpu.TextBase + 28},
				{Op: cpu.OpLD, Rd: cpu.RegA1, Rs1: cpu.RegSP},
				{Op: cpu.OpSB, Rs1: cpu.RegFP, Rs2: cpu.RegZero, Imm: -3},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, _, err := Assemble(tc.code)
			if err != nil {
				t.Fatalf("Assemble failed: %v", err)
			}
			if len(img.Text) != len(tc.want) {
				t.Fatalf("got %d instructions, want %d", len(img.Text), len(tc.want))
			}
			for i, want := range tc.want {
				got := img.Text[i]
				got.Line = 0
				if got != want {
					t.Errorf("instruction %d = %v, want %v", i, got, want)
				}
			}
		})
	}
}

func TestAssembleData(t *testing.T) {
	code := `
  .text
main:
  ret
  .globl g
  .data
  .type g, @object
  .size g, 3
  .align 0
g:
  .byte 1
  .byte 2
  .byte 255
  .align 3
p:
  .quad g+2
  .quad main
  .bss
  .align 2
z:
  .zero 4
`
	img, _, err := Assemble(code)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	g := img.Symbols["g"]
	if g != img.DataBase {
		t.Errorf("g = %#x, want data base %#x", g, img.DataBase)
	}
	if img.DataBase%16 != 0 || img.DataBase < img.TextEnd() {
		t.Errorf("bad data base %#x (text ends at %#x)", img.DataBase, img.TextEnd())
	}
	if p := img.Symbols["p"]; p != g+8 {
		t.Errorf("p = %#x, want %#x", p, g+8)
	}
	if z := img.Symbols["z"]; z != g+24 {
		t.Errorf("z = %#x, want %#x", z, g+24)
	}
	if len(img.Data) != 28 {
		t.Fatalf("data is %d bytes, want 28", len(img.Data))
	}
	if img.Data[0] != 1 || img.Data[1] != 2 || img.Data[2] != 255 {
		t.Errorf("bytes = % x", img.Data[:3])
	}

	c := cpu.NewCPU()
	if err := c.Load(img); err != nil {
		t.Fatal(err)
	}
	v, _ := c.Read(img.Symbols["p"], 8)
	if v != g+2 {
		t.Errorf(".quad g+2 = %#x, want %#x", v, g+2)
	}
	v, _ = c.Read(img.Symbols["p"]+8, 8)
	if v != cpu.TextBase {
		t.Errorf(".quad main = %#x, want %#x", v, cpu.TextBase)
	}
	if img.Entry != cpu.TextBase {
		t.Errorf("entry = %#x, want main", img.Entry)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"unknown instruction", "frob a0", "unknown instruction"},
		{"unknown directive", ".frob 1", "unknown directive"},
		{"bad register", "li q7, 1", "invalid register"},
		{"undefined label", "j nowhere", "undefined label"},
		{"duplicate label", "x:\nx:\nret", "duplicate label"},
		{"operand count", "add a0, a1", "expects 3 operands"},
		{"immediate range", "addi a0, a0, 5000", "out of range"},
		{"shift range", "slli a0, a0, 64", "out of range"},
		{"byte range", ".data\n.byte 300", "out of range"},
		{"instruction in data", ".data\nret", "outside .text"},
		{"branch into data", "j d\n.data\nd:\n.byte 0", "not in .text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Assemble(tc.code)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err, tc.want)
			}
			if !strings.Contains(err.Error(), "line") {
				t.Errorf("error %q has no line number", err)
			}
		})
	}
}

func TestAssembleAndRun(t *testing.T) {
	code := `
  .globl main
  .text
main:
  addi sp, sp, -16
  sd ra, 8(sp)
  li a0, 6
  call square
  ld ra, 8(sp)
  addi sp, sp, 16
  ret
square:
  mul a0, a0, a0
  ret
`
	img, _, err := Assemble(code)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	c := cpu.NewCPU()
	if err := c.Load(img); err != nil {
		t.Fatal(err)
	}
	got, err := c.Run(img.Entry, 1000)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != 36 {
		t.Errorf("got %d, want 36", got)
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"li a0, 1 # one", "li a0, 1 "},
		{"ret // done", "ret "},
		{"nop", "nop"},
		{"# whole line", ""},
	}
	for _, tc := range tests {
		if got := stripComments(tc.in); got != tc.want {
			t.Errorf("stripComments(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
