package cpu

import "fmt"

// Op identifies a decoded RV64 instruction. Pseudo-instructions are
// expanded by the assembler, except li, which keeps its full 64-bit
// immediate.
type Op uint8

const (
	OpNOP Op = iota
	OpLI

	// Register-register.
	OpADD
	OpADDW
	OpSUB
	OpSUBW
	OpMUL
	OpMULW
	OpDIV
	OpDIVW
	OpDIVU
	OpREM
	OpREMW
	OpREMU
	OpAND
	OpOR
	OpXOR
	OpSLL
	OpSLLW
	OpSRL
	OpSRLW
	OpSRA
	OpSRAW
	OpSLT
	OpSLTU

	// Register-immediate.
	OpADDI
	OpADDIW
	OpANDI
	OpORI
	OpXORI
	OpSLLI
	OpSRLI
	OpSRAI
	OpSLTI
	OpSLTIU

	// Loads and stores; Imm is the offset from Rs1.
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU
	OpSB
	OpSH
	OpSW
	OpSD

	// Control transfer; Imm is the absolute target address except for JALR.
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpJAL
	OpJALR

	OpEBREAK
)

var opNames = [...]string{
	OpNOP: "nop", OpLI: "li",
	OpADD: "add", OpADDW: "addw", OpSUB: "sub", OpSUBW: "subw",
	OpMUL: "mul", OpMULW: "mulw", OpDIV: "div", OpDIVW: "divw", OpDIVU: "divu",
	OpREM: "rem", OpREMW: "remw", OpREMU: "remu",
	OpAND: "and", OpOR: "or", OpXOR: "xor",
	OpSLL: "sll", OpSLLW: "sllw", OpSRL: "srl", OpSRLW: "srlw", OpSRA: "sra", OpSRAW: "sraw",
	OpSLT: "slt", OpSLTU: "sltu",
	OpADDI: "addi", OpADDIW: "addiw", OpANDI: "andi", OpORI: "ori", OpXORI: "xori",
	OpSLLI: "slli", OpSRLI: "srli", OpSRAI: "srai", OpSLTI: "slti", OpSLTIU: "sltiu",
	OpLB: "lb", OpLH: "lh", OpLW: "lw", OpLD: "ld", OpLBU: "lbu", OpLHU: "lhu", OpLWU: "lwu",
	OpSB: "sb", OpSH: "sh", OpSW: "sw", OpSD: "sd",
	OpBEQ: "beq", OpBNE: "bne", OpBLT: "blt", OpBGE: "bge", OpBLTU: "bltu", OpBGEU: "bgeu",
	OpJAL: "jal", OpJALR: "jalr",
	OpEBREAK: "ebreak",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Instruction is one decoded instruction. Line is the assembly source line
// it came from, or 0.
type Instruction struct {
	Op   Op
	Rd   uint8
	Rs1  uint8
	Rs2  uint8
	Imm  int64
	Line int
}

func (in Instruction) String() string {
	r := func(i uint8) string { return RegNames[i] }
	switch {
	case in.Op == OpNOP || in.Op == OpEBREAK:
		return in.Op.String()
	case in.Op == OpLI:
		return fmt.Sprintf("li %s, %d", r(in.Rd), in.Imm)
	case in.Op >= OpADD && in.Op <= OpSLTU:
		return fmt.Sprintf("%s %s, %s, %s", in.Op, r(in.Rd), r(in.Rs1), r(in.Rs2))
	case in.Op >= OpADDI && in.Op <= OpSLTIU:
		return fmt.Sprintf("%s %s, %s, %d", in.Op, r(in.Rd), r(in.Rs1), in.Imm)
	case in.Op >= OpLB && in.Op <= OpLWU:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, r(in.Rd), in.Imm, r(in.Rs1))
	case in.Op >= OpSB && in.Op <= OpSD:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, r(in.Rs2), in.Imm, r(in.Rs1))
	case in.Op >= OpBEQ && in.Op <= OpBGEU:
		return fmt.Sprintf("%s %s, %s, %#x", in.Op, r(in.Rs1), r(in.Rs2), in.Imm)
	case in.Op == OpJAL:
		return fmt.Sprintf("jal %s, %#x", r(in.Rd), in.Imm)
	case in.Op == OpJALR:
		return fmt.Sprintf("jalr %s, %d(%s)", r(in.Rd), in.Imm, r(in.Rs1))
	}
	return in.Op.String()
}

// ABI register numbers used by the assembler and tests.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegFP   = 8
	RegA0   = 10
	RegA1   = 11
)

// RegNames holds the ABI name of every integer register.
var RegNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// LookupReg maps an ABI or numeric (x0..x31) register name to its number.
func LookupReg(name string) (uint8, bool) {
	if name == "s0" {
		return RegFP, true
	}
	for i, n := range RegNames {
		if n == name {
			return uint8(i), true
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "x%d", &n); err == nil && n >= 0 && n < 32 && fmt.Sprintf("x%d", n) == name {
		return uint8(n), true
	}
	return 0, false
}
