// Package asm assembles the RV64 subset emitted by the compiler into a
// cpu.Image.
package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"rvcc/pkg/cpu"
)

type form int

const (
	formR      form = iota // rd, rs1, rs2
	formI                  // rd, rs1, imm
	formShift              // rd, rs1, shamt
	formLoad               // rd, off(rs1)
	formStore              // rs2, off(rs1)
	formBranch             // rs1, rs2, label
)

type opSpec struct {
	op   cpu.Op
	form form
}

var baseOps = map[string]opSpec{
	"add": {cpu.OpADD, formR}, "addw": {cpu.OpADDW, formR},
	"sub": {cpu.OpSUB, formR}, "subw": {cpu.OpSUBW, formR},
	"mul": {cpu.OpMUL, formR}, "mulw": {cpu.OpMULW, formR},
	"div": {cpu.OpDIV, formR}, "divw": {cpu.OpDIVW, formR}, "divu": {cpu.OpDIVU, formR},
	"rem": {cpu.OpREM, formR}, "remw": {cpu.OpREMW, formR}, "remu": {cpu.OpREMU, formR},
	"and": {cpu.OpAND, formR}, "or": {cpu.OpOR, formR}, "xor": {cpu.OpXOR, formR},
	"sll": {cpu.OpSLL, formR}, "sllw": {cpu.OpSLLW, formR},
	"srl": {cpu.OpSRL, formR}, "srlw": {cpu.OpSRLW, formR},
	"sra": {cpu.OpSRA, formR}, "sraw": {cpu.OpSRAW, formR},
	"slt": {cpu.OpSLT, formR}, "sltu": {cpu.OpSLTU, formR},

	"addi": {cpu.OpADDI, formI}, "addiw": {cpu.OpADDIW, formI},
	"andi": {cpu.OpANDI, formI}, "ori": {cpu.OpORI, formI}, "xori": {cpu.OpXORI, formI},
	"slti": {cpu.OpSLTI, formI}, "sltiu": {cpu.OpSLTIU, formI},
	"slli": {cpu.OpSLLI, formShift}, "srli": {cpu.OpSRLI, formShift}, "srai": {cpu.OpSRAI, formShift},

	"lb": {cpu.OpLB, formLoad}, "lh": {cpu.OpLH, formLoad}, "lw": {cpu.OpLW, formLoad},
	"ld": {cpu.OpLD, formLoad}, "lbu": {cpu.OpLBU, formLoad}, "lhu": {cpu.OpLHU, formLoad},
	"lwu": {cpu.OpLWU, formLoad},
	"sb": {cpu.OpSB, formStore}, "sh": {cpu.OpSH, formStore}, "sw": {cpu.OpSW, formStore},
	"sd": {cpu.OpSD, formStore},

	"beq": {cpu.OpBEQ, formBranch}, "bne": {cpu.OpBNE, formBranch},
	"blt": {cpu.OpBLT, formBranch}, "bge": {cpu.OpBGE, formBranch},
	"bltu": {cpu.OpBLTU, formBranch}, "bgeu": {cpu.OpBGEU, formBranch},
}

// pseudoOps lists the pseudo-instructions and how many operands each takes.
var pseudoOps = map[string]int{
	"nop": 0, "ret": 0, "ebreak": 0,
	"li": 2, "la": 2, "mv": 2, "neg": 2, "negw": 2, "not": 2, "seqz": 2, "snez": 2,
	"j": 1, "jr": 1, "call": 1, "tail": 1,
	"beqz": 2, "bnez": 2,
}

// Data directives and the width of each operand.
var dataWidths = map[string]int{
	".byte": 1, ".half": 2, ".short": 2, ".word": 4, ".long": 4, ".quad": 8, ".dword": 8,
}

// Directives that carry no layout information.
var ignoredDirectives = map[string]bool{
	".globl": true, ".global": true, ".local": true, ".type": true, ".size": true,
	".file": true, ".ident": true, ".option": true, ".attribute": true,
}

type section int

const (
	secText section = iota
	secData
)

type labelLoc struct {
	sec    section
	offset uint64
}

type Assembler struct {
	labels map[string]labelLoc
	syms   map[string]uint64

	dataBase uint64
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]labelLoc),
		syms:   make(map[string]uint64),
	}
}

// Assemble builds an image from assembly text. The source map gives the
// line each text address came from.
func Assemble(code string) (*cpu.Image, map[uint64]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*cpu.Image, map[uint64]int, error) {
	lines := strings.Split(code, "\n")
	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, nil, err
		}
		parsed = append(parsed, p)
	}

	textLen, err := a.pass1(parsed)
	if err != nil {
		return nil, nil, err
	}

	a.dataBase = alignUp(cpu.TextBase+4*textLen, 16)
	for name, loc := range a.labels {
		a.syms[name] = a.addr(loc)
	}

	return a.pass2(parsed)
}

func (a *Assembler) addr(loc labelLoc) uint64 {
	if loc.sec == secText {
		return cpu.TextBase + 4*loc.offset
	}
	return a.dataBase + loc.offset
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) / align * align
}

// switchSection handles .text/.data/.bss/.section and reports whether the
// line was one of them.
func switchSection(p parsedLine, cur *section) bool {
	switch p.mnemonic {
	case ".text":
		*cur = secText
	case ".data", ".bss", ".rodata":
		*cur = secData
	case ".section":
		*cur = secData
		if len(p.operands) > 0 && strings.HasPrefix(p.operands[0], ".text") {
			*cur = secText
		}
	default:
		return false
	}
	return true
}

// pass1 binds every label and returns the number of instructions.
func (a *Assembler) pass1(lines []parsedLine) (uint64, error) {
	var textLen, dataLen uint64
	sec := secText

	for _, p := range lines {
		// .align applies before any label on the same line is bound.
		if p.mnemonic == ".align" || p.mnemonic == ".p2align" {
			n, err := alignOperand(p)
			if err != nil {
				return 0, err
			}
			if sec == secData {
				dataLen = alignUp(dataLen, n)
			}
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return 0, fmt.Errorf("duplicate label '%s' on line %d", lbl, p.lineNo)
			}
			if sec == secText {
				a.labels[lbl] = labelLoc{secText, textLen}
			} else {
				a.labels[lbl] = labelLoc{secData, dataLen}
			}
		}

		if p.mnemonic == "" || switchSection(p, &sec) || ignoredDirectives[p.mnemonic] {
			continue
		}

		switch {
		case p.mnemonic == ".align" || p.mnemonic == ".p2align":
		case p.mnemonic == ".zero" || p.mnemonic == ".space":
			if sec != secData {
				return 0, fmt.Errorf("%s outside a data section on line %d", p.mnemonic, p.lineNo)
			}
			if len(p.operands) != 1 {
				return 0, fmt.Errorf("%s expects exactly one operand on line %d", p.mnemonic, p.lineNo)
			}
			n, err := strconv.ParseUint(p.operands[0], 0, 32)
			if err != nil {
				return 0, fmt.Errorf("invalid %s size on line %d: %s", p.mnemonic, p.lineNo, p.operands[0])
			}
			dataLen += n
		case dataWidths[p.mnemonic] > 0:
			if sec != secData {
				return 0, fmt.Errorf("%s outside a data section on line %d", p.mnemonic, p.lineNo)
			}
			dataLen += uint64(dataWidths[p.mnemonic] * len(p.operands))
		case strings.HasPrefix(p.mnemonic, "."):
			return 0, fmt.Errorf("unknown directive on line %d: %s", p.lineNo, p.mnemonic)
		default:
			if _, ok := instructionKnown(p.mnemonic); !ok {
				return 0, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
			}
			if sec != secText {
				return 0, fmt.Errorf("instruction outside .text on line %d: %s", p.lineNo, p.mnemonic)
			}
			textLen++
		}
	}
	return textLen, nil
}

func alignOperand(p parsedLine) (uint64, error) {
	if len(p.operands) != 1 {
		return 0, fmt.Errorf("%s expects exactly one operand on line %d", p.mnemonic, p.lineNo)
	}
	exp, err := strconv.ParseUint(p.operands[0], 0, 8)
	if err != nil || exp > 12 {
		return 0, fmt.Errorf("invalid %s value on line %d: %s", p.mnemonic, p.lineNo, p.operands[0])
	}
	return 1 << exp, nil
}

func (a *Assembler) pass2(lines []parsedLine) (*cpu.Image, map[uint64]int, error) {
	img := &cpu.Image{DataBase: a.dataBase, Symbols: a.syms}
	sourceMap := make(map[uint64]int)
	sec := secText

	for _, p := range lines {
		if p.mnemonic == "" || switchSection(p, &sec) || ignoredDirectives[p.mnemonic] {
			continue
		}
		lineNo := p.lineNo

		switch {
		case p.mnemonic == ".align" || p.mnemonic == ".p2align":
			if sec == secData {
				n, _ := alignOperand(p)
				for uint64(len(img.Data))%n != 0 {
					img.Data = append(img.Data, 0)
				}
			}
			continue

		case p.mnemonic == ".zero" || p.mnemonic == ".space":
			n, _ := strconv.ParseUint(p.operands[0], 0, 32)
			img.Data = append(img.Data, make([]byte, n)...)
			continue

		case dataWidths[p.mnemonic] > 0:
			width := dataWidths[p.mnemonic]
			for _, op := range p.operands {
				v, err := a.parseValue(op, lineNo)
				if err != nil {
					return nil, nil, err
				}
				if width < 8 && (v >= 1<<(8*width) || v < -(1<<(8*width-1))) {
					return nil, nil, fmt.Errorf("value out of range for %s on line %d: %s", p.mnemonic, lineNo, op)
				}
				for i := 0; i < width; i++ {
					img.Data = append(img.Data, byte(uint64(v)>>(8*i)))
				}
			}
			continue
		}

		addr := cpu.TextBase + 4*uint64(len(img.Text))
		in, err := a.encode(p)
		if err != nil {
			return nil, nil, err
		}
		in.Line = lineNo
		sourceMap[addr] = lineNo
		img.Text = append(img.Text, in)
	}

	img.Entry = cpu.TextBase
	if main, ok := a.syms["main"]; ok {
		img.Entry = main
	} else if start, ok := a.syms["_start"]; ok {
		img.Entry = start
	}
	return img, sourceMap, nil
}

func instructionKnown(mnemonic string) (int, bool) {
	if _, ok := baseOps[mnemonic]; ok {
		return 3, true
	}
	n, ok := pseudoOps[mnemonic]
	return n, ok
}

// encode translates one instruction line. Pseudo-instructions expand to a
// single machine instruction each.
func (a *Assembler) encode(p parsedLine) (cpu.Instruction, error) {
	ops := p.operands
	lineNo := p.lineNo
	want, _ := instructionKnown(p.mnemonic)
	if spec, ok := baseOps[p.mnemonic]; ok && (spec.form == formLoad || spec.form == formStore) {
		want = 2
	}
	if len(ops) != want {
		return cpu.Instruction{}, fmt.Errorf("%s expects %d operands on line %d", p.mnemonic, want, lineNo)
	}

	if spec, ok := baseOps[p.mnemonic]; ok {
		return a.encodeBase(spec, ops, lineNo)
	}

	reg := func(i int) (uint8, error) { return parseRegister(ops[i], lineNo) }

	switch p.mnemonic {
	case "nop":
		return cpu.Instruction{Op: cpu.OpNOP}, nil
	case "ebreak":
		return cpu.Instruction{Op: cpu.OpEBREAK}, nil
	case "ret":
		return cpu.Instruction{Op: cpu.OpJALR, Rd: cpu.RegZero, Rs1: cpu.RegRA}, nil

	case "li", "la":
		rd, err := reg(0)
		if err != nil {
			return cpu.Instruction{}, err
		}
		var v int64
		if p.mnemonic == "li" {
			v, err = parseInt(ops[1], lineNo)
		} else {
			v, err = a.parseValue(ops[1], lineNo)
		}
		if err != nil {
			return cpu.Instruction{}, err
		}
		return cpu.Instruction{Op: cpu.OpLI, Rd: rd, Imm: v}, nil

	case "mv", "neg", "negw", "not", "seqz", "snez":
		rd, err := reg(0)
		if err != nil {
			return cpu.Instruction{}, err
		}
		rs, err := reg(1)
		if err != nil {
			return cpu.Instruction{}, err
		}
		switch p.mnemonic {
		case "mv":
			return cpu.Instruction{Op: cpu.OpADDI, Rd: rd, Rs1: rs}, nil
		case "neg":
			return cpu.Instruction{Op: cpu.OpSUB, Rd: rd, Rs1: cpu.RegZero, Rs2: rs}, nil
		case "negw":
			return cpu.Instruction{Op: cpu.OpSUBW, Rd: rd, Rs1: cpu.RegZero, Rs2: rs}, nil
		case "not":
			return cpu.Instruction{Op: cpu.OpXORI, Rd: rd, Rs1: rs, Imm: -1}, nil
		case "seqz":
			return cpu.Instruction{Op: cpu.OpSLTIU, Rd: rd, Rs1: rs, Imm: 1}, nil
		default:
			return cpu.Instruction{Op: cpu.OpSLTU, Rd: rd, Rs1: cpu.RegZero, Rs2: rs}, nil
		}

	case "j", "tail":
		target, err := a.parseTarget(ops[0], lineNo)
		if err != nil {
			return cpu.Instruction{}, err
		}
		return cpu.Instruction{Op: cpu.OpJAL, Rd: cpu.RegZero, Imm: target}, nil

	case "call":
		target, err := a.parseTarget(ops[0], lineNo)
		if err != nil {
			return cpu.Instruction{}, err
		}
		return cpu.Instruction{Op: cpu.OpJAL, Rd: cpu.RegRA, Imm: target}, nil

	case "jr":
		rs, err := reg(0)
		if err != nil {
			return cpu.Instruction{}, err
		}
		return cpu.Instruction{Op: cpu.OpJALR, Rd: cpu.RegZero, Rs1: rs}, nil

	case "beqz", "bnez":
		rs, err := reg(0)
		if err != nil {
			return cpu.Instruction{}, err
		}
		target, err := a.parseTarget(ops[1], lineNo)
		if err != nil {
			return cpu.Instruction{}, err
		}
		op := cpu.OpBEQ
		if p.mnemonic == "bnez" {
			op = cpu.OpBNE
		}
		return cpu.Instruction{Op: op, Rs1: rs, Rs2: cpu.RegZero, Imm: target}, nil
	}
	return cpu.Instruction{}, fmt.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
}

func (a *Assembler) encodeBase(spec opSpec, ops []string, lineNo int) (cpu.Instruction, error) {
	in := cpu.Instruction{Op: spec.op}
	var err error

	switch spec.form {
	case formR:
		if in.Rd, err = parseRegister(ops[0], lineNo); err != nil {
			return in, err
		}
		if in.Rs1, err = parseRegister(ops[1], lineNo); err != nil {
			return in, err
		}
		in.Rs2, err = parseRegister(ops[2], lineNo)
		return in, err

	case formI, formShift:
		if in.Rd, err = parseRegister(ops[0], lineNo); err != nil {
			return in, err
		}
		if in.Rs1, err = parseRegister(ops[1], lineNo); err != nil {
			return in, err
		}
		if in.Imm, err = parseInt(ops[2], lineNo); err != nil {
			return in, err
		}
		if spec.form == formShift {
			if in.Imm < 0 || in.Imm > 63 {
				return in, fmt.Errorf("shift amount out of range on line %d: %s", lineNo, ops[2])
			}
		} else if err := checkImm12(in.Imm, ops[2], lineNo); err != nil {
			return in, err
		}
		return in, nil

	case formLoad, formStore:
		r, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return in, err
		}
		if spec.form == formLoad {
			in.Rd = r
		} else {
			in.Rs2 = r
		}
		in.Imm, in.Rs1, err = parseMemOperand(ops[1], lineNo)
		return in, err

	case formBranch:
		if in.Rs1, err = parseRegister(ops[0], lineNo); err != nil {
			return in, err
		}
		if in.Rs2, err = parseRegister(ops[1], lineNo); err != nil {
			return in, err
		}
		in.Imm, err = a.parseTarget(ops[2], lineNo)
		return in, err
	}
	return in, fmt.Errorf("unhandled instruction form on line %d", lineNo)
}

func checkImm12(v int64, token string, lineNo int) error {
	if v < -2048 || v > 2047 {
		return fmt.Errorf("immediate out of range on line %d: %s", lineNo, token)
	}
	return nil
}

// parseMemOperand splits "off(reg)"; the offset may be omitted.
func parseMemOperand(token string, lineNo int) (int64, uint8, error) {
	open := strings.IndexByte(token, '(')
	if open < 0 || !strings.HasSuffix(token, ")") {
		return 0, 0, fmt.Errorf("invalid memory operand '%s' on line %d", token, lineNo)
	}
	reg, err := parseRegister(token[open+1:len(token)-1], lineNo)
	if err != nil {
		return 0, 0, err
	}
	var off int64
	if s := strings.TrimSpace(token[:open]); s != "" {
		if off, err = parseInt(s, lineNo); err != nil {
			return 0, 0, err
		}
	}
	if err := checkImm12(off, token, lineNo); err != nil {
		return 0, 0, err
	}
	return off, reg, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	for line != "" {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}
		label := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(label, " \t,") {
			break
		}
		if !isIdentifier(label) {
			return p, fmt.Errorf("invalid label '%s' on line %d", label, lineNo)
		}
		p.labels = append(p.labels, label)
		line = strings.TrimSpace(line[colon+1:])
	}
	if line == "" {
		return p, nil
	}

	mnemonic, rest, _ := strings.Cut(line, " ")
	if tab := strings.IndexByte(mnemonic, '\t'); tab >= 0 {
		mnemonic, rest = line[:tab], line[tab+1:]
	}
	p.mnemonic = strings.ToLower(mnemonic)

	rest = strings.TrimSpace(rest)
	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty operand on line %d", lineNo)
			}
			p.operands = append(p.operands, op)
		}
	}
	return p, nil
}

func stripComments(line string) string {
	cut := -1
	for _, marker := range []string{"#", "//"} {
		if i := strings.Index(line, marker); i >= 0 && (cut == -1 || i < cut) {
			cut = i
		}
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseRegister(token string, lineNo int) (uint8, error) {
	if r, ok := cpu.LookupReg(token); ok {
		return r, nil
	}
	return 0, fmt.Errorf("invalid register '%s' on line %d", token, lineNo)
}

func parseInt(token string, lineNo int) (int64, error) {
	if v, err := strconv.ParseInt(token, 0, 64); err == nil {
		return v, nil
	}
	if v, err := strconv.ParseUint(token, 0, 64); err == nil {
		return int64(v), nil
	}
	return 0, fmt.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

// parseValue accepts a number, a symbol, or symbol+N / symbol-N.
func (a *Assembler) parseValue(token string, lineNo int) (int64, error) {
	if v, err := parseInt(token, lineNo); err == nil {
		return v, nil
	}

	name, addend := token, int64(0)
	if i := strings.LastIndexAny(token, "+-"); i > 0 {
		n, err := parseInt(token[i:], lineNo)
		if err != nil {
			return 0, err
		}
		name, addend = token[:i], n
	}
	addr, ok := a.syms[name]
	if !ok {
		if isIdentifier(name) {
			return 0, fmt.Errorf("undefined label '%s' on line %d", name, lineNo)
		}
		return 0, fmt.Errorf("invalid value '%s' on line %d", token, lineNo)
	}
	return int64(addr) + addend, nil
}

// parseTarget resolves a jump or branch target to an absolute address.
func (a *Assembler) parseTarget(token string, lineNo int) (int64, error) {
	v, err := a.parseValue(token, lineNo)
	if err != nil {
		return 0, err
	}
	if v < cpu.TextBase || v >= int64(a.dataBase) {
		return 0, fmt.Errorf("branch target '%s' is not in .text on line %d", token, lineNo)
	}
	return v, nil
}

// isIdentifier accepts symbol names, including compiler-generated local
// labels such as .L.end.3.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' && r != '$' {
			return false
		}
	}
	return true
}
