package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	TextBase       = 0x1000
	DefaultMemSize = 1 << 20

	// HaltAddr is the return address Run installs in ra; returning to it
	// stops the machine.
	HaltAddr = 0

	DefaultMaxSteps = 10_000_000
)

// ErrStepLimit is returned by Run when the program does not finish within
// its step budget.
var ErrStepLimit = errors.New("step limit exceeded")

// Image is an assembled program. Text is not stored in Memory; Text[i]
// lives at TextBase + 4*i. Data is copied to DataBase.
type Image struct {
	Text     []Instruction
	Data     []byte
	DataBase uint64
	Symbols  map[string]uint64
	Entry    uint64
}

// TextEnd is the first address past the last instruction.
func (img *Image) TextEnd() uint64 {
	return TextBase + 4*uint64(len(img.Text))
}

// CPU is an RV64IM subset machine with a flat little-endian memory.
type CPU struct {
	Regs   [32]uint64
	PC     uint64
	Memory []byte
	Halted bool
	Steps  int

	text []Instruction
}

func NewCPU() *CPU {
	return &CPU{Memory: make([]byte, DefaultMemSize)}
}

// Load places an image in memory.
func (c *CPU) Load(img *Image) error {
	end := img.DataBase + uint64(len(img.Data))
	if end > uint64(len(c.Memory)) {
		return fmt.Errorf("image needs %d bytes of memory, have %d", end, len(c.Memory))
	}
	copy(c.Memory[img.DataBase:], img.Data)
	c.text = img.Text
	return nil
}

// Run executes from entry until control returns to HaltAddr and returns
// the value of a0. maxSteps <= 0 selects DefaultMaxSteps.
func (c *CPU) Run(entry uint64, maxSteps int) (int64, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	c.PC = entry
	c.Regs[RegRA] = HaltAddr
	c.Regs[RegSP] = uint64(len(c.Memory)) &^ 15
	c.Halted = false
	c.Steps = 0

	for !c.Halted {
		if c.Steps >= maxSteps {
			return 0, fmt.Errorf("%w after %d instructions (pc=%#x)", ErrStepLimit, c.Steps, c.PC)
		}
		if err := c.Step(); err != nil {
			return 0, err
		}
	}
	return int64(c.Regs[RegA0]), nil
}

func (c *CPU) fetch() (Instruction, error) {
	if c.PC < TextBase || (c.PC-TextBase)%4 != 0 {
		return Instruction{}, fmt.Errorf("pc %#x is not an instruction address", c.PC)
	}
	idx := (c.PC - TextBase) / 4
	if idx >= uint64(len(c.text)) {
		return Instruction{}, fmt.Errorf("pc %#x is past the end of text", c.PC)
	}
	return c.text[idx], nil
}

// Read loads size bytes at addr, zero-extended.
func (c *CPU) Read(addr uint64, size int) (uint64, error) {
	if addr+uint64(size) > uint64(len(c.Memory)) || addr+uint64(size) < addr {
		return 0, fmt.Errorf("load of %d bytes at %#x is out of range", size, addr)
	}
	b := c.Memory[addr:]
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Write stores the low size bytes of val at addr.
func (c *CPU) Write(addr uint64, size int, val uint64) error {
	if addr+uint64(size) > uint64(len(c.Memory)) || addr+uint64(size) < addr {
		return fmt.Errorf("store of %d bytes at %#x is out of range", size, addr)
	}
	b := c.Memory[addr:]
	switch size {
	case 1:
		b[0] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(val))
	default:
		binary.LittleEndian.PutUint64(b, val)
	}
	return nil
}

func sext32(v uint64) uint64 {
	return uint64(int64(int32(v)))
}

func divSigned(a, b int64) int64 {
	switch {
	case b == 0:
		return -1
	case a == math.MinInt64 && b == -1:
		return a
	}
	return a / b
}

func remSigned(a, b int64) int64 {
	switch {
	case b == 0:
		return a
	case a == math.MinInt64 && b == -1:
		return 0
	}
	return a % b
}

// accessSize is the width in bytes of a load or store.
func accessSize(op Op) int {
	switch op {
	case OpLB, OpLBU, OpSB:
		return 1
	case OpLH, OpLHU, OpSH:
		return 2
	case OpLW, OpLWU, OpSW:
		return 4
	}
	return 8
}

func boolReg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.PC == HaltAddr {
		c.Halted = true
		return nil
	}

	in, err := c.fetch()
	if err != nil {
		return err
	}
	c.Steps++

	rs1, rs2 := c.Regs[in.Rs1], c.Regs[in.Rs2]
	imm := uint64(in.Imm)
	next := c.PC + 4
	var rd uint64
	writeRd := true

	switch in.Op {
	case OpNOP:
		writeRd = false
	case OpLI:
		rd = imm

	case OpADD:
		rd = rs1 + rs2
	case OpADDW:
		rd = sext32(rs1 + rs2)
	case OpSUB:
		rd = rs1 - rs2
	case OpSUBW:
		rd = sext32(rs1 - rs2)
	case OpMUL:
		rd = rs1 * rs2
	case OpMULW:
		rd = sext32(rs1 * rs2)
	case OpDIV:
		rd = uint64(divSigned(int64(rs1), int64(rs2)))
	case OpDIVW:
		a, b := int32(rs1), int32(rs2)
		switch {
		case b == 0:
			rd = math.MaxUint64
		case a == math.MinInt32 && b == -1:
			rd = uint64(int64(a))
		default:
			rd = uint64(int64(a / b))
		}
	case OpDIVU:
		if rs2 == 0 {
			rd = math.MaxUint64
		} else {
			rd = rs1 / rs2
		}
	case OpREM:
		rd = uint64(remSigned(int64(rs1), int64(rs2)))
	case OpREMW:
		a, b := int32(rs1), int32(rs2)
		switch {
		case b == 0:
			rd = uint64(int64(a))
		case a == math.MinInt32 && b == -1:
			rd = 0
		default:
			rd = uint64(int64(a % b))
		}
	case OpREMU:
		if rs2 == 0 {
			rd = rs1
		} else {
			rd = rs1 % rs2
		}
	case OpAND:
		rd = rs1 & rs2
	case OpOR:
		rd = rs1 | rs2
	case OpXOR:
		rd = rs1 ^ rs2
	case OpSLL:
		rd = rs1 << (rs2 & 63)
	case OpSLLW:
		rd = sext32(rs1 << (rs2 & 31))
	case OpSRL:
		rd = rs1 >> (rs2 & 63)
	case OpSRLW:
		rd = sext32(uint64(uint32(rs1) >> (rs2 & 31)))
	case OpSRA:
		rd = uint64(int64(rs1) >> (rs2 & 63))
	case OpSRAW:
		rd = uint64(int64(int32(rs1) >> (rs2 & 31)))
	case OpSLT:
		rd = boolReg(int64(rs1) < int64(rs2))
	case OpSLTU:
		rd = boolReg(rs1 < rs2)

	case OpADDI:
		rd = rs1 + imm
	case OpADDIW:
		rd = sext32(rs1 + imm)
	case OpANDI:
		rd = rs1 & imm
	case OpORI:
		rd = rs1 | imm
	case OpXORI:
		rd = rs1 ^ imm
	case OpSLLI:
		rd = rs1 << (imm & 63)
	case OpSRLI:
		rd = rs1 >> (imm & 63)
	case OpSRAI:
		rd = uint64(int64(rs1) >> (imm & 63))
	case OpSLTI:
		rd = boolReg(int64(rs1) < in.Imm)
	case OpSLTIU:
		rd = boolReg(rs1 < imm)

	case OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU:
		v, err := c.Read(rs1+imm, accessSize(in.Op))
		if err != nil {
			return fmt.Errorf("pc %#x: %w", c.PC, err)
		}
		switch in.Op {
		case OpLB:
			v = uint64(int64(int8(v)))
		case OpLH:
			v = uint64(int64(int16(v)))
		case OpLW:
			v = sext32(v)
		}
		rd = v

	case OpSB, OpSH, OpSW, OpSD:
		writeRd = false
		if err := c.Write(rs1+imm, accessSize(in.Op), rs2); err != nil {
			return fmt.Errorf("pc %#x: %w", c.PC, err)
		}

	case OpBEQ, OpBNE, OpBLT, OpBGE, OpBLTU, OpBGEU:
		writeRd = false
		var taken bool
		switch in.Op {
		case OpBEQ:
			taken = rs1 == rs2
		case OpBNE:
			taken = rs1 != rs2
		case OpBLT:
			taken = int64(rs1) < int64(rs2)
		case OpBGE:
			taken = int64(rs1) >= int64(rs2)
		case OpBLTU:
			taken = rs1 < rs2
		case OpBGEU:
			taken = rs1 >= rs2
		}
		if taken {
			next = imm
		}

	case OpJAL:
		rd = next
		next = imm
	case OpJALR:
		rd = next
		next = (rs1 + imm) &^ 1

	case OpEBREAK:
		writeRd = false
		c.Halted = true

	default:
		return fmt.Errorf("pc %#x: unknown instruction %s", c.PC, in.Op)
	}

	if writeRd && in.Rd != RegZero {
		c.Regs[in.Rd] = rd
	}
	c.PC = next
	return nil
}
