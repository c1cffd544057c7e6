package disasm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Inst is one decoded instruction. Operands are widened to int64; KindDouble
// operands carry the raw IEEE-754 bits.
type Inst struct {
	Op       Opcode
	Operands []int64
	Len      int
}

// Decode decodes the instruction starting at code[pc].
func Decode(code []byte, pc int) (Inst, error) {
	if pc < 0 || pc >= len(code) {
		return Inst{}, fmt.Errorf("decode offset %d out of range", pc)
	}
	op := Opcode(code[pc])
	if op >= opCount {
		return Inst{}, fmt.Errorf("unknown opcode 0x%02x at offset %d", byte(op), pc)
	}
	if pc+op.Len() > len(code) {
		return Inst{}, fmt.Errorf("truncated %s at offset %d", op, pc)
	}

	inst := Inst{Op: op, Len: op.Len()}
	off := pc + 1
	for _, k := range op.Operands() {
		var v int64
		switch k {
		case KindReg, KindUInt8:
			v = int64(code[off])
		case KindStringID, KindFunctionID:
			v = int64(binary.LittleEndian.Uint16(code[off:]))
		case KindAddr:
			v = int64(int16(binary.LittleEndian.Uint16(code[off:])))
		case KindImm32:
			v = int64(int32(binary.LittleEndian.Uint32(code[off:])))
		case KindDouble:
			v = int64(binary.LittleEndian.Uint64(code[off:]))
		}
		inst.Operands = append(inst.Operands, v)
		off += k.size()
	}
	return inst, nil
}

// Target returns the absolute target offset of a jump instruction, relative
// to the start of the function's bytecode.
func (i Inst) Target(pc int) int {
	for n, k := range i.Op.Operands() {
		if k == KindAddr {
			return pc + i.Len + int(i.Operands[n])
		}
	}
	return pc + i.Len
}

// Float value of a KindDouble operand.
func operandDouble(bits int64) float64 {
	return math.Float64frombits(uint64(bits))
}
