package disasm

import "fmt"

// Opcode is a single-byte bytecode operation.
type Opcode byte

const (
	OpUnreachable Opcode = iota
	OpLoadConstUndefined
	OpLoadConstUInt8
	OpLoadConstInt
	OpLoadConstDouble
	OpLoadConstString
	OpMov
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpGetGlobal
	OpPutGlobal
	OpCall
	OpJmp
	OpJmpTrue
	OpJmpFalse
	OpRet

	opCount
)

// OperandKind describes how one operand is encoded and rendered.
type OperandKind uint8

const (
	KindReg        OperandKind = iota // 1-byte register index
	KindUInt8                         // 1-byte immediate
	KindImm32                         // 4-byte signed immediate
	KindDouble                        // 8-byte IEEE-754 value
	KindStringID                      // 2-byte string table index
	KindFunctionID                    // 2-byte function table index
	KindAddr                          // 2-byte signed jump offset, relative to next instruction
)

func (k OperandKind) size() int {
	switch k {
	case KindReg, KindUInt8:
		return 1
	case KindStringID, KindFunctionID, KindAddr:
		return 2
	case KindImm32:
		return 4
	case KindDouble:
		return 8
	}
	return 0
}

type opInfo struct {
	name     string
	operands []OperandKind
}

var opTable = [opCount]opInfo{
	OpUnreachable:        {"Unreachable", nil},
	OpLoadConstUndefined: {"LoadConstUndefined", []OperandKind{KindReg}},
	OpLoadConstUInt8:     {"LoadConstUInt8", []OperandKind{KindReg, KindUInt8}},
	OpLoadConstInt:       {"LoadConstInt", []OperandKind{KindReg, KindImm32}},
	OpLoadConstDouble:    {"LoadConstDouble", []OperandKind{KindReg, KindDouble}},
	OpLoadConstString:    {"LoadConstString", []OperandKind{KindReg, KindStringID}},
	OpMov:                {"Mov", []OperandKind{KindReg, KindReg}},
	OpAdd:                {"Add", []OperandKind{KindReg, KindReg, KindReg}},
	OpSub:                {"Sub", []OperandKind{KindReg, KindReg, KindReg}},
	OpMul:                {"Mul", []OperandKind{KindReg, KindReg, KindReg}},
	OpDiv:                {"Div", []OperandKind{KindReg, KindReg, KindReg}},
	OpGetGlobal:          {"GetGlobal", []OperandKind{KindReg, KindStringID}},
	OpPutGlobal:          {"PutGlobal", []OperandKind{KindReg, KindStringID}},
	OpCall:               {"Call", []OperandKind{KindReg, KindFunctionID, KindUInt8}},
	OpJmp:                {"Jmp", []OperandKind{KindAddr}},
	OpJmpTrue:            {"JmpTrue", []OperandKind{KindReg, KindAddr}},
	OpJmpFalse:           {"JmpFalse", []OperandKind{KindReg, KindAddr}},
	OpRet:                {"Ret", []OperandKind{KindReg}},
}

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	if op < opCount {
		return opTable[op].name
	}
	return fmt.Sprintf("Opcode(%d)", byte(op))
}

// Operands returns the operand kinds of the opcode.
func (op Opcode) Operands() []OperandKind {
	if op < opCount {
		return opTable[op].operands
	}
	return nil
}

// Len returns the encoded instruction length in bytes, including the opcode.
func (op Opcode) Len() int {
	n := 1
	for _, k := range op.Operands() {
		n += k.size()
	}
	return n
}

// IsTerminator reports whether the opcode ends a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpJmp, OpJmpTrue, OpJmpFalse, OpRet, OpUnreachable:
		return true
	}
	return false
}
