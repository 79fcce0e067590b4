package sym

import (
	"fmt"

	"github.com/jsherman212/libsym/leb128"
)

// opcode is a raw DW_OP_* byte, kept distinct from OpCode (the evaluator's
// own reduced instruction set) because several DW_OP values collapse to the
// same OpCode (DW_OP_reg0..DW_OP_reg31 all become OpReg with a register
// number operand).
type opcode byte

const (
	dwOpAddr         opcode = 0x03
	dwOpDeref        opcode = 0x06
	dwOpConst1u      opcode = 0x08
	dwOpConst1s      opcode = 0x09
	dwOpConst2u      opcode = 0x0a
	dwOpConst2s      opcode = 0x0b
	dwOpConst4u      opcode = 0x0c
	dwOpConst4s      opcode = 0x0d
	dwOpConst8u      opcode = 0x0e
	dwOpConst8s      opcode = 0x0f
	dwOpConstu       opcode = 0x10
	dwOpConsts       opcode = 0x11
	dwOpDup          opcode = 0x12
	dwOpDrop         opcode = 0x13
	dwOpOver         opcode = 0x14
	dwOpSwap         opcode = 0x16
	dwOpAnd          opcode = 0x1a
	dwOpMinus        opcode = 0x1c
	dwOpMul          opcode = 0x1e
	dwOpOr           opcode = 0x21
	dwOpPlus         opcode = 0x22
	dwOpPlusUconst   opcode = 0x23
	dwOpLit0         opcode = 0x30 // lit0..lit31 are 0x30..0x4f
	dwOpReg0         opcode = 0x50 // reg0..reg31 are 0x50..0x6f
	dwOpBreg0        opcode = 0x70 // breg0..breg31 are 0x70..0x8f
	dwOpRegx         opcode = 0x90
	dwOpFbreg        opcode = 0x91
	dwOpBregx        opcode = 0x92
	dwOpPiece        opcode = 0x93
	dwOpDerefSize    opcode = 0x94
	dwOpCallFrameCFA opcode = 0x9c
	dwOpStackValue   opcode = 0x9f
)

// OpCode is the evaluator's reduced instruction set. Every dwOp* byte above
// decodes into one of these.
type OpCode int

const (
	OpAddr OpCode = iota
	OpConst
	OpDup
	OpDrop
	OpOver
	OpSwap
	OpPlus
	OpMinus
	OpMul
	OpAnd
	OpOr
	OpPiece
	OpReg
	OpBreg
	OpFbreg
	OpDeref
	OpStackValue
	OpCallFrameCFA
	OpUnknown
)

// LocOp is one decoded step of a location expression.
type LocOp struct {
	Code    OpCode
	Operand int64 // constant, offset, or deref size depending on Code
	Reg     int   // register number, valid for OpReg/OpBreg
	Raw     byte  // the original DW_OP_* byte, kept for OpUnknown/diagnostics
}

// decodeOps decodes expr, the raw bytes of one DWARF location expression,
// into the evaluator's own instruction list. Operand encodings follow
// DWARF4 §2.5 ("DWARF Expressions").
func decodeOps(expr []byte) []LocOp {
	var ops []LocOp
	i := 0
	for i < len(expr) {
		b := opcode(expr[i])
		i++

		switch {
		case b == dwOpAddr:
			if i+8 > len(expr) {
				return ops
			}
			v := le64(expr[i:])
			i += 8
			ops = append(ops, LocOp{Code: OpAddr, Operand: int64(v)})

		case b == dwOpDeref:
			ops = append(ops, LocOp{Code: OpDeref, Operand: 0})

		case b == dwOpDerefSize:
			if i >= len(expr) {
				return ops
			}
			size := expr[i]
			i++
			ops = append(ops, LocOp{Code: OpDeref, Operand: int64(size)})

		case b == dwOpConstu:
			v, n := leb128.DecodeULEB128(expr[i:])
			i += n
			ops = append(ops, LocOp{Code: OpConst, Operand: int64(v)})

		case b == dwOpConsts:
			v, n := leb128.DecodeSLEB128(expr[i:])
			i += n
			ops = append(ops, LocOp{Code: OpConst, Operand: v})

		case b == dwOpConst1u:
			if i >= len(expr) {
				return ops
			}
			ops = append(ops, LocOp{Code: OpConst, Operand: int64(expr[i])})
			i++

		case b == dwOpConst1s:
			if i >= len(expr) {
				return ops
			}
			ops = append(ops, LocOp{Code: OpConst, Operand: int64(int8(expr[i]))})
			i++

		case b == dwOpConst2u, b == dwOpConst2s:
			if i+2 > len(expr) {
				return ops
			}
			v := int64(le16(expr[i:]))
			if b == dwOpConst2s {
				v = int64(int16(v))
			}
			i += 2
			ops = append(ops, LocOp{Code: OpConst, Operand: v})

		case b == dwOpConst4u, b == dwOpConst4s:
			if i+4 > len(expr) {
				return ops
			}
			v := int64(le32(expr[i:]))
			if b == dwOpConst4s {
				v = int64(int32(v))
			}
			i += 4
			ops = append(ops, LocOp{Code: OpConst, Operand: v})

		case b == dwOpConst8u, b == dwOpConst8s:
			if i+8 > len(expr) {
				return ops
			}
			v := int64(le64(expr[i:]))
			i += 8
			ops = append(ops, LocOp{Code: OpConst, Operand: v})

		case b == dwOpDup:
			ops = append(ops, LocOp{Code: OpDup})
		case b == dwOpDrop:
			ops = append(ops, LocOp{Code: OpDrop})
		case b == dwOpOver:
			ops = append(ops, LocOp{Code: OpOver})
		case b == dwOpSwap:
			ops = append(ops, LocOp{Code: OpSwap})
		case b == dwOpPlus:
			ops = append(ops, LocOp{Code: OpPlus})
		case b == dwOpMinus:
			ops = append(ops, LocOp{Code: OpMinus})
		case b == dwOpMul:
			ops = append(ops, LocOp{Code: OpMul})
		case b == dwOpAnd:
			ops = append(ops, LocOp{Code: OpAnd})
		case b == dwOpOr:
			ops = append(ops, LocOp{Code: OpOr})

		case b == dwOpPlusUconst:
			v, n := leb128.DecodeULEB128(expr[i:])
			i += n
			ops = append(ops, LocOp{Code: OpConst, Operand: int64(v)}, LocOp{Code: OpPlus})

		case b == dwOpPiece:
			size, n := leb128.DecodeULEB128(expr[i:])
			i += n
			ops = append(ops, LocOp{Code: OpPiece, Operand: int64(size)})

		case b >= dwOpLit0 && b <= dwOpLit0+31:
			ops = append(ops, LocOp{Code: OpConst, Operand: int64(b - dwOpLit0)})

		case b >= dwOpReg0 && b <= dwOpReg0+31:
			ops = append(ops, LocOp{Code: OpReg, Reg: int(b - dwOpReg0)})

		case b == dwOpRegx:
			v, n := leb128.DecodeULEB128(expr[i:])
			i += n
			ops = append(ops, LocOp{Code: OpReg, Reg: int(v)})

		case b >= dwOpBreg0 && b <= dwOpBreg0+31:
			off, n := leb128.DecodeSLEB128(expr[i:])
			i += n
			ops = append(ops, LocOp{Code: OpBreg, Reg: int(b - dwOpBreg0), Operand: off})

		case b == dwOpBregx:
			reg, n1 := leb128.DecodeULEB128(expr[i:])
			i += n1
			off, n2 := leb128.DecodeSLEB128(expr[i:])
			i += n2
			ops = append(ops, LocOp{Code: OpBreg, Reg: int(reg), Operand: off})

		case b == dwOpFbreg:
			off, n := leb128.DecodeSLEB128(expr[i:])
			i += n
			ops = append(ops, LocOp{Code: OpFbreg, Operand: off})

		case b == dwOpStackValue:
			ops = append(ops, LocOp{Code: OpStackValue})

		case b == dwOpCallFrameCFA:
			ops = append(ops, LocOp{Code: OpCallFrameCFA})

		default:
			ops = append(ops, LocOp{Code: OpUnknown, Raw: byte(b)})
		}
	}
	return ops
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// aarch64Reg names the DWARF register numbers used by the AArch64 ABI:
// x0-x28 general purpose, x29 frame pointer, x30 link register, x31/sp
// stack pointer (DWARF for AArch64, §4.1, "DWARF Register Names").
func aarch64Reg(n int) string {
	switch {
	case n >= 0 && n <= 28:
		return regName(n)
	case n == 29:
		return "$fp"
	case n == 30:
		return "$lr"
	case n == 31:
		return "$sp"
	}
	return unknownReg(n)
}

func regName(n int) string {
	names := [...]string{
		"$x0", "$x1", "$x2", "$x3", "$x4", "$x5", "$x6", "$x7",
		"$x8", "$x9", "$x10", "$x11", "$x12", "$x13", "$x14", "$x15",
		"$x16", "$x17", "$x18", "$x19", "$x20", "$x21", "$x22", "$x23",
		"$x24", "$x25", "$x26", "$x27", "$x28",
	}
	if n >= 0 && n < len(names) {
		return names[n]
	}
	return unknownReg(n)
}

func unknownReg(n int) string {
	return fmt.Sprintf("$r%d", n)
}
