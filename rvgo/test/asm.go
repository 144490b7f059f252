package test

import (
	"encoding/binary"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

// Instruction encoders, used to build test programs without a toolchain.

func RType(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func R4Type(opcode, rd, funct3, rs1, rs2, fmt, rs3 uint32) uint32 {
	return (rs3 << 27) | (fmt << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func IType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm&0xFFF) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func SType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	immU := uint32(imm & 0xFFF)
	return ((immU >> 5) << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | ((immU & 0x1F) << 7) | opcode
}

func BType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	immU := uint32(imm)
	return (((immU >> 12) & 0x1) << 31) | (((immU >> 5) & 0x3F) << 25) |
		(rs2 << 20) | (rs1 << 15) | (funct3 << 12) |
		(((immU >> 1) & 0xF) << 8) | (((immU >> 11) & 0x1) << 7) | opcode
}

func UType(opcode, rd uint32, imm uint32) uint32 {
	return (imm & 0xFFFFF000) | (rd << 7) | opcode
}

func JType(opcode, rd uint32, imm int32) uint32 {
	immU := uint32(imm)
	return (((immU >> 20) & 0x1) << 31) | (((immU >> 1) & 0x3FF) << 21) |
		(((immU >> 11) & 0x1) << 20) | (((immU >> 12) & 0xFF) << 12) |
		(rd << 7) | opcode
}

// A few frequently used instructions

func ADDI(rd, rs1 uint32, imm int32) uint32 {
	return IType(riscv.OpcodeOpImm, rd, 0, rs1, imm)
}

func ADD(rd, rs1, rs2 uint32) uint32 {
	return RType(riscv.OpcodeOp, rd, 0, rs1, rs2, 0)
}

func LUI(rd uint32, imm uint32) uint32 {
	return UType(riscv.OpcodeLui, rd, imm)
}

func BEQ(rs1, rs2 uint32, imm int32) uint32 {
	return BType(riscv.OpcodeBranch, 0, rs1, rs2, imm)
}

func BNE(rs1, rs2 uint32, imm int32) uint32 {
	return BType(riscv.OpcodeBranch, 1, rs1, rs2, imm)
}

func JAL(rd uint32, imm int32) uint32 {
	return JType(riscv.OpcodeJal, rd, imm)
}

func JALR(rd, rs1 uint32, imm int32) uint32 {
	return IType(riscv.OpcodeJalr, rd, 0, rs1, imm)
}

func ECALL() uint32 {
	return riscv.OpcodeSystem
}

func SD(rs1, rs2 uint32, imm int32) uint32 {
	return SType(riscv.OpcodeStore, 3, rs1, rs2, imm)
}

func LD(rd, rs1 uint32, imm int32) uint32 {
	return IType(riscv.OpcodeLoad, rd, 3, rs1, imm)
}

// Asm accumulates little-endian machine code.
type Asm struct {
	buf []byte
}

func (a *Asm) Emit(insns ...uint32) *Asm {
	for _, insn := range insns {
		a.buf = binary.LittleEndian.AppendUint32(a.buf, insn)
	}
	return a
}

// EmitC appends 16-bit compressed instructions.
func (a *Asm) EmitC(insns ...uint16) *Asm {
	for _, insn := range insns {
		a.buf = binary.LittleEndian.AppendUint16(a.buf, insn)
	}
	return a
}

func (a *Asm) Len() int {
	return len(a.buf)
}

func (a *Asm) Bytes() []byte {
	return a.buf
}
