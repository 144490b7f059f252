package interp

import "github.com/ethereum-optimism/rvemu/rvgo/riscv"

// signExtend treats the low n bits of v as a two's complement number.
func signExtend(v uint32, n uint) int64 {
	shift := 64 - n
	return int64(uint64(v)<<shift) >> shift
}

// compressed register fields address x8..x15
func cReg(v uint16) uint8 {
	return 8 + uint8(v&0x7)
}

func cImm6(x uint16) uint32 {
	return uint32((x>>7)&0x20) | uint32((x>>2)&0x1F)
}

func cImmJ(x uint16) int64 {
	v := uint32(x)
	imm := ((v >> 1) & 0x800) | ((v >> 7) & 0x10) | ((v >> 1) & 0x300) | ((v << 2) & 0x400) |
		((v >> 1) & 0x40) | ((v << 1) & 0x80) | ((v >> 2) & 0xE) | ((v << 3) & 0x20)
	return signExtend(imm, 12)
}

func cImmB(x uint16) int64 {
	v := uint32(x)
	imm := ((v >> 4) & 0x100) | ((v >> 7) & 0x18) | ((v << 1) & 0xC0) | ((v >> 2) & 0x6) | ((v << 3) & 0x20)
	return signExtend(imm, 9)
}

// decodeCompressed expands a 16-bit instruction into the record of its 32-bit equivalent.
func decodeCompressed(x uint16, in *Insn) error {
	raw := uint32(x)
	funct3 := x >> 13
	switch x & 3 {
	case 0:
		rdp := cReg(x >> 2)
		rs1p := cReg(x >> 7)
		wordOff := int64(((x >> 7) & 0x38) | ((x >> 4) & 0x4) | ((x << 1) & 0x40))
		dwordOff := int64(((x >> 7) & 0x38) | ((x << 1) & 0xC0))
		switch funct3 {
		case 0: // C.ADDI4SPN
			imm := int64(((x >> 7) & 0x30) | ((x >> 1) & 0x3C0) | ((x >> 4) & 0x4) | ((x >> 2) & 0x8))
			if imm == 0 {
				return illegal(raw)
			}
			*in = Insn{Op: OpADDI, Rd: rdp, Rs1: riscv.RegSP, Imm: imm, Rvc: true}
		case 1:
			*in = Insn{Op: OpFLD, Rd: rdp, Rs1: rs1p, Imm: dwordOff, Rvc: true}
		case 2:
			*in = Insn{Op: OpLW, Rd: rdp, Rs1: rs1p, Imm: wordOff, Rvc: true}
		case 3:
			*in = Insn{Op: OpLD, Rd: rdp, Rs1: rs1p, Imm: dwordOff, Rvc: true}
		case 5:
			*in = Insn{Op: OpFSD, Rs1: rs1p, Rs2: rdp, Imm: dwordOff, Rvc: true}
		case 6:
			*in = Insn{Op: OpSW, Rs1: rs1p, Rs2: rdp, Imm: wordOff, Rvc: true}
		case 7:
			*in = Insn{Op: OpSD, Rs1: rs1p, Rs2: rdp, Imm: dwordOff, Rvc: true}
		default:
			return illegal(raw)
		}
	case 1:
		rd := uint8((x >> 7) & 0x1F)
		imm6 := signExtend(cImm6(x), 6)
		switch funct3 {
		case 0: // C.ADDI, C.NOP when rd is zero
			*in = Insn{Op: OpADDI, Rd: rd, Rs1: rd, Imm: imm6, Rvc: true}
		case 1:
			if rd == 0 {
				return illegal(raw)
			}
			*in = Insn{Op: OpADDIW, Rd: rd, Rs1: rd, Imm: imm6, Rvc: true}
		case 2: // C.LI
			*in = Insn{Op: OpADDI, Rd: rd, Rs1: riscv.RegZero, Imm: imm6, Rvc: true}
		case 3:
			if rd == riscv.RegSP { // C.ADDI16SP
				v := uint32(x)
				imm := ((v >> 3) & 0x200) | ((v >> 2) & 0x10) | ((v << 1) & 0x40) | ((v << 4) & 0x180) | ((v << 3) & 0x20)
				if imm == 0 {
					return illegal(raw)
				}
				*in = Insn{Op: OpADDI, Rd: rd, Rs1: rd, Imm: signExtend(imm, 10), Rvc: true}
				break
			}
			if imm6 == 0 {
				return illegal(raw)
			}
			*in = Insn{Op: OpLUI, Rd: rd, Imm: imm6 << 12, Rvc: true}
		case 4:
			rdp := cReg(x >> 7)
			switch (x >> 10) & 3 {
			case 0:
				*in = Insn{Op: OpSRLI, Rd: rdp, Rs1: rdp, Imm: int64(cImm6(x)), Rvc: true}
			case 1:
				*in = Insn{Op: OpSRAI, Rd: rdp, Rs1: rdp, Imm: int64(cImm6(x)), Rvc: true}
			case 2:
				*in = Insn{Op: OpANDI, Rd: rdp, Rs1: rdp, Imm: imm6, Rvc: true}
			case 3:
				var op Op
				sel := (x >> 5) & 3
				if x&0x1000 == 0 {
					op = [4]Op{OpSUB, OpXOR, OpOR, OpAND}[sel]
				} else {
					switch sel {
					case 0:
						op = OpSUBW
					case 1:
						op = OpADDW
					default:
						return illegal(raw)
					}
				}
				*in = Insn{Op: op, Rd: rdp, Rs1: rdp, Rs2: cReg(x >> 2), Rvc: true}
			}
		case 5: // C.J
			*in = Insn{Op: OpJAL, Rd: riscv.RegZero, Imm: cImmJ(x), Rvc: true}
		case 6:
			*in = Insn{Op: OpBEQ, Rs1: cReg(x >> 7), Rs2: riscv.RegZero, Imm: cImmB(x), Rvc: true}
		case 7:
			*in = Insn{Op: OpBNE, Rs1: cReg(x >> 7), Rs2: riscv.RegZero, Imm: cImmB(x), Rvc: true}
		}
	case 2:
		rd := uint8((x >> 7) & 0x1F)
		rs2 := uint8((x >> 2) & 0x1F)
		wordSP := int64(((x >> 7) & 0x20) | ((x >> 2) & 0x1C) | ((x << 4) & 0xC0))
		dwordSP := int64(((x >> 7) & 0x20) | ((x >> 2) & 0x18) | ((x << 4) & 0x1C0))
		storeWordSP := int64(((x >> 7) & 0x3C) | ((x >> 1) & 0xC0))
		storeDwordSP := int64(((x >> 7) & 0x38) | ((x >> 1) & 0x1C0))
		switch funct3 {
		case 0:
			*in = Insn{Op: OpSLLI, Rd: rd, Rs1: rd, Imm: int64(cImm6(x)), Rvc: true}
		case 1:
			*in = Insn{Op: OpFLD, Rd: rd, Rs1: riscv.RegSP, Imm: dwordSP, Rvc: true}
		case 2:
			if rd == 0 {
				return illegal(raw)
			}
			*in = Insn{Op: OpLW, Rd: rd, Rs1: riscv.RegSP, Imm: wordSP, Rvc: true}
		case 3:
			if rd == 0 {
				return illegal(raw)
			}
			*in = Insn{Op: OpLD, Rd: rd, Rs1: riscv.RegSP, Imm: dwordSP, Rvc: true}
		case 4:
			switch {
			case x&0x1000 == 0 && rs2 == 0: // C.JR
				if rd == 0 {
					return illegal(raw)
				}
				*in = Insn{Op: OpJALR, Rd: riscv.RegZero, Rs1: rd, Rvc: true}
			case x&0x1000 == 0: // C.MV
				*in = Insn{Op: OpADD, Rd: rd, Rs1: riscv.RegZero, Rs2: rs2, Rvc: true}
			case rd == 0 && rs2 == 0:
				*in = Insn{Op: OpEBREAK, Rvc: true}
			case rs2 == 0: // C.JALR
				*in = Insn{Op: OpJALR, Rd: riscv.RegRA, Rs1: rd, Rvc: true}
			default: // C.ADD
				*in = Insn{Op: OpADD, Rd: rd, Rs1: rd, Rs2: rs2, Rvc: true}
			}
		case 5:
			*in = Insn{Op: OpFSD, Rs1: riscv.RegSP, Rs2: rs2, Imm: storeDwordSP, Rvc: true}
		case 6:
			*in = Insn{Op: OpSW, Rs1: riscv.RegSP, Rs2: rs2, Imm: storeWordSP, Rvc: true}
		case 7:
			*in = Insn{Op: OpSD, Rs1: riscv.RegSP, Rs2: rs2, Imm: storeDwordSP, Rvc: true}
		}
	default:
		return illegal(raw)
	}
	return nil
}
