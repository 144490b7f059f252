package interp

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

var ErrIllegalInstruction = errors.New("illegal instruction")

// Insn is a decoded instruction. Fields that the instruction does not use are left zero.
type Insn struct {
	Op  Op
	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Rs3 uint8
	// Imm is sign-extended; for CSR immediates it holds the zero-extended uimm.
	Imm int64
	Csr uint16
	// Rm is the rounding-mode field of floating-point instructions.
	Rm uint8
	// Rvc marks a 16-bit compressed encoding.
	Rvc bool
}

// Size is the number of bytes the instruction occupies.
func (in *Insn) Size() uint64 {
	if in.Rvc {
		return 2
	}
	return 4
}

func (in Insn) String() string {
	return fmt.Sprintf("%s rd=%d rs1=%d rs2=%d rs3=%d imm=%d csr=%#x rvc=%t", in.Op, in.Rd, in.Rs1, in.Rs2, in.Rs3, in.Imm, in.Csr, in.Rvc)
}

// IsCompressed reports whether the low half-word starts a 16-bit instruction.
func IsCompressed(raw uint32) bool {
	return raw&3 != 3
}

// Decode fills in from a raw instruction word. For compressed encodings only the low 16 bits are used.
func Decode(raw uint32, in *Insn) error {
	*in = Insn{}
	if IsCompressed(raw) {
		in.Rvc = true
		return decodeCompressed(uint16(raw), in)
	}
	return decode32(raw, in)
}

func illegal(raw uint32) error {
	return fmt.Errorf("%w: %08x", ErrIllegalInstruction, raw)
}

func parseOpcode(instr uint32) uint32 {
	return instr & 0x7F
}

func parseRd(instr uint32) uint8 {
	return uint8((instr >> 7) & 0x1F)
}

func parseFunct3(instr uint32) uint32 {
	return (instr >> 12) & 0x7
}

func parseRs1(instr uint32) uint8 {
	return uint8((instr >> 15) & 0x1F)
}

func parseRs2(instr uint32) uint8 {
	return uint8((instr >> 20) & 0x1F)
}

func parseRs3(instr uint32) uint8 {
	return uint8(instr >> 27)
}

func parseFunct7(instr uint32) uint32 {
	return instr >> 25
}

func parseImmTypeI(instr uint32) int64 {
	return int64(int32(instr) >> 20)
}

func parseImmTypeS(instr uint32) int64 {
	return int64(int32(instr&0xFE00_0000)>>20) | int64((instr>>7)&0x1F)
}

func parseImmTypeB(instr uint32) int64 {
	return int64(int32(instr&0x8000_0000)>>19) |
		int64((instr&0x80)<<4) |
		int64((instr>>20)&0x7E0) |
		int64((instr>>7)&0x1E)
}

func parseImmTypeU(instr uint32) int64 {
	return int64(int32(instr & 0xFFFF_F000))
}

func parseImmTypeJ(instr uint32) int64 {
	return int64(int32(instr&0x8000_0000)>>11) |
		int64(instr&0xF_F000) |
		int64((instr>>9)&0x800) |
		int64((instr>>20)&0x7FE)
}

func decode32(instr uint32, in *Insn) error {
	opcode := parseOpcode(instr)
	funct3 := parseFunct3(instr)
	funct7 := parseFunct7(instr)
	in.Rd = parseRd(instr)
	in.Rs1 = parseRs1(instr)
	in.Rs2 = parseRs2(instr)

	switch opcode {
	case riscv.OpcodeLoad:
		in.Imm = parseImmTypeI(instr)
		switch funct3 {
		case 0:
			in.Op = OpLB
		case 1:
			in.Op = OpLH
		case 2:
			in.Op = OpLW
		case 3:
			in.Op = OpLD
		case 4:
			in.Op = OpLBU
		case 5:
			in.Op = OpLHU
		case 6:
			in.Op = OpLWU
		default:
			return illegal(instr)
		}
	case riscv.OpcodeLoadFP:
		in.Imm = parseImmTypeI(instr)
		switch funct3 {
		case 2:
			in.Op = OpFLW
		case 3:
			in.Op = OpFLD
		default:
			return illegal(instr)
		}
	case riscv.OpcodeMiscMem:
		switch funct3 {
		case 0:
			in.Op = OpFENCE
		case 1:
			in.Op = OpFENCEI
		default:
			return illegal(instr)
		}
	case riscv.OpcodeOpImm:
		in.Imm = parseImmTypeI(instr)
		switch funct3 {
		case 0:
			in.Op = OpADDI
		case 1:
			if funct7>>1 != 0 {
				return illegal(instr)
			}
			in.Op = OpSLLI
		case 2:
			in.Op = OpSLTI
		case 3:
			in.Op = OpSLTIU
		case 4:
			in.Op = OpXORI
		case 5:
			switch funct7 >> 1 { // in rv64i the top 6 bits select the shift type
			case 0x00:
				in.Op = OpSRLI
			case 0x10:
				in.Op = OpSRAI
			default:
				return illegal(instr)
			}
		case 6:
			in.Op = OpORI
		case 7:
			in.Op = OpANDI
		}
	case riscv.OpcodeAuipc:
		in.Op = OpAUIPC
		in.Imm = parseImmTypeU(instr)
	case riscv.OpcodeOpImm32:
		in.Imm = parseImmTypeI(instr)
		switch {
		case funct3 == 0:
			in.Op = OpADDIW
		case funct3 == 1 && funct7 == 0x00:
			in.Op = OpSLLIW
		case funct3 == 5 && funct7 == 0x00:
			in.Op = OpSRLIW
		case funct3 == 5 && funct7 == 0x20:
			in.Op = OpSRAIW
		default:
			return illegal(instr)
		}
	case riscv.OpcodeStore:
		in.Imm = parseImmTypeS(instr)
		switch funct3 {
		case 0:
			in.Op = OpSB
		case 1:
			in.Op = OpSH
		case 2:
			in.Op = OpSW
		case 3:
			in.Op = OpSD
		default:
			return illegal(instr)
		}
	case riscv.OpcodeStoreFP:
		in.Imm = parseImmTypeS(instr)
		switch funct3 {
		case 2:
			in.Op = OpFSW
		case 3:
			in.Op = OpFSD
		default:
			return illegal(instr)
		}
	case riscv.OpcodeAmo:
		return decodeAmo(instr, funct3, funct7, in)
	case riscv.OpcodeOp:
		return decodeOp(instr, funct3, funct7, in)
	case riscv.OpcodeLui:
		in.Op = OpLUI
		in.Imm = parseImmTypeU(instr)
	case riscv.OpcodeOp32:
		return decodeOp32(instr, funct3, funct7, in)
	case riscv.OpcodeMadd, riscv.OpcodeMsub, riscv.OpcodeNmsub, riscv.OpcodeNmadd:
		in.Rs3 = parseRs3(instr)
		in.Rm = uint8(funct3)
		var single, double Op
		switch opcode {
		case riscv.OpcodeMadd:
			single, double = OpFMADDS, OpFMADDD
		case riscv.OpcodeMsub:
			single, double = OpFMSUBS, OpFMSUBD
		case riscv.OpcodeNmsub:
			single, double = OpFNMSUBS, OpFNMSUBD
		default:
			single, double = OpFNMADDS, OpFNMADDD
		}
		switch funct7 & 3 {
		case 0:
			in.Op = single
		case 1:
			in.Op = double
		default:
			return illegal(instr)
		}
	case riscv.OpcodeOpFP:
		return decodeOpFP(instr, funct3, funct7, in)
	case riscv.OpcodeBranch:
		in.Imm = parseImmTypeB(instr)
		switch funct3 {
		case 0:
			in.Op = OpBEQ
		case 1:
			in.Op = OpBNE
		case 4:
			in.Op = OpBLT
		case 5:
			in.Op = OpBGE
		case 6:
			in.Op = OpBLTU
		case 7:
			in.Op = OpBGEU
		default:
			return illegal(instr)
		}
	case riscv.OpcodeJalr:
		if funct3 != 0 {
			return illegal(instr)
		}
		in.Op = OpJALR
		in.Imm = parseImmTypeI(instr)
	case riscv.OpcodeJal:
		in.Op = OpJAL
		in.Imm = parseImmTypeJ(instr)
	case riscv.OpcodeSystem:
		return decodeSystem(instr, funct3, in)
	default:
		return illegal(instr)
	}
	return nil
}

func decodeOp(instr, funct3, funct7 uint32, in *Insn) error {
	var ops [8]Op
	switch funct7 {
	case 0x00:
		ops = [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}
	case 0x01: // RV M extension
		ops = [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}
	case 0x20:
		switch funct3 {
		case 0:
			in.Op = OpSUB
		case 5:
			in.Op = OpSRA
		default:
			return illegal(instr)
		}
		return nil
	default:
		return illegal(instr)
	}
	in.Op = ops[funct3]
	return nil
}

func decodeOp32(instr, funct3, funct7 uint32, in *Insn) error {
	switch funct7 {
	case 0x00:
		switch funct3 {
		case 0:
			in.Op = OpADDW
		case 1:
			in.Op = OpSLLW
		case 5:
			in.Op = OpSRLW
		default:
			return illegal(instr)
		}
	case 0x01:
		switch funct3 {
		case 0:
			in.Op = OpMULW
		case 4:
			in.Op = OpDIVW
		case 5:
			in.Op = OpDIVUW
		case 6:
			in.Op = OpREMW
		case 7:
			in.Op = OpREMUW
		default:
			return illegal(instr)
		}
	case 0x20:
		switch funct3 {
		case 0:
			in.Op = OpSUBW
		case 5:
			in.Op = OpSRAW
		default:
			return illegal(instr)
		}
	default:
		return illegal(instr)
	}
	return nil
}

func decodeAmo(instr, funct3, funct7 uint32, in *Insn) error {
	// aq/rl ordering bits are irrelevant with a single hart and no memory pipeline
	var ops [11]Op
	switch funct3 {
	case 2: // 0b010 == RV32A W variants
		ops = [11]Op{OpLRW, OpSCW, OpAMOSWAPW, OpAMOADDW, OpAMOXORW, OpAMOANDW, OpAMOORW, OpAMOMINW, OpAMOMAXW, OpAMOMINUW, OpAMOMAXUW}
	case 3: // 0b011 == RV64A D variants
		ops = [11]Op{OpLRD, OpSCD, OpAMOSWAPD, OpAMOADDD, OpAMOXORD, OpAMOANDD, OpAMOORD, OpAMOMIND, OpAMOMAXD, OpAMOMINUD, OpAMOMAXUD}
	default:
		return illegal(instr)
	}
	switch funct7 >> 2 {
	case 0x02: // 00010 = LR
		if in.Rs2 != 0 {
			return illegal(instr)
		}
		in.Op = ops[0]
	case 0x03: // 00011 = SC
		in.Op = ops[1]
	case 0x01: // 00001 = AMOSWAP
		in.Op = ops[2]
	case 0x00: // 00000 = AMOADD
		in.Op = ops[3]
	case 0x04: // 00100 = AMOXOR
		in.Op = ops[4]
	case 0x0c: // 01100 = AMOAND
		in.Op = ops[5]
	case 0x08: // 01000 = AMOOR
		in.Op = ops[6]
	case 0x10: // 10000 = AMOMIN
		in.Op = ops[7]
	case 0x14: // 10100 = AMOMAX
		in.Op = ops[8]
	case 0x18: // 11000 = AMOMINU
		in.Op = ops[9]
	case 0x1c: // 11100 = AMOMAXU
		in.Op = ops[10]
	default:
		return illegal(instr)
	}
	return nil
}

// fcvtOps is keyed by funct7, then by the rs2 field that selects the integer type.
var fcvtOps = map[uint32][4]Op{
	0x60: {OpFCVTWS, OpFCVTWUS, OpFCVTLS, OpFCVTLUS},
	0x61: {OpFCVTWD, OpFCVTWUD, OpFCVTLD, OpFCVTLUD},
	0x68: {OpFCVTSW, OpFCVTSWU, OpFCVTSL, OpFCVTSLU},
	0x69: {OpFCVTDW, OpFCVTDWU, OpFCVTDL, OpFCVTDLU},
}

func decodeOpFP(instr, funct3, funct7 uint32, in *Insn) error {
	in.Rm = uint8(funct3)
	rs2 := in.Rs2
	pick := func(ops ...Op) error {
		if int(funct3) >= len(ops) {
			return illegal(instr)
		}
		in.Op = ops[funct3]
		return nil
	}
	switch funct7 {
	case 0x00:
		in.Op = OpFADDS
	case 0x01:
		in.Op = OpFADDD
	case 0x04:
		in.Op = OpFSUBS
	case 0x05:
		in.Op = OpFSUBD
	case 0x08:
		in.Op = OpFMULS
	case 0x09:
		in.Op = OpFMULD
	case 0x0c:
		in.Op = OpFDIVS
	case 0x0d:
		in.Op = OpFDIVD
	case 0x2c:
		in.Op = OpFSQRTS
	case 0x2d:
		in.Op = OpFSQRTD
	case 0x10:
		return pick(OpFSGNJS, OpFSGNJNS, OpFSGNJXS)
	case 0x11:
		return pick(OpFSGNJD, OpFSGNJND, OpFSGNJXD)
	case 0x14:
		return pick(OpFMINS, OpFMAXS)
	case 0x15:
		return pick(OpFMIND, OpFMAXD)
	case 0x20:
		if rs2 != 1 {
			return illegal(instr)
		}
		in.Op = OpFCVTSD
	case 0x21:
		if rs2 != 0 {
			return illegal(instr)
		}
		in.Op = OpFCVTDS
	case 0x50:
		return pick(OpFLES, OpFLTS, OpFEQS)
	case 0x51:
		return pick(OpFLED, OpFLTD, OpFEQD)
	case 0x60, 0x61, 0x68, 0x69:
		if rs2 > 3 {
			return illegal(instr)
		}
		in.Op = fcvtOps[funct7][rs2]
	case 0x70:
		return pick(OpFMVXW, OpFCLASSS)
	case 0x71:
		return pick(OpFMVXD, OpFCLASSD)
	case 0x78:
		in.Op = OpFMVWX
	case 0x79:
		in.Op = OpFMVDX
	default:
		return illegal(instr)
	}
	return nil
}

func decodeSystem(instr, funct3 uint32, in *Insn) error {
	switch funct3 {
	case 0:
		switch instr >> 20 { // I-type, top 12 bits
		case 0:
			in.Op = OpECALL
		case 1:
			in.Op = OpEBREAK
		default: // xRET, WFI, SFENCE.VMA: privileged
			return illegal(instr)
		}
		return nil
	case 4:
		return illegal(instr)
	}
	in.Csr = uint16(instr >> 20)
	in.Imm = int64(in.Rs1) // uimm of the immediate forms
	in.Op = [8]Op{1: OpCSRRW, 2: OpCSRRS, 3: OpCSRRC, 5: OpCSRRWI, 6: OpCSRRSI, 7: OpCSRRCI}[funct3]
	return nil
}
