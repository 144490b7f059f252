package interp

import (
	"fmt"
	"runtime"
)

// Memory is the guest memory the interpreter reads and writes.
// Accesses outside of mapped memory are fatal to the host, they are not reported through this interface.
type Memory interface {
	Load(addr uint64, size uint64) uint64
	Store(addr uint64, size uint64, value uint64)
}

type CPU struct {
	State *State
	Mem   Memory

	// decoded record, reused across instructions
	insn Insn
}

func NewCPU(state *State, mem Memory) *CPU {
	return &CPU{State: state, Mem: mem}
}

type handler func(c *CPU, in *Insn)

// handlers is indexed by Op and covers every operation.
var handlers = [numOps]handler{
	OpLB:  loadOp[int8],
	OpLH:  loadOp[int16],
	OpLW:  loadOp[int32],
	OpLD:  loadOp[int64],
	OpLBU: loadOp[uint8],
	OpLHU: loadOp[uint16],
	OpLWU: loadOp[uint32],

	OpFENCE:  nop,
	OpFENCEI: nop,

	OpADDI:  iType(add),
	OpSLLI:  iType(sll),
	OpSLTI:  iType(slt),
	OpSLTIU: iType(sltu),
	OpXORI:  iType(xor),
	OpSRLI:  iType(srl),
	OpSRAI:  iType(sra),
	OpORI:   iType(or),
	OpANDI:  iType(and),
	OpAUIPC: auipc,

	OpADDIW: iTypeW(addw),
	OpSLLIW: iTypeW(sllw),
	OpSRLIW: iTypeW(srlw),
	OpSRAIW: iTypeW(sraw),

	OpSB: storeOp[uint8],
	OpSH: storeOp[uint16],
	OpSW: storeOp[uint32],
	OpSD: storeOp[uint64],

	OpADD:    rType(add),
	OpSLL:    rType(sll),
	OpSLT:    rType(slt),
	OpSLTU:   rType(sltu),
	OpXOR:    rType(xor),
	OpSRL:    rType(srl),
	OpOR:     rType(or),
	OpAND:    rType(and),
	OpMUL:    rType(mul),
	OpMULH:   rType(mulh),
	OpMULHSU: rType(mulhsu),
	OpMULHU:  rType(mulhu),
	OpDIV:    rType(asSigned[int64, uint64](div[int64])),
	OpDIVU:   rType(divu[uint64]),
	OpREM:    rType(asSigned[int64, uint64](rem[int64])),
	OpREMU:   rType(remu[uint64]),
	OpSUB:    rType(sub),
	OpSRA:    rType(sra),
	OpLUI:    lui,

	OpADDW:  rTypeW(addw),
	OpSLLW:  rTypeW(sllw),
	OpSRLW:  rTypeW(srlw),
	OpMULW:  rTypeW(mulw),
	OpDIVW:  rTypeW(asSigned[int32, uint32](div[int32])),
	OpDIVUW: rTypeW(divu[uint32]),
	OpREMW:  rTypeW(asSigned[int32, uint32](rem[int32])),
	OpREMUW: rTypeW(remu[uint32]),
	OpSUBW:  rTypeW(subw),
	OpSRAW:  rTypeW(sraw),

	OpBEQ:  branch(beq),
	OpBNE:  branch(bne),
	OpBLT:  branch(blt),
	OpBGE:  branch(bge),
	OpBLTU: branch(bltu),
	OpBGEU: branch(bgeu),

	OpJALR:   jalr,
	OpJAL:    jal,
	OpECALL:  ecall,
	OpEBREAK: nop,

	OpCSRRC:  csrOp(false, false, csrClear),
	OpCSRRCI: csrOp(true, false, csrClear),
	OpCSRRS:  csrOp(false, false, csrSet),
	OpCSRRSI: csrOp(true, false, csrSet),
	OpCSRRW:  csrOp(false, true, csrSwap),
	OpCSRRWI: csrOp(true, true, csrSwap),

	OpLRW:      lrOp[int32],
	OpSCW:      scOp[int32],
	OpAMOSWAPW: amoOp(amoSwap[int32]),
	OpAMOADDW:  amoOp(amoAdd[int32]),
	OpAMOXORW:  amoOp(amoXor[int32]),
	OpAMOANDW:  amoOp(amoAnd[int32]),
	OpAMOORW:   amoOp(amoOr[int32]),
	OpAMOMINW:  amoOp(amoMin[int32]),
	OpAMOMAXW:  amoOp(amoMax[int32]),
	OpAMOMINUW: amoOp(amoMinu[int32]),
	OpAMOMAXUW: amoOp(amoMaxu[int32]),
	OpLRD:      lrOp[int64],
	OpSCD:      scOp[int64],
	OpAMOSWAPD: amoOp(amoSwap[int64]),
	OpAMOADDD:  amoOp(amoAdd[int64]),
	OpAMOXORD:  amoOp(amoXor[int64]),
	OpAMOANDD:  amoOp(amoAnd[int64]),
	OpAMOORD:   amoOp(amoOr[int64]),
	OpAMOMIND:  amoOp(amoMin[int64]),
	OpAMOMAXD:  amoOp(amoMax[int64]),
	OpAMOMINUD: amoOp(amoMinu[int64]),
	OpAMOMAXUD: amoOp(amoMaxu[int64]),

	OpFLW:     fload[float32],
	OpFSW:     fstore[float32],
	OpFMADDS:  fused[float32](false, false),
	OpFMSUBS:  fused[float32](false, true),
	OpFNMSUBS: fused[float32](true, false),
	OpFNMADDS: fused[float32](true, true),
	OpFADDS:   fbinary(fadd[float32]),
	OpFSUBS:   fbinary(fsub[float32]),
	OpFMULS:   fbinary(fmul[float32]),
	OpFDIVS:   fbinary(fdiv[float32]),
	OpFSQRTS:  fsqrt[float32],
	OpFSGNJS:  fsgnj[float32](sgnjCopy),
	OpFSGNJNS: fsgnj[float32](sgnjNegate),
	OpFSGNJXS: fsgnj[float32](sgnjXor),
	OpFMINS:   fbinary(fmin[float32]),
	OpFMAXS:   fbinary(fmax[float32]),
	OpFCVTWS:  fcvtToInt[float32, int32],
	OpFCVTWUS: fcvtToInt[float32, uint32],
	OpFMVXW:   fmvToInt[float32],
	OpFEQS:    fcompare(feq[float32]),
	OpFLTS:    fcompare(flt[float32]),
	OpFLES:    fcompare(fle[float32]),
	OpFCLASSS: fclassOp[float32],
	OpFCVTSW:  fcvtFromInt[float32, int32],
	OpFCVTSWU: fcvtFromInt[float32, uint32],
	OpFMVWX:   fmvFromInt[float32],
	OpFCVTLS:  fcvtToInt[float32, int64],
	OpFCVTLUS: fcvtToInt[float32, uint64],
	OpFCVTSL:  fcvtFromInt[float32, int64],
	OpFCVTSLU: fcvtFromInt[float32, uint64],

	OpFLD:     fload[float64],
	OpFSD:     fstore[float64],
	OpFMADDD:  fused[float64](false, false),
	OpFMSUBD:  fused[float64](false, true),
	OpFNMSUBD: fused[float64](true, false),
	OpFNMADDD: fused[float64](true, true),
	OpFADDD:   fbinary(fadd[float64]),
	OpFSUBD:   fbinary(fsub[float64]),
	OpFMULD:   fbinary(fmul[float64]),
	OpFDIVD:   fbinary(fdiv[float64]),
	OpFSQRTD:  fsqrt[float64],
	OpFSGNJD:  fsgnj[float64](sgnjCopy),
	OpFSGNJND: fsgnj[float64](sgnjNegate),
	OpFSGNJXD: fsgnj[float64](sgnjXor),
	OpFMIND:   fbinary(fmin[float64]),
	OpFMAXD:   fbinary(fmax[float64]),
	OpFCVTSD:  fcvtFloat[float64, float32],
	OpFCVTDS:  fcvtFloat[float32, float64],
	OpFEQD:    fcompare(feq[float64]),
	OpFLTD:    fcompare(flt[float64]),
	OpFLED:    fcompare(fle[float64]),
	OpFCLASSD: fclassOp[float64],
	OpFCVTWD:  fcvtToInt[float64, int32],
	OpFCVTWUD: fcvtToInt[float64, uint32],
	OpFCVTDW:  fcvtFromInt[float64, int32],
	OpFCVTDWU: fcvtFromInt[float64, uint32],
	OpFCVTLD:  fcvtToInt[float64, int64],
	OpFCVTLUD: fcvtToInt[float64, uint64],
	OpFMVXD:   fmvToInt[float64],
	OpFCVTDL:  fcvtFromInt[float64, int64],
	OpFCVTDLU: fcvtFromInt[float64, uint64],
	OpFMVDX:   fmvFromInt[float64],
}

// fetch reads the instruction at the PC. The upper half-word is only read for 32-bit encodings,
// so a compressed instruction at the very end of a mapping does not fault.
func (c *CPU) fetch() uint32 {
	pc := c.State.PC
	raw := uint32(c.Mem.Load(pc, 2))
	if IsCompressed(raw) {
		return raw
	}
	return raw | uint32(c.Mem.Load(pc+2, 2))<<16
}

// Step executes the instruction at the PC. On a control transfer or ecall the PC is left in place
// and ExitReason and ReenterPC tell the caller how to continue.
func (c *CPU) Step() (err error) {
	defer func() {
		if errInterface := recover(); errInterface != nil {
			if re, ok := errInterface.(runtime.Error); ok {
				err = fmt.Errorf("host fault at pc %016x: %w", c.State.PC, re)
				return
			}
			if e, ok := errInterface.(error); ok {
				err = fmt.Errorf("execution error at pc %016x: %w", c.State.PC, e)
				return
			}
			err = fmt.Errorf("execution error at pc %016x: %v", c.State.PC, errInterface)
		}
	}()
	s := c.State
	s.ExitReason = ExitNone
	in := &c.insn
	if err := Decode(c.fetch(), in); err != nil {
		return fmt.Errorf("failed to decode at pc %016x: %w", s.PC, err)
	}
	handlers[in.Op](c, in)
	s.X[0] = 0
	s.Instret++
	if s.ExitReason == ExitNone {
		s.PC += in.Size()
	}
	return nil
}

// ExecBlock runs instructions until one of them ends the block.
func (c *CPU) ExecBlock() error {
	for {
		if err := c.Step(); err != nil {
			return err
		}
		if c.State.ExitReason != ExitNone {
			return nil
		}
	}
}
