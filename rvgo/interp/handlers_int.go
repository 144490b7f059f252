package interp

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

var (
	ErrUnsupportedCSR   = errors.New("unsupported CSR")
	ErrMisalignedAtomic = errors.New("misaligned atomic memory operation")
)

func nop(c *CPU, in *Insn) {}

func loadOp[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32](c *CPU, in *Insn) {
	s := c.State
	addr := s.X[in.Rs1] + uint64(in.Imm)
	s.X[in.Rd] = uint64(int64(T(c.Mem.Load(addr, sizeOf[T]()))))
}

func storeOp[T uint8 | uint16 | uint32 | uint64](c *CPU, in *Insn) {
	s := c.State
	addr := s.X[in.Rs1] + uint64(in.Imm)
	c.Mem.Store(addr, sizeOf[T](), s.X[in.Rs2])
}

// rType lifts a 64-bit operation over two registers.
func rType(f func(a, b uint64) uint64) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		s.X[in.Rd] = f(s.X[in.Rs1], s.X[in.Rs2])
	}
}

func iType(f func(a, b uint64) uint64) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		s.X[in.Rd] = f(s.X[in.Rs1], uint64(in.Imm))
	}
}

// rTypeW lifts a 32-bit operation; the result is sign-extended from bit 31.
func rTypeW(f func(a, b uint32) uint32) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		s.X[in.Rd] = sext32(uint64(f(uint32(s.X[in.Rs1]), uint32(s.X[in.Rs2]))))
	}
}

func iTypeW(f func(a, b uint32) uint32) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		s.X[in.Rd] = sext32(uint64(f(uint32(s.X[in.Rs1]), uint32(in.Imm))))
	}
}

func add(a, b uint64) uint64  { return a + b }
func sub(a, b uint64) uint64  { return a - b }
func and(a, b uint64) uint64  { return a & b }
func or(a, b uint64) uint64   { return a | b }
func xor(a, b uint64) uint64  { return a ^ b }
func mul(a, b uint64) uint64  { return a * b }
func slt(a, b uint64) uint64  { return b2u(int64(a) < int64(b)) }
func sltu(a, b uint64) uint64 { return b2u(a < b) }
func sll(a, b uint64) uint64  { return a << (b & 0x3F) }
func srl(a, b uint64) uint64  { return a >> (b & 0x3F) }
func sra(a, b uint64) uint64  { return uint64(int64(a) >> (b & 0x3F)) }

func addw(a, b uint32) uint32 { return a + b }
func subw(a, b uint32) uint32 { return a - b }
func mulw(a, b uint32) uint32 { return a * b }
func sllw(a, b uint32) uint32 { return a << (b & 0x1F) }
func srlw(a, b uint32) uint32 { return a >> (b & 0x1F) }
func sraw(a, b uint32) uint32 { return uint32(int32(a) >> (b & 0x1F)) }

func lui(c *CPU, in *Insn) {
	c.State.X[in.Rd] = uint64(in.Imm)
}

func auipc(c *CPU, in *Insn) {
	s := c.State
	s.X[in.Rd] = s.PC + uint64(in.Imm)
}

// Control flow ends the block: the handler records where to continue instead of moving the PC.

func branch(cond func(a, b uint64) bool) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		if cond(s.X[in.Rs1], s.X[in.Rs2]) {
			s.ReenterPC = s.PC + uint64(in.Imm)
			s.ExitReason = ExitDirectBranch
		}
	}
}

func beq(a, b uint64) bool  { return a == b }
func bne(a, b uint64) bool  { return a != b }
func blt(a, b uint64) bool  { return int64(a) < int64(b) }
func bge(a, b uint64) bool  { return int64(a) >= int64(b) }
func bltu(a, b uint64) bool { return a < b }
func bgeu(a, b uint64) bool { return a >= b }

func jal(c *CPU, in *Insn) {
	s := c.State
	s.ReenterPC = s.PC + uint64(in.Imm)
	s.X[in.Rd] = s.PC + in.Size()
	s.ExitReason = ExitDirectBranch
}

func jalr(c *CPU, in *Insn) {
	s := c.State
	// rd may alias rs1, the target is computed first
	target := (s.X[in.Rs1] + uint64(in.Imm)) &^ 1
	s.X[in.Rd] = s.PC + in.Size()
	s.ReenterPC = target
	s.ExitReason = ExitIndirectBranch
}

func ecall(c *CPU, in *Insn) {
	s := c.State
	s.ReenterPC = s.PC + in.Size()
	s.ExitReason = ExitEcall
}

func (c *CPU) readCSR(csr uint16) uint64 {
	fcsr := uint64(c.State.FCSR)
	switch csr {
	case riscv.CsrFflags:
		return fcsr & 0x1F
	case riscv.CsrFrm:
		return (fcsr >> 5) & 0x7
	case riscv.CsrFcsr:
		return fcsr & 0xFF
	default:
		panic(fmt.Errorf("%w: %#x", ErrUnsupportedCSR, csr))
	}
}

func (c *CPU) writeCSR(csr uint16, v uint64) {
	s := c.State
	switch csr {
	case riscv.CsrFflags:
		s.FCSR = s.FCSR&^0x1F | uint32(v&0x1F)
	case riscv.CsrFrm:
		s.FCSR = s.FCSR&^0xE0 | uint32(v&0x7)<<5
	case riscv.CsrFcsr:
		s.FCSR = uint32(v & 0xFF)
	default:
		panic(fmt.Errorf("%w: %#x", ErrUnsupportedCSR, csr))
	}
}

// csrOp builds the CSR read-modify-write family. Set and clear variants skip the write when the source is x0 or uimm 0.
func csrOp(useImm, alwaysWrite bool, f func(old, v uint64) uint64) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		v := s.X[in.Rs1]
		if useImm {
			v = uint64(in.Imm)
		}
		old := c.readCSR(in.Csr)
		if alwaysWrite || in.Rs1 != 0 {
			c.writeCSR(in.Csr, f(old, v))
		}
		s.X[in.Rd] = old
	}
}

func csrSwap(_, v uint64) uint64    { return v }
func csrSet(old, v uint64) uint64   { return old | v }
func csrClear(old, v uint64) uint64 { return old &^ v }

// Atomics. There is a single hart, so the read-modify-write needs no locking.

func atomicAddr(c *CPU, in *Insn, size uint64) uint64 {
	addr := c.State.X[in.Rs1]
	if addr%size != 0 {
		panic(fmt.Errorf("%w: %016x", ErrMisalignedAtomic, addr))
	}
	return addr
}

func lrOp[T int32 | int64](c *CPU, in *Insn) {
	s := c.State
	addr := atomicAddr(c, in, sizeOf[T]())
	s.X[in.Rd] = uint64(int64(T(c.Mem.Load(addr, sizeOf[T]()))))
	s.LoadReservation = addr
}

func scOp[T int32 | int64](c *CPU, in *Insn) {
	s := c.State
	addr := atomicAddr(c, in, sizeOf[T]())
	if s.LoadReservation != addr {
		s.X[in.Rd] = 1
		return
	}
	c.Mem.Store(addr, sizeOf[T](), s.X[in.Rs2])
	s.LoadReservation = noReservation
	s.X[in.Rd] = 0
}

// noReservation can never match: atomics are aligned.
const noReservation = ^uint64(0)

func amoOp[T int32 | int64](f func(old, v T) T) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		size := sizeOf[T]()
		addr := atomicAddr(c, in, size)
		old := T(c.Mem.Load(addr, size))
		c.Mem.Store(addr, size, uint64(f(old, T(s.X[in.Rs2]))))
		s.X[in.Rd] = uint64(int64(old))
	}
}

func amoSwap[T int32 | int64](_, v T) T  { return v }
func amoAdd[T int32 | int64](old, v T) T { return old + v }
func amoXor[T int32 | int64](old, v T) T { return old ^ v }
func amoAnd[T int32 | int64](old, v T) T { return old & v }
func amoOr[T int32 | int64](old, v T) T  { return old | v }
func amoMin[T int32 | int64](old, v T) T { return min(old, v) }
func amoMax[T int32 | int64](old, v T) T { return max(old, v) }

// unsigned comparisons of the sign-extended word give the same order as of the 32-bit value
func amoMinu[T int32 | int64](old, v T) T {
	if uint64(int64(old)) < uint64(int64(v)) {
		return old
	}
	return v
}

func amoMaxu[T int32 | int64](old, v T) T {
	if uint64(int64(old)) > uint64(int64(v)) {
		return old
	}
	return v
}
