package interp

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Floating-point handlers are generic over the format: float32 for the F extension, float64 for D.

func fload[T constraints.Float](c *CPU, in *Insn) {
	s := c.State
	addr := s.X[in.Rs1] + uint64(in.Imm)
	writeFBits[T](s, in.Rd, c.Mem.Load(addr, sizeOf[T]()))
}

func fstore[T constraints.Float](c *CPU, in *Insn) {
	s := c.State
	addr := s.X[in.Rs1] + uint64(in.Imm)
	// stores move the raw payload, boxed or not
	c.Mem.Store(addr, sizeOf[T](), uint64(s.F[in.Rs2]))
}

func fbinary[T constraints.Float](f func(a, b T) T) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		writeF(s, in.Rd, f(readF[T](s, in.Rs1), readF[T](s, in.Rs2)))
	}
}

func fadd[T constraints.Float](a, b T) T { return a + b }
func fsub[T constraints.Float](a, b T) T { return a - b }
func fmul[T constraints.Float](a, b T) T { return a * b }
func fdiv[T constraints.Float](a, b T) T { return a / b }

func fsqrt[T constraints.Float](c *CPU, in *Insn) {
	s := c.State
	writeF(s, in.Rd, T(math.Sqrt(float64(readF[T](s, in.Rs1)))))
}

// fused computes ±(rs1*rs2) ± rs3 with a single rounding.
func fused[T constraints.Float](negProduct, negAddend bool) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		a, b, d := readF[T](s, in.Rs1), readF[T](s, in.Rs2), readF[T](s, in.Rs3)
		if negProduct {
			a = -a
		}
		if negAddend {
			d = -d
		}
		if isSingle[T]() {
			writeF(s, in.Rd, T(fma32(float32(a), float32(b), float32(d))))
			return
		}
		writeF(s, in.Rd, T(math.FMA(float64(a), float64(b), float64(d))))
	}
}

// fsgnj builds the sign-injection family on raw payloads; the result is never canonicalised.
func fsgnj[T constraints.Float](sign func(a, b uint64) uint64) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		mask := signMask[T]()
		a := readFBits[T](s, in.Rs1)
		b := readFBits[T](s, in.Rs2)
		writeFBits[T](s, in.Rd, a&^mask|sign(a, b)&mask)
	}
}

func sgnjCopy(_, b uint64) uint64   { return b }
func sgnjNegate(_, b uint64) uint64 { return ^b }
func sgnjXor(a, b uint64) uint64    { return a ^ b }

func fcompare[T constraints.Float](cmp func(a, b T) bool) handler {
	return func(c *CPU, in *Insn) {
		s := c.State
		s.X[in.Rd] = b2u(cmp(readF[T](s, in.Rs1), readF[T](s, in.Rs2)))
	}
}

// comparisons involving NaN are false, as Go already defines them
func feq[T constraints.Float](a, b T) bool { return a == b }
func flt[T constraints.Float](a, b T) bool { return a < b }
func fle[T constraints.Float](a, b T) bool { return a <= b }

func fclassOp[T constraints.Float](c *CPU, in *Insn) {
	s := c.State
	s.X[in.Rd] = fclass[T](readFBits[T](s, in.Rs1))
}

// fcvtToInt converts with the rounding mode of the instruction, saturating out-of-range values.
// 32-bit results, signed or not, are sign-extended into the destination.
func fcvtToInt[T constraints.Float, I int32 | uint32 | int64 | uint64](c *CPU, in *Insn) {
	s := c.State
	v := cvtToInt[I](float64(readF[T](s, in.Rs1)), c.roundingMode(in.Rm))
	if sizeOf[I]() == 4 {
		s.X[in.Rd] = sext32(uint64(v))
		return
	}
	s.X[in.Rd] = uint64(v)
}

// fcvtFromInt converts an integer register, rounding to nearest even.
func fcvtFromInt[T constraints.Float, I int32 | uint32 | int64 | uint64](c *CPU, in *Insn) {
	s := c.State
	writeF(s, in.Rd, T(I(s.X[in.Rs1])))
}

func fcvtFloat[From, To constraints.Float](c *CPU, in *Insn) {
	s := c.State
	writeF(s, in.Rd, To(readF[From](s, in.Rs1)))
}

// fmv.x.w sign-extends the low word of the raw payload
func fmvToInt[T constraints.Float](c *CPU, in *Insn) {
	s := c.State
	if isSingle[T]() {
		s.X[in.Rd] = sext32(uint64(s.F[in.Rs1].Word()))
		return
	}
	s.X[in.Rd] = uint64(s.F[in.Rs1])
}

func fmvFromInt[T constraints.Float](c *CPU, in *Insn) {
	s := c.State
	writeFBits[T](s, in.Rd, s.X[in.Rs1])
}
