package interp

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/holiman/uint256"
	"golang.org/x/exp/constraints"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

func sext32(v uint64) uint64 {
	return uint64(int64(int32(v)))
}

func sizeOf[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Integer helpers

func u64ToU256(v uint64) *uint256.Int {
	return new(uint256.Int).SetUint64(v)
}

func signExtend64To256(v uint64) *uint256.Int {
	out := u64ToU256(v)
	if v&(1<<63) != 0 {
		hi := new(uint256.Int).Not(new(uint256.Int))
		hi.Lsh(hi, 64)
		out.Or(out, hi)
	}
	return out
}

// high64 returns bits 127:64 of the product, which is exact in 256-bit two's complement.
func high64(a, b *uint256.Int) uint64 {
	p := new(uint256.Int).Mul(a, b)
	return p.Rsh(p, 64).Uint64()
}

func mulh(a, b uint64) uint64 {
	return high64(signExtend64To256(a), signExtend64To256(b))
}

func mulhsu(a, b uint64) uint64 {
	return high64(signExtend64To256(a), u64ToU256(b))
}

func mulhu(a, b uint64) uint64 {
	return high64(u64ToU256(a), u64ToU256(b))
}

// Go already defines MIN / -1 == MIN and MIN % -1 == 0, matching the ISA, so only zero divisors need care.

func div[T constraints.Signed](a, b T) T {
	if b == 0 {
		return -1
	}
	return a / b
}

func rem[T constraints.Signed](a, b T) T {
	if b == 0 {
		return a
	}
	return a % b
}

func divu[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return ^T(0)
	}
	return a / b
}

func remu[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return a
	}
	return a % b
}

// asSigned runs a signed operation over the unsigned register representation.
func asSigned[S constraints.Signed, U constraints.Unsigned](f func(a, b S) S) func(a, b U) U {
	return func(a, b U) U {
		return U(f(S(a), S(b)))
	}
}

// intBounds is the representable range of I.
func intBounds[I constraints.Integer]() (lo, hi I) {
	bits := sizeOf[I]() * 8
	if ^I(0) < 0 {
		hi = I(uint64(1)<<(bits-1) - 1)
		lo = -hi - 1
		return lo, hi
	}
	return 0, ^I(0)
}

// Floating-point helpers

func toBits[T constraints.Float](v T) uint64 {
	switch f := any(v).(type) {
	case float32:
		return uint64(math.Float32bits(f))
	case float64:
		return math.Float64bits(f)
	}
	panic(fmt.Errorf("unsupported float type %T", v))
}

func fromBits[T constraints.Float](b uint64) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return T(math.Float32frombits(uint32(b)))
	case float64:
		return T(math.Float64frombits(b))
	}
	panic(fmt.Errorf("unsupported float type %T", zero))
}

func isSingle[T constraints.Float]() bool {
	return sizeOf[T]() == 4
}

func canonicalNaN[T constraints.Float]() uint64 {
	if isSingle[T]() {
		return canonicalNaN32
	}
	return canonicalNaN64
}

func signMask[T constraints.Float]() uint64 {
	if isSingle[T]() {
		return 1 << 31
	}
	return 1 << 63
}

// readFBits returns the raw payload of a register in format T. Unboxed singles read as the canonical NaN.
func readFBits[T constraints.Float](s *State, r uint8) uint64 {
	if isSingle[T]() {
		if !s.F[r].Boxed() {
			return canonicalNaN32
		}
		return uint64(s.F[r].Word())
	}
	return uint64(s.F[r])
}

// writeFBits stores a raw payload in format T, NaN-boxing singles.
func writeFBits[T constraints.Float](s *State, r uint8, b uint64) {
	if isSingle[T]() {
		s.F[r] = FReg(boxMask | (b & 0xFFFF_FFFF))
		return
	}
	s.F[r] = FReg(b)
}

func readF[T constraints.Float](s *State, r uint8) T {
	return fromBits[T](readFBits[T](s, r))
}

// writeF stores an arithmetic result. NaNs are replaced by the canonical NaN.
func writeF[T constraints.Float](s *State, r uint8, v T) {
	if v != v {
		writeFBits[T](s, r, canonicalNaN[T]())
		return
	}
	writeFBits[T](s, r, toBits(v))
}

func fmin[T constraints.Float](a, b T) T {
	switch {
	case a != a:
		return b
	case b != b:
		return a
	case a == 0 && b == 0:
		if math.Signbit(float64(a)) {
			return a
		}
		return b
	case a < b:
		return a
	default:
		return b
	}
}

func fmax[T constraints.Float](a, b T) T {
	switch {
	case a != a:
		return b
	case b != b:
		return a
	case a == 0 && b == 0:
		if math.Signbit(float64(a)) {
			return b
		}
		return a
	case a > b:
		return a
	default:
		return b
	}
}

// fma32 computes a*b+c rounded once to float32. The product of two singles is exact in float64;
// the sum is rounded to odd there, which leaves enough information for the final rounding to be correct.
func fma32(a, b, c float32) float32 {
	p := float64(a) * float64(b)
	d := float64(c)
	sum := p + d
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return float32(sum)
	}
	// two-sum: sum + e == p + d exactly
	bv := sum - p
	e := (p - (sum - bv)) + (d - bv)
	if e != 0 && math.Float64bits(sum)&1 == 0 {
		sum = math.Nextafter(sum, math.Copysign(math.Inf(1), e))
	}
	return float32(sum)
}

// fclass returns the one-hot class mask of a raw payload in format T.
func fclass[T constraints.Float](b uint64) uint64 {
	signPos, fracBits, expMax := uint(63), uint(52), uint64(0x7FF)
	if isSingle[T]() {
		signPos, fracBits, expMax = 31, 23, 0xFF
	}
	exp := (b >> fracBits) & expMax
	frac := b & (1<<fracBits - 1)
	var class uint
	switch {
	case exp == expMax && frac != 0:
		if frac>>(fracBits-1) != 0 {
			return 1 << 9 // quiet NaN
		}
		return 1 << 8 // signaling NaN
	case exp == expMax:
		class = 7
	case exp == 0 && frac == 0:
		class = 4
	case exp == 0:
		class = 5
	default:
		class = 6
	}
	// negative classes mirror the positive ones: -inf is bit 0, -0 is bit 3
	if (b>>signPos)&1 != 0 {
		class = 7 - class
	}
	return 1 << class
}

// roundingMode resolves the dynamic rounding mode from frm.
func (c *CPU) roundingMode(rm uint8) uint8 {
	if rm == riscv.RmDYN {
		rm = uint8(c.State.FCSR>>5) & 7
	}
	if rm > riscv.RmRMM {
		panic(fmt.Errorf("%w: rounding mode %d", ErrIllegalInstruction, rm))
	}
	return rm
}

func roundFloat(v float64, rm uint8) float64 {
	switch rm {
	case riscv.RmRTZ:
		return math.Trunc(v)
	case riscv.RmRDN:
		return math.Floor(v)
	case riscv.RmRUP:
		return math.Ceil(v)
	case riscv.RmRMM:
		return math.Round(v)
	default:
		return math.RoundToEven(v)
	}
}

// cvtToInt rounds v and saturates it into I. NaN converts to the largest value.
func cvtToInt[I constraints.Integer](v float64, rm uint8) I {
	lo, hi := intBounds[I]()
	if v != v {
		return hi
	}
	r := roundFloat(v, rm)
	switch {
	case r <= float64(lo):
		return lo
	case r >= float64(hi):
		return hi
	}
	return I(r)
}
