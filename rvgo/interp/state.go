package interp

import (
	"fmt"
	"math"
)

// ExitReason tells the caller why a block of instructions stopped.
type ExitReason uint8

const (
	ExitNone ExitReason = iota
	ExitDirectBranch
	ExitIndirectBranch
	ExitEcall
)

func (r ExitReason) String() string {
	switch r {
	case ExitNone:
		return "none"
	case ExitDirectBranch:
		return "direct-branch"
	case ExitIndirectBranch:
		return "indirect-branch"
	case ExitEcall:
		return "ecall"
	default:
		return fmt.Sprintf("ExitReason(%d)", uint8(r))
	}
}

func (r ExitReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ExitReason) UnmarshalText(text []byte) error {
	for v := ExitNone; v <= ExitEcall; v++ {
		if v.String() == string(text) {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown exit reason %q", text)
}

const (
	boxMask = 0xFFFF_FFFF_0000_0000

	canonicalNaN32 = 0x7FC0_0000
	canonicalNaN64 = 0x7FF8_0000_0000_0000
)

// FReg is the raw 64-bit payload of a floating-point register.
// Single-precision values are NaN-boxed: the upper 32 bits are all ones.
type FReg uint64

// BoxF32 NaN-boxes a single-precision value.
func BoxF32(v float32) FReg {
	return FReg(boxMask | uint64(math.Float32bits(v)))
}

func FromF64(v float64) FReg {
	return FReg(math.Float64bits(v))
}

// Boxed reports whether the register holds a properly NaN-boxed single.
func (r FReg) Boxed() bool {
	return uint64(r)&boxMask == boxMask
}

// F32 reads the register as a single. An improperly boxed payload reads as the canonical NaN.
func (r FReg) F32() float32 {
	if !r.Boxed() {
		return math.Float32frombits(canonicalNaN32)
	}
	return math.Float32frombits(uint32(r))
}

func (r FReg) F64() float64 {
	return math.Float64frombits(uint64(r))
}

// Word is the low 32 bits of the payload, regardless of boxing.
func (r FReg) Word() uint32 {
	return uint32(r)
}

// State is the architectural state of the single hart.
type State struct {
	X [32]uint64 `json:"x"`
	F [32]FReg   `json:"f"`

	PC uint64 `json:"pc"`

	// ReenterPC is where execution continues after the block exited.
	ReenterPC  uint64     `json:"reenterPC"`
	ExitReason ExitReason `json:"exitReason"`

	// frm in bits 7:5, fflags in bits 4:0
	FCSR uint32 `json:"fcsr"`

	LoadReservation uint64 `json:"loadReservation"`

	// Instret counts retired instructions.
	Instret uint64 `json:"instret"`
}

func NewState(entry uint64) *State {
	return &State{PC: entry, ReenterPC: entry, LoadReservation: noReservation}
}

// Resume continues at ReenterPC, the way a caller picks up after handling an exit.
func (s *State) Resume() {
	s.PC = s.ReenterPC
	s.ExitReason = ExitNone
}
