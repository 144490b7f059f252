package interp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
	"github.com/ethereum-optimism/rvemu/rvgo/test"
)

func decode(t *testing.T, raw uint32) Insn {
	var in Insn
	require.NoError(t, Decode(raw, &in), "decode %08x", raw)
	return in
}

func TestDecodeStandard(t *testing.T) {
	t.Run("addi", func(t *testing.T) {
		in := decode(t, 0xFFF50513) // addi a0, a0, -1
		require.Equal(t, OpADDI, in.Op)
		require.Equal(t, uint8(riscv.RegA0), in.Rd)
		require.Equal(t, uint8(riscv.RegA0), in.Rs1)
		require.Equal(t, int64(-1), in.Imm)
		require.False(t, in.Rvc)
		require.Equal(t, uint64(4), in.Size())
	})
	t.Run("lui", func(t *testing.T) {
		in := decode(t, 0x12345537) // lui a0, 0x12345
		require.Equal(t, OpLUI, in.Op)
		require.Equal(t, int64(0x12345000), in.Imm)
		in = decode(t, test.LUI(1, 0xFFFFF000))
		require.Equal(t, int64(-4096), in.Imm, "U immediate is sign-extended from bit 31")
	})
	t.Run("store", func(t *testing.T) {
		in := decode(t, 0x00113423) // sd ra, 8(sp)
		require.Equal(t, OpSD, in.Op)
		require.Equal(t, uint8(riscv.RegSP), in.Rs1)
		require.Equal(t, uint8(riscv.RegRA), in.Rs2)
		require.Equal(t, int64(8), in.Imm)
		in = decode(t, test.SD(2, 1, -8))
		require.Equal(t, int64(-8), in.Imm)
	})
	t.Run("csr", func(t *testing.T) {
		in := decode(t, 0x00102573) // frflags a0
		require.Equal(t, OpCSRRS, in.Op)
		require.Equal(t, uint16(riscv.CsrFflags), in.Csr)
		require.Equal(t, uint8(0), in.Rs1)
		in = decode(t, test.IType(riscv.OpcodeSystem, 0, 5, 3, riscv.CsrFrm)) // csrrwi x0, frm, 3
		require.Equal(t, OpCSRRWI, in.Op)
		require.Equal(t, int64(3), in.Imm)
	})
	t.Run("fp", func(t *testing.T) {
		in := decode(t, 0x02B57553) // fadd.d fa0, fa0, fa1 (dynamic rounding)
		require.Equal(t, OpFADDD, in.Op)
		require.Equal(t, uint8(riscv.RmDYN), in.Rm)
		in = decode(t, test.R4Type(riscv.OpcodeNmadd, 1, 0, 2, 3, 0, 4))
		require.Equal(t, OpFNMADDS, in.Op)
		require.Equal(t, uint8(4), in.Rs3)
		in = decode(t, test.RType(riscv.OpcodeOpFP, 5, 1, 6, 3, 0x61)) // fcvt.lu.d t0, ft6, rtz
		require.Equal(t, OpFCVTLUD, in.Op)
		require.Equal(t, uint8(riscv.RmRTZ), in.Rm)
	})
	t.Run("atomics", func(t *testing.T) {
		require.Equal(t, OpAMOADDW, decode(t, 0x00B6252F).Op) // amoadd.w a0, a1, (a2)
		require.Equal(t, OpLRD, decode(t, 0x1005B52F).Op)     // lr.d a0, (a1)
		require.Equal(t, OpAMOMAXUD, decode(t, test.RType(riscv.OpcodeAmo, 1, 3, 2, 3, 0x1c<<2|3)).Op, "aq/rl bits are ignored")
	})
	t.Run("system", func(t *testing.T) {
		require.Equal(t, OpECALL, decode(t, 0x00000073).Op)
		require.Equal(t, OpEBREAK, decode(t, 0x00100073).Op)
		require.Equal(t, OpFENCE, decode(t, 0x0FF0000F).Op)
	})
}

func TestDecodeBranchImmediates(t *testing.T) {
	for _, imm := range []int32{-4096, -4, 2, 8, 2046, 4094} {
		t.Run(fmt.Sprintf("b%d", imm), func(t *testing.T) {
			in := decode(t, test.BNE(1, 2, imm))
			require.Equal(t, OpBNE, in.Op)
			require.Equal(t, int64(imm), in.Imm)
		})
	}
	for _, imm := range []int32{-1 << 20, -2, 4, 2048, 1<<20 - 2} {
		t.Run(fmt.Sprintf("j%d", imm), func(t *testing.T) {
			in := decode(t, test.JAL(1, imm))
			require.Equal(t, OpJAL, in.Op)
			require.Equal(t, int64(imm), in.Imm)
		})
	}
}

func TestDecodeCompressed(t *testing.T) {
	cases := []struct {
		name string
		raw  uint16
		want Insn
	}{
		{"c.li a0, 1", 0x4505, Insn{Op: OpADDI, Rd: 10, Rs1: 0, Imm: 1}},
		{"c.addi sp, -16", 0x1141, Insn{Op: OpADDI, Rd: 2, Rs1: 2, Imm: -16}},
		{"c.addi16sp -16", 0x717D, Insn{Op: OpADDI, Rd: 2, Rs1: 2, Imm: -16}},
		{"c.nop", 0x0001, Insn{Op: OpADDI}},
		{"c.mv a0, a1", 0x852E, Insn{Op: OpADD, Rd: 10, Rs1: 0, Rs2: 11}},
		{"c.ret", 0x8082, Insn{Op: OpJALR, Rd: 0, Rs1: 1}},
		{"c.ldsp ra, 8(sp)", 0x60A2, Insn{Op: OpLD, Rd: 1, Rs1: 2, Imm: 8}},
		{"c.sdsp ra, 8(sp)", 0xE406, Insn{Op: OpSD, Rs1: 2, Rs2: 1, Imm: 8}},
		{"c.lw a0, 4(a1)", 0x41C8, Insn{Op: OpLW, Rd: 10, Rs1: 11, Imm: 4}},
		{"c.and s0, s1", 0x8C65, Insn{Op: OpAND, Rd: 8, Rs1: 8, Rs2: 9}},
		{"c.j 0", 0xA001, Insn{Op: OpJAL}},
		{"c.ebreak", 0x9002, Insn{Op: OpEBREAK}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.want.Rvc = true
			in := decode(t, uint32(tc.raw))
			require.Equal(t, tc.want, in)
			require.Equal(t, uint64(2), in.Size())
		})
	}
}

func TestDecodeCompressedUpperHalfIgnored(t *testing.T) {
	// the fetch of a compressed instruction may carry the next half-word along
	in := decode(t, 0xFFFF_4505)
	require.True(t, in.Rvc)
	require.Equal(t, int64(1), in.Imm)
}

func TestDecodeIllegal(t *testing.T) {
	for _, raw := range []uint32{
		0x0000,     // defined illegal
		0x30200073, // mret
		0x10500073, // wfi
		0x0000007F, // reserved major opcode
		0x8000,     // reserved compressed encoding, quadrant 0 funct3 100
		0x6101,     // c.addi16sp with a zero immediate
	} {
		var in Insn
		err := Decode(raw, &in)
		require.ErrorIs(t, err, ErrIllegalInstruction, "raw %08x", raw)
	}
}

func TestOpNames(t *testing.T) {
	for op := Op(0); op < numOps; op++ {
		require.NotEmpty(t, opNames[op], "op %d has no name", op)
	}
	require.Equal(t, "fcvt.wu.d", OpFCVTWUD.String())
	require.Equal(t, "Op(255)", Op(255).String())
}
