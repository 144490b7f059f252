package riscv

const (
	SysExit      = 93
	SysExitGroup = 94
)

// ABI register names
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegT0   = 5
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA7   = 17
)

// Floating-point control and status registers, the only CSRs a user-mode program may touch here.
const (
	CsrFflags = 0x001
	CsrFrm    = 0x002
	CsrFcsr   = 0x003
)

// Rounding modes, as encoded in the rm field of floating-point instructions and in frm.
const (
	RmRNE = 0 // round to nearest, ties to even
	RmRTZ = 1 // towards zero
	RmRDN = 2 // down
	RmRUP = 3 // up
	RmRMM = 4 // to nearest, ties to max magnitude
	RmDYN = 7 // use frm
)

// Major opcodes (bits 6:0 of a 32-bit instruction).
const (
	OpcodeLoad    = 0x03
	OpcodeLoadFP  = 0x07
	OpcodeMiscMem = 0x0F
	OpcodeOpImm   = 0x13
	OpcodeAuipc   = 0x17
	OpcodeOpImm32 = 0x1B
	OpcodeStore   = 0x23
	OpcodeStoreFP = 0x27
	OpcodeAmo     = 0x2F
	OpcodeOp      = 0x33
	OpcodeLui     = 0x37
	OpcodeOp32    = 0x3B
	OpcodeMadd    = 0x43
	OpcodeMsub    = 0x47
	OpcodeNmsub   = 0x4B
	OpcodeNmadd   = 0x4F
	OpcodeOpFP    = 0x53
	OpcodeBranch  = 0x63
	OpcodeJalr    = 0x67
	OpcodeJal     = 0x6F
	OpcodeSystem  = 0x73
)
