package machine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/rvemu/rvgo/interp"
	"github.com/ethereum-optimism/rvemu/rvgo/mmu"
)

var (
	ErrNoProgram     = errors.New("no program loaded")
	ErrProgramLoaded = errors.New("program already loaded")
)

// Machine ties a guest address space to the CPU that executes in it.
type Machine struct {
	log log.Logger

	mem   *mmu.AddressSpace
	state *interp.State
	cpu   *interp.CPU
	prog  *mmu.Program

	blocks uint64

	// OnBlock, when set, is called after every completed block with the number of blocks run so far.
	OnBlock func(m *Machine)
}

// New reserves memSize bytes of guest address space. A zero memSize reserves mmu.DefaultSize.
func New(memSize uint64, logger log.Logger) (*Machine, error) {
	mem, err := mmu.New(memSize)
	if err != nil {
		return nil, err
	}
	state := interp.NewState(0)
	return &Machine{
		log:   logger,
		mem:   mem,
		state: state,
		cpu:   interp.NewCPU(state, mem),
	}, nil
}

// LoadProgram maps the executable at path into guest memory and points the PC at its entry.
func (m *Machine) LoadProgram(path string) (*mmu.Program, error) {
	if m.prog != nil {
		return nil, ErrProgramLoaded
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program %q: %w", path, err)
	}
	// established mappings stay valid after the file is closed
	defer f.Close()

	prog, err := mmu.LoadELF(f, m.mem)
	if err != nil {
		return nil, fmt.Errorf("failed to load program %q: %w", path, err)
	}
	m.prog = prog
	m.state.PC = prog.Entry
	m.state.ReenterPC = prog.Entry
	m.log.Info("loaded program",
		"path", path,
		"entry", hexutil.Uint64(m.mem.ToHost(prog.Entry)),
		"host alloc", hexutil.Uint64(m.mem.HostAlloc()),
		"segments", len(prog.Segments),
	)
	return prog, nil
}

func (m *Machine) State() *interp.State {
	return m.state
}

func (m *Machine) Memory() *mmu.AddressSpace {
	return m.mem
}

func (m *Machine) Program() *mmu.Program {
	return m.prog
}

// Blocks is the number of blocks completed so far.
func (m *Machine) Blocks() uint64 {
	return m.blocks
}

// Step runs blocks until the guest makes a system call, following branches on the way.
// On return the PC is the instruction after the ecall and the syscall arguments are in the registers.
func (m *Machine) Step(ctx context.Context) (interp.ExitReason, error) {
	if m.prog == nil {
		return interp.ExitNone, ErrNoProgram
	}
	for {
		if m.blocks%100 == 0 { // don't check the context on every block
			if err := ctx.Err(); err != nil {
				return interp.ExitNone, err
			}
		}
		if err := m.cpu.ExecBlock(); err != nil {
			return m.state.ExitReason, err
		}
		m.blocks++
		if m.OnBlock != nil {
			m.OnBlock(m)
		}
		reason := m.state.ExitReason
		m.state.Resume()
		switch reason {
		case interp.ExitDirectBranch, interp.ExitIndirectBranch:
			continue
		case interp.ExitEcall:
			return reason, nil
		default:
			return reason, fmt.Errorf("unexpected block exit %v", reason)
		}
	}
}

// Close releases the guest address space. The machine cannot be used afterwards.
func (m *Machine) Close() error {
	return m.mem.Close()
}
