package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/rvemu/rvgo/machine"
	"github.com/ethereum-optimism/rvemu/rvgo/mmu"
)

type SegmentReport struct {
	Vaddr  hexutil.Uint64 `json:"vaddr"`
	Offset hexutil.Uint64 `json:"offset"`
	Filesz hexutil.Uint64 `json:"filesz"`
	Memsz  hexutil.Uint64 `json:"memsz"`
	Prot   mmu.Prot       `json:"prot"`
}

type RegionReport struct {
	Guest  hexutil.Uint64 `json:"guest"`
	Host   hexutil.Uint64 `json:"host"`
	Length hexutil.Uint64 `json:"length"`
	Prot   mmu.Prot       `json:"prot"`
	Anon   bool           `json:"anon"`
}

// LoadReport describes where a program ended up after loading.
type LoadReport struct {
	Entry     hexutil.Uint64 `json:"entry"`
	HostEntry hexutil.Uint64 `json:"hostEntry"`

	Base       hexutil.Uint64 `json:"base"`
	HostAlloc  hexutil.Uint64 `json:"hostAlloc"`
	GuestAlloc hexutil.Uint64 `json:"guestAlloc"`

	Segments []SegmentReport `json:"segments"`
	Regions  []RegionReport  `json:"regions"`
}

func NewLoadReport(prog *mmu.Program, as *mmu.AddressSpace) *LoadReport {
	out := &LoadReport{
		Entry:      hexutil.Uint64(prog.Entry),
		HostEntry:  hexutil.Uint64(as.ToHost(prog.Entry)),
		Base:       hexutil.Uint64(as.Base()),
		HostAlloc:  hexutil.Uint64(as.HostAlloc()),
		GuestAlloc: hexutil.Uint64(as.GuestAlloc()),
	}
	for _, seg := range prog.Segments {
		out.Segments = append(out.Segments, SegmentReport{
			Vaddr:  hexutil.Uint64(seg.Vaddr),
			Offset: hexutil.Uint64(seg.Offset),
			Filesz: hexutil.Uint64(seg.Filesz),
			Memsz:  hexutil.Uint64(seg.Memsz),
			Prot:   seg.Prot(),
		})
	}
	for _, r := range as.Regions() {
		out.Regions = append(out.Regions, RegionReport{
			Guest:  hexutil.Uint64(r.Guest),
			Host:   hexutil.Uint64(as.ToHost(r.Guest)),
			Length: hexutil.Uint64(r.Length),
			Prot:   r.Prot,
			Anon:   r.Anon,
		})
	}
	return out
}

// newMachine reserves guest memory and loads the program given by the path flag.
func newMachine(ctx *cli.Context, l log.Logger) (*machine.Machine, *mmu.Program, error) {
	m, err := machine.New(ctx.Uint64(MemSizeFlag.Name), l)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create machine: %w", err)
	}
	prog, err := m.LoadProgram(ctx.Path(PathFlag.Name))
	if err != nil {
		if cerr := m.Close(); cerr != nil {
			l.Error("failed to release guest memory", "err", cerr)
		}
		return nil, nil, err
	}
	return m, prog, nil
}

func LoadELF(ctx *cli.Context) error {
	l, err := loggerFromFlags(ctx)
	if err != nil {
		return err
	}
	m, prog, err := newMachine(ctx, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			l.Error("failed to release guest memory", "err", err)
		}
	}()
	if err := jsonutil.WriteJSON(ctx.Path(OutputFlag.Name), NewLoadReport(prog, m.Memory()), OutFilePerm); err != nil {
		return fmt.Errorf("failed to write load report: %w", err)
	}
	return nil
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load an RV64 ELF executable into guest memory",
	Description: "Load an RV64 ELF executable into guest memory and report the entry point, host allocation and mapped segments",
	Action:      LoadELF,
	Flags: []cli.Flag{
		PathFlag,
		OutputFlag,
		MemSizeFlag,
		LogLevelFlag,
	},
}
