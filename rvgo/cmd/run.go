package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pkg/profile"

	cannon "github.com/ethereum-optimism/optimism/cannon/cmd"
	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/rvemu/rvgo/machine"
	"github.com/ethereum-optimism/rvemu/rvgo/riscv"
)

var OutFilePerm = os.FileMode(0o755)

func Run(ctx *cli.Context) error {
	if ctx.Bool(cannon.RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	l, err := loggerFromFlags(ctx)
	if err != nil {
		return err
	}
	m, _, err := newMachine(ctx, l)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			l.Error("failed to release guest memory", "err", err)
		}
	}()

	infoAt := ctx.Generic(InfoAtFlag.Name).(*BlockMatcherFlag).Matcher()
	state := m.State()
	start := time.Now()
	m.OnBlock = func(m *machine.Machine) {
		blocks := m.Blocks()
		if !infoAt(blocks) {
			return
		}
		delta := time.Since(start)
		l.Info("processing",
			"blocks", blocks,
			"instret", state.Instret,
			"pc", HexU64(state.PC),
			"exit", state.ExitReason,
			"next", HexU64(state.ReenterPC),
			"ips", float64(state.Instret)/(float64(delta)/float64(time.Second)),
		)
	}

	if _, err := m.Step(ctx.Context); err != nil {
		return fmt.Errorf("failed at block %d (PC: %016x): %w", m.Blocks(), state.PC, err)
	}
	l.Info("ecall",
		"syscall", state.X[riscv.RegA7],
		"a0", HexU64(state.X[riscv.RegA0]),
		"pc", HexU64(state.PC),
		"instret", state.Instret,
		"blocks", m.Blocks(),
	)

	if err := jsonutil.WriteJSON(ctx.Path(OutputFlag.Name), state, OutFilePerm); err != nil {
		return fmt.Errorf("failed to write state output: %w", err)
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run an RV64 program until its first system call",
	Description: "Load an RV64 ELF executable, execute it block by block until it makes a system call, and output the CPU state.",
	Action:      Run,
	Flags: []cli.Flag{
		PathFlag,
		OutputFlag,
		MemSizeFlag,
		InfoAtFlag,
		cannon.RunPProfCPU,
		LogLevelFlag,
	},
}
