package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/rvemu/rvgo/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "rvemu"
	app.Usage = "Interpret statically linked RV64IMAFDC programs in user mode"
	app.Description = "rvemu maps a RISC-V ELF executable into a host-backed guest address space and interprets it " +
		"block by block, stopping at the first system call and reporting the CPU state"
	app.Commands = []*cli.Command{
		cmd.LoadELFCommand,
		cmd.RunCommand,
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			<-c
			cancel()
			fmt.Println("\r\nExiting...")
		}
	}()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			_, _ = fmt.Fprintf(os.Stderr, "command interrupted")
			os.Exit(130)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v", err)
			os.Exit(1)
		}
	}
}
