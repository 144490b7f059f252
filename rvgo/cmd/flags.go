package cmd

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"

	"github.com/ethereum-optimism/rvemu/rvgo/mmu"
)

const EnvVarPrefix = "RVEMU"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	PathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "Path to the statically linked RV64 ELF executable",
		TakesFile: true,
		Required:  true,
		EnvVars:   prefixEnvVars("PATH"),
	}
	OutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "Output path of the JSON result. Use '-' for stdout, leave empty to skip",
		TakesFile: true,
		EnvVars:   prefixEnvVars("OUTPUT"),
	}
	MemSizeFlag = &cli.Uint64Flag{
		Name:    "mem-size",
		Usage:   "Bytes of host address space reserved for the guest, rounded up to whole pages",
		Value:   mmu.DefaultSize,
		EnvVars: prefixEnvVars("MEM_SIZE"),
	}
	InfoAtFlag = &cli.GenericFlag{
		Name:    "info-at-blocks",
		Usage:   "block pattern to log progress at: 'never' (default), 'always', '=123' at exactly 123 blocks, '%123' for every 123 blocks",
		Value:   new(BlockMatcherFlag),
		EnvVars: prefixEnvVars("INFO_AT_BLOCKS"),
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "The lowest log level that will be output: debug, info, warn or error",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
	}
)
