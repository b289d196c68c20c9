package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whiteworms",
		Short: "Stochastic simulation of white worms competing with black worms on networks",
		Long: `whiteworms simulates the spread of a malicious (black) worm and a
benevolent (white) worm that patches the hosts it infects, on a network
loaded from an edge list.

It estimates the fraction of hosts that end up protected, runs single
trajectories, sweeps one rate over a grid of values and keeps a history
of runs in a local database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.whiteworms/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newProtectedCmd(),
		newSimulateCmd(),
		newSweepCmd(),
		newRunsCmd(),
		newShowCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}
