package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "xtree",
		Short:         "Lock-free concurrent binary search tree playground",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(newStressCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
