package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "fractal",
	Short: "Recursive delegation engine for Claude",
	Long: `fractal answers a query with a tree of Claude agents.

Each agent either answers its task directly or splits it into subtasks for
child agents, up to a bounded depth and width. Child answers are merged back
up the tree until the root produces the final answer.

Branching policies shape the tree:
  flat            every layer uses the full width
  subtract        width decays towards the leaves
  add             width grows towards the leaves
  shrink_divided  width divided by the layer number
  grow_divided    the mirror of shrink_divided

Run 'fractal policies --depth 4 --width 3' to compare their sizes.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/fractal/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(policiesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}
