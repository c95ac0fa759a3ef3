package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the query running in this directory",
	Long: `Write the stop signal file watched by 'fractal run'.

Unfinished agents resolve with an error note and the partial answer is
printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := signals.SendStop(signalsBase); err != nil {
			return fmt.Errorf("send stop signal: %w", err)
		}
		fmt.Println("Stop signal sent.")
		return nil
	},
}
