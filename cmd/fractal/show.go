package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/internal/report"
)

var (
	showOutput string
	showQuiet  bool
)

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a recorded run",
	Long: `Print a recorded run with its execution log.

The run ID may be abbreviated to any unique prefix, as printed by
'fractal history'.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "text", "Output format: text, json, yaml")
	showCmd.Flags().BoolVar(&showQuiet, "answer-only", false, "Omit the execution log in text output")
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no run matches %q", args[0])
	}
	return report.Write(os.Stdout, report.FromRecord(run), format, report.Options{Verbose: !showQuiet})
}
