package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/internal/report"
	"github.com/ShayCichocki/fractal/internal/state"
)

var (
	historySession string
	historyLimit   int
	historyOutput  string
	historyPurge   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	Long: `List past runs, newest first.

Use 'fractal show <id>' with any unique ID prefix to print a run in full.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "Only runs of this session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "text", "Output format: text, json, yaml")
	historyCmd.Flags().StringVar(&historyPurge, "purge-older-than", "", "Delete runs older than this duration (e.g. 720h) instead of listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(historyOutput)
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

	if historyPurge != "" {
		return purgeHistory(db, historyPurge)
	}

	runs, err := db.ListRuns(cmd.Context(), state.RunFilter{SessionID: historySession, Limit: historyLimit})
	if err != nil {
		return err
	}
	if len(runs) == 0 && format == report.FormatText {
		fmt.Println("No runs recorded yet. Run 'fractal run <query>' to start.")
		return nil
	}
	return report.WriteRuns(os.Stdout, runs, format)
}

func purgeHistory(db *state.DB, olderThan string) error {
	d, err := parseAge(olderThan)
	if err != nil {
		return err
	}
	n, err := db.PurgeOldRuns(d)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d runs older than %s\n", n, olderThan)
	return nil
}
