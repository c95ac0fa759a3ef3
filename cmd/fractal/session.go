package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/pkg/models"
)

var (
	sessionGoal  string
	sessionLimit int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
	Long: `Sessions bind a goal to a series of queries.

Queries run with --session <id> use the session's goal and are grouped
under it in the run history.`,
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session",
	RunE:  runSessionNew,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE:  runSessionList,
}

func init() {
	sessionNewCmd.Flags().StringVarP(&sessionGoal, "goal", "g", "", "Goal shared by the session's queries")
	sessionListCmd.Flags().IntVarP(&sessionLimit, "limit", "n", 20, "Maximum sessions to list")
	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

func runSessionNew(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	goal := sessionGoal
	if goal == "" {
		goal = cfg.Engine.Goal
	}
	if goal == "" {
		goal = models.DefaultGoal
	}
	s := &models.Session{ID: uuid.New().String(), Goal: goal, CreatedAt: time.Now()}
	if err := db.CreateSession(cmd.Context(), s); err != nil {
		return err
	}

	printStatus("✓", fmt.Sprintf("Created session %s", s.ID), color.FgGreen)
	fmt.Printf("  Goal: %s\n", s.Goal)
	fmt.Printf("\nRun queries in it with:\n  fractal run --session %s \"<query>\"\n", s.ID)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.ListSessions(cmd.Context(), sessionLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions. Create one with 'fractal session new --goal \"...\"'.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s ago  %s\n", s.ID, formatDuration(time.Since(s.CreatedAt)), s.Goal)
	}
	return nil
}
