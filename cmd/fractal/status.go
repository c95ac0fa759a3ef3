package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/internal/config"
	"github.com/ShayCichocki/fractal/internal/engine"
	"github.com/ShayCichocki/fractal/internal/report"
	"github.com/ShayCichocki/fractal/internal/signals"
	"github.com/ShayCichocki/fractal/internal/state"
	"github.com/ShayCichocki/fractal/internal/stream"
)

var statusRun string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, recent sessions and live progress",
	Long: `Display the state of fractal.

Shows:
  - Where the API key and config files come from
  - The configured tree shape and its agent count
  - Recent sessions and their latest run
  - Live progress of a run streamed to Redis (--run <id>)`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRun, "run", "", "Show live progress of a run streamed to Redis")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if statusRun != "" {
		return displayLiveRun(cmd.Context(), cfg, statusRun)
	}

	displayConfig(cfg)
	fmt.Println()

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = config.DefaultStoragePath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs yet. Run 'fractal run <query>' to start.")
		return nil
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return displayRecentSessions(cmd.Context(), db)
}

func displayConfig(cfg *config.Config) {
	source := config.GetAPIKeySource(cfg)
	switch source {
	case config.KeySourceNone:
		printStatus("✗", "No API key (set ANTHROPIC_API_KEY)", color.FgRed)
	case config.KeySourceBedrock:
		printStatus("✓", fmt.Sprintf("AWS Bedrock (%s)", cfg.Anthropic.AWSRegion), color.FgGreen)
	default:
		key, _ := config.GetAPIKey(cfg)
		printStatus("✓", fmt.Sprintf("API key %s from %s", config.MaskAPIKey(key), source), color.FgGreen)
	}

	userConfig := config.GetUserConfigPath()
	if _, err := os.Stat(userConfig); err == nil {
		fmt.Printf("  User config:    %s\n", userConfig)
	}
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("  Project config: %s\n", project)
	}

	e := cfg.Engine
	policy := e.BranchingPolicy()
	total := branching.TotalAgents(e.Depth, e.Width, policy)
	fmt.Printf("  Model:          %s\n", cfg.Anthropic.Model)
	fmt.Printf("  Tree:           depth %d, width %d, %s (%s agents max)\n", e.Depth, e.Width, policy, formatNumber(total))
	if e.QuantumCount > 1 {
		fmt.Printf("  Quantum runs:   %d\n", e.QuantumCount)
	}
	if _, err := os.Stat(filepath.Join(signals.Dir(signalsBase), signals.StopFile)); err == nil {
		printStatus("!", "Stop signal pending in "+signals.Dir(signalsBase), color.FgYellow)
	}
}

func displayRecentSessions(ctx context.Context, db *state.DB) error {
	sessions, err := db.ListSessions(ctx, 5)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) > 0 {
		fmt.Println("Recent Sessions:")
		for _, s := range sessions {
			fmt.Printf("  %s  %s  (%s ago)\n", report.ShortID(s.ID), s.Goal, formatDuration(time.Since(s.CreatedAt)))
			latest, err := db.LatestRun(ctx, s.ID)
			if err != nil {
				return err
			}
			if latest != nil {
				fmt.Printf("      last run %s: %s\n", report.ShortID(latest.ID), oneLine(latest.Query, 60))
			}
		}
		fmt.Println()
	}

	runs, err := db.ListRuns(ctx, state.RunFilter{Limit: 5})
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs yet. Run 'fractal run <query>' to start.")
		return nil
	}
	fmt.Println("Recent Runs:")
	return report.WriteRuns(os.Stdout, runs, report.FormatText)
}

// displayLiveRun rebuilds a run's progress from its Redis event stream.
func displayLiveRun(ctx context.Context, cfg *config.Config, runID string) error {
	if cfg.Stream.RedisAddr == "" {
		return fmt.Errorf("stream.redis_addr is not configured")
	}
	rdb, err := stream.Dial(ctx, cfg.Stream.RedisAddr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	events, err := stream.NewPublisher(rdb, cfg.Stream.MaxLen, nil).Replay(ctx, runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events for run %s", runID)
	}

	p := summarizeEvents(events)
	fmt.Printf("Run %s\n", runID)
	fmt.Printf("  Agents:  %d of %d executed\n", p.executed, p.totalPossible)
	fmt.Printf("  Updated: %s ago\n", formatDuration(time.Since(p.last)))
	if len(p.active) == 0 {
		fmt.Println("  No agents running")
		return nil
	}
	fmt.Println("  Running:")
	for _, path := range p.active {
		fmt.Printf("    %s\n", path)
	}
	return nil
}

type liveProgress struct {
	executed      int
	totalPossible int
	active        []string
	last          time.Time
}

func summarizeEvents(events []engine.Event) liveProgress {
	var p liveProgress
	running := make(map[string]bool)
	for _, e := range events {
		key := fmt.Sprintf("run %d %s", e.Run+1, report.PathString(e.Path))
		switch e.Type {
		case engine.EventNodeStarted:
			running[key] = true
		case engine.EventNodeCompleted:
			delete(running, key)
		default:
			continue
		}
		p.executed = e.Executed
		p.totalPossible = e.TotalPossible
		p.last = e.Timestamp
	}
	for k := range running {
		p.active = append(p.active, k)
	}
	sort.Strings(p.active)
	return p
}
