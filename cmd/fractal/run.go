package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/internal/config"
	"github.com/ShayCichocki/fractal/internal/engine"
	"github.com/ShayCichocki/fractal/internal/report"
	"github.com/ShayCichocki/fractal/internal/signals"
	"github.com/ShayCichocki/fractal/internal/state"
	"github.com/ShayCichocki/fractal/internal/stream"
	"github.com/ShayCichocki/fractal/internal/telemetry"
	"github.com/ShayCichocki/fractal/internal/tui"
)

var (
	runDepth       int
	runWidth       int
	runPolicy      string
	runGoal        string
	runForce       bool
	runQuantum     int
	runSession     string
	runTree        bool
	runTUI         bool
	runOutput      string
	runVerbose     bool
	runQuiet       bool
	runRedisAddr   string
	runMetricsAddr string
	runNoHistory   bool
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Answer a query with a delegation tree",
	Long: `Answer a query with a tree of Claude agents.

The root agent decides whether to answer directly or to split the query
into subtasks. Every child repeats the decision until the depth limit, where
agents must answer. Results are synthesized back up the tree.

With --quantum N the whole tree is run N times independently and the answers
are reconciled into one.

Create .fractal/signals/stop (or run 'fractal stop') to stop a running query;
unfinished agents resolve with an error note and the partial answer is kept.`,
	Example: `  fractal run "Compare the trade-offs of B-trees and LSM trees"
  fractal run --depth 4 --width 2 --policy shrink_divided "Plan a product launch"
  fractal run --quantum 3 --output json "Summarize the causes of the French Revolution"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	runCmd.Flags().IntVarP(&runDepth, "depth", "d", 0, "Tree depth, root included (default from config)")
	runCmd.Flags().IntVarP(&runWidth, "width", "w", 0, "Maximum children per agent (default from config)")
	runCmd.Flags().StringVarP(&runPolicy, "policy", "p", "", "Branching policy: flat, subtract, add, shrink_divided, grow_divided")
	runCmd.Flags().StringVarP(&runGoal, "goal", "g", "", "Overall goal given to every agent")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Force the root agent to delegate")
	runCmd.Flags().IntVarP(&runQuantum, "quantum", "q", 0, "Run the tree N times and reconcile the answers")
	runCmd.Flags().StringVar(&runSession, "session", "", "Execute within a session, using its goal")
	runCmd.Flags().BoolVar(&runTree, "tree", false, "Include the delegation tree in the output")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show live progress in a terminal UI")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "text", "Output format: text, json, yaml")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Include the execution log in text output")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Do not print progress to stderr")
	runCmd.Flags().StringVar(&runRedisAddr, "redis-addr", "", "Publish live events to Redis streams at this address")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics at this address while running")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record the run in the history database")
}

// applyRunFlags copies explicitly set flags over the configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("depth") {
		cfg.Engine.Depth = runDepth
	}
	if flags.Changed("width") {
		cfg.Engine.Width = runWidth
	}
	if flags.Changed("policy") {
		p, ok := branching.ParsePolicy(runPolicy)
		if !ok {
			return fmt.Errorf("unknown policy %q (run 'fractal policies' to list them)", runPolicy)
		}
		cfg.Engine.Policy = string(p)
	}
	if flags.Changed("force") {
		cfg.Engine.ForceDelegation = runForce
	}
	if flags.Changed("quantum") {
		cfg.Engine.QuantumCount = runQuantum
	}
	if flags.Changed("redis-addr") {
		cfg.Stream.RedisAddr = runRedisAddr
	}
	if runTUI && cfg.Logging.File == "" && !cmd.Flags().Changed("log-level") {
		// Log lines on stderr would tear the UI.
		cfg.Logging.Level = "error"
	}
	return cfg.Validate()
}

// newRequest builds the engine request for query from the configuration.
func newRequest(cfg *config.Config, query string) engine.Request {
	return engine.Request{
		ID:     uuid.New().String(),
		Query:  query,
		Depth:  cfg.Engine.Depth,
		Width:  cfg.Engine.Width,
		Policy: cfg.Engine.BranchingPolicy(),
		Goal:   runGoal,
		Options: engine.Options{
			ForceFullDelegation: cfg.Engine.ForceDelegation,
			QuantumEnabled:      cfg.Engine.QuantumCount > 1,
			QuantumCount:        cfg.Engine.QuantumCount,
		},
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	format, err := report.ParseFormat(runOutput)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stopNotify := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stopNotify()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRate:  cfg.Telemetry.SampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	var store *state.DB
	if !runNoHistory {
		store, err = openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	eng, client, err := buildEngine(cfg, logger, engineDeps{store: store, tracer: tp.TracerProvider()})
	if err != nil {
		return err
	}

	req := newRequest(cfg, query)
	if _, err := eng.Validate(req); err != nil {
		return err
	}

	watcher, err := signals.NewWatcher(signalsBase, logger)
	if err != nil {
		logger.Warn("stop signal unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
		var cancelStop context.CancelFunc
		ctx, cancelStop = watcher.Context(ctx)
		defer cancelStop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if runMetricsAddr != "" {
		srv := startMetricsServer(runMetricsAddr, logger)
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
			defer c()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var handlers []engine.EventHandler
	if cfg.Stream.RedisAddr != "" {
		rdb, err := stream.Dial(ctx, cfg.Stream.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		pub := stream.NewPublisher(rdb, cfg.Stream.MaxLen, logger)
		handlers = append(handlers, pub.Handler(req.ID))
		fmt.Fprintf(os.Stderr, "Streaming events to %s\n", stream.Key(req.ID))
	}
	if !runTUI && !runQuiet {
		handlers = append(handlers, progressPrinter(os.Stderr))
	}
	req.Options.OnEvent = engine.Fanout(handlers...)

	execute := func(ctx context.Context, req engine.Request) (*engine.Result, error) {
		if runSession != "" {
			return eng.ExecuteInSession(ctx, runSession, req)
		}
		return eng.Execute(ctx, req)
	}

	var res *engine.Result
	if runTUI {
		res, err = runWithTUI(ctx, cancel, execute, req, logger)
	} else {
		res, err = execute(ctx, req)
	}
	if err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			return fmt.Errorf("%w: %s (create one with 'fractal session new')", err, runSession)
		}
		return err
	}

	if errors.Is(context.Cause(ctx), signals.ErrStopRequested) {
		printStatus("!", "Stopped by signal; the answer is partial", color.FgYellow)
	}

	if runTree && format == report.FormatText {
		fmt.Println(tui.RenderTree(res.Tree.Snapshot()))
	}
	if err := report.Write(os.Stdout, report.FromResult(res, runTree && format != report.FormatText), format, report.Options{Verbose: runVerbose}); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if !runQuiet {
		u := client.Usage()
		fmt.Fprintf(os.Stderr, "\n%s %s in / %s out tokens over %d calls (~$%.4f)\n",
			color.New(color.Faint).Sprint("usage:"),
			formatNumber(int(u.InputTokens)), formatNumber(int(u.OutputTokens)), u.Calls, u.CostUSD)
	}
	return nil
}

// runWithTUI executes the request while a terminal UI follows its events.
func runWithTUI(
	ctx context.Context,
	cancel context.CancelFunc,
	execute func(context.Context, engine.Request) (*engine.Result, error),
	req engine.Request,
	logger *zap.Logger,
) (*engine.Result, error) {
	emitter := engine.NewEventEmitter(256, logger)
	req.Options.OnEvent = engine.Fanout(req.Options.OnEvent, emitter.Handler())

	runs := 1
	if req.Options.QuantumEnabled {
		runs = req.Options.QuantumCount
	}
	app := tui.NewApp(req.Query, req.Goal, runs, cancel)
	program := tui.NewProgram(app, tea.WithOutput(os.Stderr))
	go tui.Forward(program, emitter.Events())

	var (
		res    *engine.Result
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = execute(ctx, req)
		emitter.Close()
		answer := ""
		if res != nil {
			answer = res.FinalAnswer
		}
		program.Send(tui.DoneMsg{Answer: answer, Err: runErr})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("run terminal UI: %w", err)
	}
	<-done
	if dropped := emitter.DroppedCount(); dropped > 0 {
		logger.Debug("terminal UI dropped events", zap.Uint64("dropped", dropped))
	}
	return res, runErr
}

// progressPrinter writes one line per finished agent.
func progressPrinter(w io.Writer) engine.EventHandler {
	done := color.New(color.FgGreen)
	synth := color.New(color.FgCyan)
	dim := color.New(color.Faint)
	return func(e engine.Event) {
		switch e.Type {
		case engine.EventNodeCompleted:
			mark := done.Sprint("✓")
			if e.Delegated {
				mark = synth.Sprint("Σ")
			}
			fmt.Fprintf(w, "%s %s %s %s\n",
				mark,
				dim.Sprintf("[%d/%d]", e.Executed, e.TotalPossible),
				report.PathString(e.Path),
				oneLine(e.Response, 80))
		case engine.EventQuantumRunStarted:
			fmt.Fprintf(w, "%s run %d\n", synth.Sprint("»"), e.Run+1)
		}
	}
}
