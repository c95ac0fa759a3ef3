package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/internal/config"
	"github.com/ShayCichocki/fractal/internal/engine"
)

func init() {
	color.NoColor = true
}

// newTestRunCmd binds fresh run flags, resetting the package variables.
func newTestRunCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "run"}
	c.Flags().IntVarP(&runDepth, "depth", "d", 0, "")
	c.Flags().IntVarP(&runWidth, "width", "w", 0, "")
	c.Flags().StringVarP(&runPolicy, "policy", "p", "", "")
	c.Flags().StringVarP(&runGoal, "goal", "g", "", "")
	c.Flags().BoolVar(&runForce, "force", false, "")
	c.Flags().IntVarP(&runQuantum, "quantum", "q", 0, "")
	c.Flags().StringVar(&runRedisAddr, "redis-addr", "", "")
	c.Flags().BoolVar(&runTUI, "tui", false, "")
	c.Flags().String("log-level", "", "")
	if err := c.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return c
}

func TestApplyRunFlags(t *testing.T) {
	cmd := newTestRunCmd(t, "--depth", "4", "--policy", "Shrink-Divided", "--force", "--quantum", "3")
	cfg := config.Default()

	if err := applyRunFlags(cmd, cfg); err != nil {
		t.Fatalf("applyRunFlags: %v", err)
	}
	if cfg.Engine.Depth != 4 {
		t.Errorf("expected depth 4, got %d", cfg.Engine.Depth)
	}
	if cfg.Engine.Width != 3 {
		t.Errorf("expected width from config, got %d", cfg.Engine.Width)
	}
	if cfg.Engine.BranchingPolicy() != branching.ShrinkDivided {
		t.Errorf("expected shrink_divided, got %s", cfg.Engine.Policy)
	}
	if !cfg.Engine.ForceDelegation || cfg.Engine.QuantumCount != 3 {
		t.Errorf("unexpected engine config %+v", cfg.Engine)
	}

	req := newRequest(cfg, "query")
	if req.ID == "" {
		t.Error("expected a request ID")
	}
	if !req.Options.QuantumEnabled || req.Options.QuantumCount != 3 || !req.Options.ForceFullDelegation {
		t.Errorf("unexpected options %+v", req.Options)
	}
	if req.Depth != 4 || req.Policy != branching.ShrinkDivided {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestApplyRunFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown policy", []string{"--policy", "zigzag"}},
		{"zero depth", []string{"--depth", "0"}},
		{"zero quantum", []string{"--quantum", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTestRunCmd(t, tt.args...)
			if err := applyRunFlags(cmd, config.Default()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestApplyRunFlags_TUIQuietsLogger(t *testing.T) {
	cmd := newTestRunCmd(t, "--tui")
	cfg := config.Default()
	if err := applyRunFlags(cmd, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected error level under the TUI, got %s", cfg.Logging.Level)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	h := progressPrinter(&buf)

	h(engine.Event{Type: engine.EventNodeStarted, Path: []int{0}})
	h(engine.Event{Type: engine.EventNodeCompleted, Path: []int{0, 1}, Response: "leaf\nanswer", Executed: 2, TotalPossible: 13})
	h(engine.Event{Type: engine.EventNodeCompleted, Path: []int{}, Response: "final", Delegated: true, Executed: 13, TotalPossible: 13})
	h(engine.Event{Type: engine.EventQuantumRunStarted, Run: 1})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"✓ [2/13] 0.1 leaf answer",
		"Σ [13/13] root final",
		"» run 2",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %q", len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestSummarizeEvents(t *testing.T) {
	now := time.Now()
	events := []engine.Event{
		{Type: engine.EventQuantumRunStarted},
		{Type: engine.EventNodeStarted, Path: []int{}, TotalPossible: 3},
		{Type: engine.EventNodeStarted, Path: []int{0}, TotalPossible: 3},
		{Type: engine.EventNodeStarted, Path: []int{1}, TotalPossible: 3},
		{Type: engine.EventNodeCompleted, Path: []int{1}, Executed: 1, TotalPossible: 3, Timestamp: now},
	}

	p := summarizeEvents(events)
	if p.executed != 1 || p.totalPossible != 3 {
		t.Errorf("unexpected counts %+v", p)
	}
	if len(p.active) != 2 || p.active[0] != "run 1 0" || p.active[1] != "run 1 root" {
		t.Errorf("unexpected active set %v", p.active)
	}
	if !p.last.Equal(now) {
		t.Errorf("expected last update %v, got %v", now, p.last)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		12345:    "12,345",
		1234567:  "1,234,567",
		-4100:    "-4,100",
		100000:   "100,000",
		10000000: "10,000,000",
	}
	for n, want := range tests {
		if got := formatNumber(n); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h15m"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseAge(t *testing.T) {
	if d, err := parseAge("30d"); err != nil || d != 30*24*time.Hour {
		t.Errorf("parseAge(30d) = %v, %v", d, err)
	}
	if d, err := parseAge("90m"); err != nil || d != 90*time.Minute {
		t.Errorf("parseAge(90m) = %v, %v", d, err)
	}
	for _, bad := range []string{"xd", "-5h", "soon"} {
		if _, err := parseAge(bad); err == nil {
			t.Errorf("parseAge(%q) should fail", bad)
		}
	}
}

func TestJoinInts(t *testing.T) {
	if got := joinInts([]int{3, 2, 0}); got != "3 2 0" {
		t.Errorf("joinInts = %q", got)
	}
}

func TestDisplayValue_MasksKey(t *testing.T) {
	if got := displayValue("anthropic.api_key", ""); got != "(not set)" {
		t.Errorf("got %q", got)
	}
	if got := displayValue("anthropic.api_key", "sk-ant-REDACTED"); strings.Contains(got, "abcdefghijklmnop") {
		t.Errorf("key not masked: %q", got)
	}
	if got := displayValue("engine.depth", 3); got != "3" {
		t.Errorf("got %q", got)
	}
}
