package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/fractal/internal/engine"
	"github.com/ShayCichocki/fractal/internal/report"
)

// maxLogLines is the number of activity lines kept on screen.
const maxLogLines = 8

// ProgressState tracks a running query.
type ProgressState struct {
	Query         string
	Goal          string
	Runs          int
	CurrentRun    int
	Executed      int
	TotalPossible int
	// Active maps a node path to the task it is working on.
	Active map[string]string
}

// EventMsg carries one engine event into the program.
type EventMsg struct {
	Event engine.Event
}

// DoneMsg is sent when the query finishes.
type DoneMsg struct {
	Answer string
	Err    error
}

type logLine struct {
	at   time.Time
	path string
	text string
}

// App is the bubbletea model for a running query.
type App struct {
	state    ProgressState
	logs     []logLine
	spinner  spinner.Model
	width    int
	height   int
	quitting bool
	done     bool
	answer   string
	err      error
	onCancel func()

	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	pathStyle     lipgloss.Style
	logStyle      lipgloss.Style
	logTimeStyle  lipgloss.Style
	errorStyle    lipgloss.Style
	doneStyle     lipgloss.Style
	hintStyle     lipgloss.Style
}

// NewApp creates the progress model. onCancel is called when the user
// quits before the query has finished.
func NewApp(query, goal string, runs int, onCancel func()) *App {
	if runs < 1 {
		runs = 1
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &App{
		state: ProgressState{
			Query:  query,
			Goal:   goal,
			Runs:   runs,
			Active: make(map[string]string),
		},
		spinner:  sp,
		onCancel: onCancel,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(10),
		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),
		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		pathStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")),
		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !a.done && a.onCancel != nil {
				a.onCancel()
			}
			a.quitting = !a.done
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)

	case DoneMsg:
		a.done = true
		a.answer = msg.Answer
		a.err = msg.Err
		a.state.Active = make(map[string]string)
	}

	return a, nil
}

func (a *App) apply(e engine.Event) {
	path := report.PathString(e.Path)
	if e.Type == engine.EventNodeStarted || e.Type == engine.EventNodeCompleted {
		path = a.runPrefix(e.Run) + path
		a.state.Executed = e.Executed
		a.state.TotalPossible = e.TotalPossible
	}

	switch e.Type {
	case engine.EventNodeStarted:
		a.state.Active[path] = e.Task
	case engine.EventNodeCompleted:
		delete(a.state.Active, path)
		text := e.Response
		if e.Delegated {
			text = "synthesized: " + text
		}
		a.log(e.Timestamp, path, text)
	case engine.EventQuantumRunStarted:
		a.state.CurrentRun = e.Run
		a.log(e.Timestamp, fmt.Sprintf("run %d", e.Run+1), "started")
	case engine.EventQuantumRunCompleted:
		a.log(e.Timestamp, fmt.Sprintf("run %d", e.Run+1), "completed")
	}
}

func (a *App) runPrefix(run int) string {
	if a.state.Runs <= 1 {
		return ""
	}
	return fmt.Sprintf("%d:", run+1)
}

func (a *App) log(at time.Time, path, text string) {
	if at.IsZero() {
		at = time.Now()
	}
	text = strings.ReplaceAll(text, "\n", " ")
	a.logs = append(a.logs, logLine{at: at, path: path, text: text})
	if len(a.logs) > maxLogLines {
		a.logs = a.logs[len(a.logs)-maxLogLines:]
	}
}

// State returns the current progress.
func (a *App) State() ProgressState {
	return a.state
}

// Done reports whether the query has finished.
func (a *App) Done() bool {
	return a.done
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Query cancelled.\n"
	}

	var b strings.Builder
	b.WriteString(a.headerStyle.Render("fractal"))
	b.WriteString("\n\n")

	b.WriteString(a.labelStyle.Render("Query:"))
	b.WriteString(a.valueStyle.Render(a.fit(a.state.Query, 10)))
	b.WriteString("\n")
	b.WriteString(a.labelStyle.Render("Goal:"))
	b.WriteString(a.fit(a.state.Goal, 10))
	b.WriteString("\n")
	if a.state.Runs > 1 {
		b.WriteString(a.labelStyle.Render("Run:"))
		b.WriteString(fmt.Sprintf("%d of %d", a.state.CurrentRun+1, a.state.Runs))
		b.WriteString("\n")
	}

	pct := 0.0
	if a.state.TotalPossible > 0 {
		pct = float64(a.state.Executed) / float64(a.state.TotalPossible) * 100
	}
	b.WriteString(a.labelStyle.Render("Agents:"))
	b.WriteString(fmt.Sprintf("%d of %d", a.state.Executed, a.state.TotalPossible))
	b.WriteString("\n")
	b.WriteString(a.renderProgressBar(pct, 30))
	b.WriteString("\n")

	if len(a.state.Active) > 0 {
		b.WriteString("\n")
		paths := make([]string, 0, len(a.state.Active))
		for p := range a.state.Active {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(&b, "  %s %s %s\n", a.spinner.View(), a.pathStyle.Render(p), a.fit(a.state.Active[p], len(p)+6))
		}
	}

	if len(a.logs) > 0 {
		b.WriteString("\n")
		for _, l := range a.logs {
			fmt.Fprintf(&b, "  %s %s %s\n",
				a.logTimeStyle.Render(l.at.Format("15:04:05")),
				a.pathStyle.Render(l.path),
				a.logStyle.Render(a.fit(l.text, len(l.path)+12)))
		}
	}

	b.WriteString("\n")
	switch {
	case a.done && a.err != nil:
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)))
	case a.done:
		b.WriteString(a.doneStyle.Render("Done. Press q to exit."))
	default:
		b.WriteString(a.hintStyle.Render("Press q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// fit clips s to the terminal width minus used columns.
func (a *App) fit(s string, used int) string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	limit := width - used - 2
	if limit < 10 {
		limit = 10
	}
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

func (a *App) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	filled := int(pct / 100 * float64(width))
	bar := a.progressFull.Render(strings.Repeat("█", filled)) +
		a.progressEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

// NewProgram creates a program for the app.
func NewProgram(app *App, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(app, opts...)
}

// Forward sends every event from events into the program until the channel
// is closed.
func Forward(p *tea.Program, events <-chan engine.Event) {
	for e := range events {
		p.Send(EventMsg{Event: e})
	}
}
