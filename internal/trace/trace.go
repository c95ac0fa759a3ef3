// Package trace keeps the shared execution record of one query.
//
// A Trace is written by every concurrently running branch of a tree walk and
// read by callers for live status. All mutations go through one mutex.
package trace

import (
	"slices"
	"sync"
	"time"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/pkg/models"
)

// Trace is the per-query execution record.
type Trace struct {
	mu sync.Mutex

	query         string
	depth         int
	width         int
	policy        branching.Policy
	totalPossible int
	startedAt     time.Time

	executed      int
	log           []models.LogEntry
	executionPath [][]int
	current       []int
	didDelegate   bool
	summary       string
	completedAt   time.Time
}

// Snapshot is an immutable copy of a Trace.
type Snapshot struct {
	Query               string            `json:"query" yaml:"query"`
	Depth               int               `json:"depth" yaml:"depth"`
	Width               int               `json:"width" yaml:"width"`
	Policy              branching.Policy  `json:"policy" yaml:"policy"`
	TotalPossibleAgents int               `json:"total_possible_agents" yaml:"total_possible_agents"`
	ExecutedAgents      int               `json:"executed_agents" yaml:"executed_agents"`
	Log                 []models.LogEntry `json:"log" yaml:"log"`
	CurrentlyExecuting  []int             `json:"currently_executing" yaml:"currently_executing"`
	DidDelegate         bool              `json:"did_delegate" yaml:"did_delegate"`
	Summary             string            `json:"summary,omitempty" yaml:"summary,omitempty"`
	StartedAt           time.Time         `json:"started_at" yaml:"started_at"`
	CompletedAt         time.Time         `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Status is the live view served while a query runs.
type Status struct {
	CurrentlyExecuting  []int   `json:"currently_executing"`
	ExecutedAgents      int     `json:"executed_agents"`
	TotalPossibleAgents int     `json:"total_possible_agents"`
	ExecutionPath       [][]int `json:"execution_path"`
	Done                bool    `json:"done"`
}

// New creates a trace for a query. totalPossible is computed by the caller
// from the branching policy before execution starts.
func New(query string, depth, width int, policy branching.Policy, totalPossible int) *Trace {
	return &Trace{
		query:         query,
		depth:         depth,
		width:         width,
		policy:        policy,
		totalPossible: totalPossible,
		startedAt:     time.Now(),
	}
}

// SetExecuting records the path of the node that most recently started.
func (t *Trace) SetExecuting(path []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = slices.Clone(path)
}

// Record appends a completion entry and counts the node as executed. The
// entry's Seq is assigned here, so the log is in completion order.
func (t *Trace) Record(entry models.LogEntry) models.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry.Seq = len(t.log)
	entry.Path = slices.Clone(entry.Path)
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	t.log = append(t.log, entry)
	t.executionPath = append(t.executionPath, entry.Path)
	t.executed++
	return entry
}

// MarkDelegated flags that at least one node split its task. A non-empty
// summary is kept as the root summary.
func (t *Trace) MarkDelegated(summary string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.didDelegate = true
	if summary != "" {
		t.summary = summary
	}
}

// Finish stamps the completion time and clears the executing path.
func (t *Trace) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
	t.completedAt = time.Now()
}

// Executed returns the number of executed agents.
func (t *Trace) Executed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executed
}

// TotalPossible returns the size of the fully expanded tree.
func (t *Trace) TotalPossible() int {
	return t.totalPossible
}

// DidDelegate reports whether any node delegated.
func (t *Trace) DidDelegate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.didDelegate
}

// Snapshot returns a deep copy of the trace.
func (t *Trace) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	log := make([]models.LogEntry, len(t.log))
	for i, e := range t.log {
		e.Path = slices.Clone(e.Path)
		log[i] = e
	}

	return Snapshot{
		Query:               t.query,
		Depth:               t.depth,
		Width:               t.width,
		Policy:              t.policy,
		TotalPossibleAgents: t.totalPossible,
		ExecutedAgents:      t.executed,
		Log:                 log,
		CurrentlyExecuting:  slices.Clone(t.current),
		DidDelegate:         t.didDelegate,
		Summary:             t.summary,
		StartedAt:           t.startedAt,
		CompletedAt:         t.completedAt,
	}
}

// Status returns the live execution status.
func (t *Trace) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := make([][]int, len(t.executionPath))
	for i, p := range t.executionPath {
		path[i] = slices.Clone(p)
	}
	return Status{
		CurrentlyExecuting:  slices.Clone(t.current),
		ExecutedAgents:      t.executed,
		TotalPossibleAgents: t.totalPossible,
		ExecutionPath:       path,
		Done:                !t.completedAt.IsZero(),
	}
}
