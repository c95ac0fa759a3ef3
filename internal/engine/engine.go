// Package engine runs a query across a tree of reasoning agents.
//
// Each agent either answers its task or splits it into subtasks for child
// agents, down to the configured depth. Children run concurrently and their
// answers are synthesized bottom-up into one response. In quantum mode
// several independent trees answer the same query and a final call
// reconciles their answers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/internal/oracle"
	"github.com/ShayCichocki/fractal/internal/trace"
	"github.com/ShayCichocki/fractal/internal/tree"
	"github.com/ShayCichocki/fractal/pkg/models"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrExecutionNotFound is returned by Status when a session has not run
	// any query yet.
	ErrExecutionNotFound = errors.New("no execution for session")
	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTreeTooLarge is returned when the expanded tree exceeds the
	// configured agent limit.
	ErrTreeTooLarge = errors.New("tree too large")

	errNoReconciler = errors.New("no reconciler configured")
	errOraclePanic  = errors.New("oracle panicked")
)

// Options are the per-request execution switches.
type Options struct {
	// ForceFullDelegation requires the root to split into exactly its
	// allowed child count.
	ForceFullDelegation bool
	// QuantumEnabled runs QuantumCount independent trees.
	QuantumEnabled bool
	QuantumCount   int
	// OnEvent receives live progress. It may be nil.
	OnEvent EventHandler
}

// Request is one query to execute.
type Request struct {
	// ID names the result. A random ID is generated when empty.
	ID      string
	Query   string
	Depth   int
	Width   int
	Policy  branching.Policy
	Goal    string
	Options Options
}

// runs returns the number of independent trees the request asks for.
func (r Request) runs() int {
	if r.Options.QuantumEnabled && r.Options.QuantumCount > 1 {
		return r.Options.QuantumCount
	}
	return 1
}

// RunOutcome is the result of one tree walk.
type RunOutcome struct {
	Index  int
	Answer string
	Tree   *tree.Tree
	Trace  *trace.Trace
}

// Result is the outcome of Execute.
type Result struct {
	ID          string
	SessionID   string
	Query       string
	Goal        string
	FinalAnswer string
	// Tree and Trace belong to the first run.
	Tree                *tree.Tree
	Trace               *trace.Trace
	Runs                []RunOutcome
	TotalPossibleAgents int
	ExecutedAgents      int
	StartedAt           time.Time
	CompletedAt         time.Time
}

// QuantumRuns returns the number of independent runs.
func (r *Result) QuantumRuns() int {
	return len(r.Runs)
}

// Record converts the result into its persisted form.
func (r *Result) Record() *models.RunRecord {
	rec := &models.RunRecord{
		ID:                  r.ID,
		SessionID:           r.SessionID,
		Query:               r.Query,
		Goal:                r.Goal,
		Depth:               r.Tree.Depth(),
		Width:               r.Tree.Width(),
		Policy:              r.Tree.Policy().String(),
		QuantumRuns:         len(r.Runs),
		TotalPossibleAgents: r.TotalPossibleAgents,
		ExecutedAgents:      r.ExecutedAgents,
		FinalAnswer:         r.FinalAnswer,
		StartedAt:           r.StartedAt,
		CompletedAt:         r.CompletedAt,
	}
	for _, run := range r.Runs {
		snap := run.Trace.Snapshot()
		rec.Delegated = rec.Delegated || snap.DidDelegate
		for _, e := range snap.Log {
			rec.Entries = append(rec.Entries, models.RunEntry{Run: run.Index, LogEntry: e})
		}
	}
	return rec
}

// Engine executes queries. It is safe for concurrent use.
type Engine struct {
	tasks  oracle.TaskOracle
	synth  oracle.SynthesisOracle
	opts   engineOptions
	logger *zap.Logger

	mu     sync.RWMutex
	active map[string]*trace.Trace
}

// New creates an engine over the given decision and synthesis oracles.
func New(tasks oracle.TaskOracle, synth oracle.SynthesisOracle, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		tasks:  tasks,
		synth:  synth,
		opts:   o,
		logger: o.logger.With(zap.String("component", "engine")),
		active: make(map[string]*trace.Trace),
	}
}

// CreateSession starts a session bound to goal. An empty goal uses
// models.DefaultGoal.
func (e *Engine) CreateSession(ctx context.Context, goal string) (*models.Session, error) {
	if strings.TrimSpace(goal) == "" {
		goal = models.DefaultGoal
	}
	s := &models.Session{
		ID:        uuid.New().String(),
		Goal:      goal,
		CreatedAt: time.Now(),
	}
	if err := e.opts.sessions.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	e.logger.Info("session created", zap.String("session_id", s.ID), zap.String("goal", goal))
	return s, nil
}

// ExecuteInSession runs req with the goal of the given session.
func (e *Engine) ExecuteInSession(ctx context.Context, sessionID string, req Request) (*Result, error) {
	s, err := e.opts.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	req.Goal = s.Goal
	return e.execute(ctx, s.ID, req)
}

// Execute runs one query outside of any session.
func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	return e.execute(ctx, "", req)
}

// Status returns the live status of the session's current or last run.
func (e *Engine) Status(ctx context.Context, sessionID string) (trace.Status, error) {
	s, err := e.opts.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return trace.Status{}, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return trace.Status{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	e.mu.RLock()
	tr, ok := e.active[sessionID]
	e.mu.RUnlock()
	if !ok {
		return trace.Status{}, fmt.Errorf("%w: %s", ErrExecutionNotFound, sessionID)
	}
	return tr.Status(), nil
}

// Validate checks a request and returns the per-run tree size.
func (e *Engine) Validate(req Request) (int, error) {
	if strings.TrimSpace(req.Query) == "" {
		return 0, fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	if req.Depth < 1 {
		return 0, fmt.Errorf("%w: depth must be at least 1, got %d", ErrInvalidRequest, req.Depth)
	}
	if req.Width < 1 {
		return 0, fmt.Errorf("%w: width must be at least 1, got %d", ErrInvalidRequest, req.Width)
	}
	if req.Options.QuantumEnabled && req.Options.QuantumCount < 1 {
		return 0, fmt.Errorf("%w: quantum count must be at least 1, got %d", ErrInvalidRequest, req.Options.QuantumCount)
	}

	perRun := branching.TotalAgents(req.Depth, req.Width, req.Policy)
	if perRun == math.MaxInt {
		return 0, fmt.Errorf("%w: depth %d, width %d overflows the agent count",
			ErrTreeTooLarge, req.Depth, req.Width)
	}
	runs := req.runs()
	if limit := e.opts.maxAgents; limit > 0 && perRun > limit/runs {
		return 0, fmt.Errorf("%w: %d runs of %d agents, limit %d",
			ErrTreeTooLarge, runs, perRun, limit)
	}
	return perRun, nil
}

func (e *Engine) execute(ctx context.Context, sessionID string, req Request) (*Result, error) {
	if !req.Policy.Valid() {
		e.logger.Warn("unknown branching policy, using flat", zap.String("policy", string(req.Policy)))
		req.Policy = branching.Flat
	}
	if _, err := e.Validate(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Goal) == "" {
		req.Goal = e.opts.defaultGoal
	}
	if req.Goal == "" {
		req.Goal = models.DefaultGoal
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	res := &Result{
		ID:        req.ID,
		SessionID: sessionID,
		Query:     req.Query,
		Goal:      req.Goal,
		StartedAt: time.Now(),
	}

	ctx, span := e.opts.tracer.Start(ctx, "fractal.execute", oteltrace.WithAttributes(
		attribute.String("fractal.run_id", res.ID),
		attribute.Int("fractal.depth", req.Depth),
		attribute.Int("fractal.width", req.Width),
		attribute.String("fractal.policy", req.Policy.String()),
		attribute.Int("fractal.runs", req.runs()),
	))
	defer span.End()

	log := e.logger.With(zap.String("run_id", res.ID))
	log.Info("executing query",
		zap.Int("depth", req.Depth),
		zap.Int("width", req.Width),
		zap.String("policy", req.Policy.String()),
		zap.Int("runs", req.runs()),
		zap.Bool("force_delegation", req.Options.ForceFullDelegation),
	)

	var err error
	if req.runs() > 1 {
		RunsTotal.WithLabelValues("quantum").Inc()
		err = e.executeQuantum(ctx, sessionID, req, res)
	} else {
		RunsTotal.WithLabelValues("single").Inc()
		var run RunOutcome
		run, err = e.runOnce(ctx, sessionID, req, 0)
		if err == nil {
			res.Runs = []RunOutcome{run}
			res.FinalAnswer = run.Answer
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res.Tree = res.Runs[0].Tree
	res.Trace = res.Runs[0].Trace
	for _, run := range res.Runs {
		res.TotalPossibleAgents += run.Trace.TotalPossible()
		res.ExecutedAgents += run.Trace.Executed()
	}
	res.CompletedAt = time.Now()
	RunDuration.Observe(res.CompletedAt.Sub(res.StartedAt).Seconds())

	span.SetAttributes(attribute.Int("fractal.executed_agents", res.ExecutedAgents))
	log.Info("query completed",
		zap.Int("executed_agents", res.ExecutedAgents),
		zap.Int("total_possible_agents", res.TotalPossibleAgents),
		zap.Duration("duration", res.CompletedAt.Sub(res.StartedAt)),
	)

	if e.opts.recorder != nil {
		// A stopped run still has a partial answer worth keeping.
		if err := e.opts.recorder.SaveRun(context.WithoutCancel(ctx), res.Record()); err != nil {
			log.Warn("failed to record run", zap.Error(err))
		}
	}
	return res, nil
}

// track makes tr the session's live trace.
func (e *Engine) track(sessionID string, tr *trace.Trace) {
	if sessionID == "" {
		return
	}
	e.mu.Lock()
	e.active[sessionID] = tr
	e.mu.Unlock()
}
