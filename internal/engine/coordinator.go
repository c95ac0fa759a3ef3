package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/internal/oracle"
	"github.com/ShayCichocki/fractal/internal/trace"
	"github.com/ShayCichocki/fractal/internal/tree"
	"github.com/ShayCichocki/fractal/pkg/models"
)

// noResponse replaces an empty direct answer.
const noResponse = "No response generated."

// walker executes one tree. All state shared between branches lives in the
// tree and the trace, both of which lock internally.
type walker struct {
	e      *Engine
	req    Request
	index  int
	tree   *tree.Tree
	trace  *trace.Trace
	counts []int
	logger *zap.Logger
}

// runOnce builds a fresh tree for req and executes it from the root.
func (e *Engine) runOnce(ctx context.Context, sessionID string, req Request, index int) (RunOutcome, error) {
	t, err := tree.Build(req.Depth, req.Width, req.Policy, req.Query)
	if err != nil {
		return RunOutcome{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	tr := trace.New(req.Query, req.Depth, req.Width, req.Policy,
		branching.TotalAgents(req.Depth, req.Width, req.Policy))
	e.track(sessionID, tr)

	w := &walker{
		e:      e,
		req:    req,
		index:  index,
		tree:   t,
		trace:  tr,
		counts: branching.ChildCounts(req.Depth, req.Width, req.Policy),
		logger: e.logger.With(zap.Int("run", index)),
	}
	answer := w.execute(ctx, t.Root())
	tr.Finish()

	return RunOutcome{Index: index, Answer: answer, Tree: t, Trace: tr}, nil
}

// execute runs node id to completion and returns its final response. It
// never fails: oracle errors become the node's answer.
func (w *walker) execute(ctx context.Context, id tree.NodeID) string {
	node, _ := w.tree.Node(id)
	allowed := w.counts[node.Layer]
	role := models.RoleFor(node.Layer, allowed)

	ctx, span := w.e.opts.tracer.Start(ctx, "fractal.node", oteltrace.WithAttributes(
		attribute.Int("fractal.run", w.index),
		attribute.Int("fractal.layer", node.Layer),
		attribute.Int("fractal.position", node.Position),
		attribute.String("fractal.role", string(role)),
		attribute.Int("fractal.allowed_children", allowed),
	))
	defer span.End()

	w.tree.MarkExecuting(id)
	w.trace.SetExecuting(node.Path)
	w.emit(Event{Type: EventNodeStarted, Layer: node.Layer, Position: node.Position,
		Path: node.Path, Task: node.Task, Focus: node.Focus})

	req := oracle.TaskRequest{
		Task:            node.Task,
		Focus:           node.Focus,
		Goal:            w.req.Goal,
		Layer:           node.Layer,
		MaxDepth:        w.req.Depth,
		AllowedChildren: allowed,
		ForceDelegation: w.req.Options.ForceFullDelegation && node.Layer == 0 && allowed > 0,
	}
	decision, err := w.decide(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Warn("agent decision failed",
			zap.Int("layer", node.Layer),
			zap.Int("position", node.Position),
			zap.Error(err),
		)
		AgentsExecuted.WithLabelValues(string(role), "error").Inc()
		return w.answer(id, node, role, oracle.ErrorAnswer(node.Layer, err))
	}

	if decision.IsDelegate() {
		if k := len(decision.Subtasks()); k > allowed && allowed > 0 {
			w.logger.Warn("agent proposed more subtasks than allowed, truncating",
				zap.Int("layer", node.Layer),
				zap.Int("position", node.Position),
				zap.Int("proposed", k),
				zap.Int("allowed", allowed),
			)
			DelegationTruncations.Inc()
			decision = decision.Truncate(allowed)
		}
		if k := len(decision.Subtasks()); req.ForceDelegation && k > 0 && k < allowed {
			w.logger.Warn("forced delegation returned fewer subtasks than required",
				zap.Int("layer", node.Layer),
				zap.Int("position", node.Position),
				zap.Int("proposed", k),
				zap.Int("required", allowed),
			)
		}
		if allowed == 0 || len(decision.Subtasks()) == 0 {
			decision = decision.AsDirect()
		}
	}

	if !decision.IsDelegate() {
		AgentsExecuted.WithLabelValues(string(role), "direct").Inc()
		return w.answer(id, node, role, decision.Text())
	}

	AgentsExecuted.WithLabelValues(string(role), "delegated").Inc()
	span.SetAttributes(attribute.Int("fractal.subtasks", len(decision.Subtasks())))
	return w.delegate(ctx, id, node, role, decision)
}

// answer completes a node with a direct response.
func (w *walker) answer(id tree.NodeID, node tree.Node, role models.Role, text string) string {
	if strings.TrimSpace(text) == "" {
		text = noResponse
	}
	w.trace.Record(models.LogEntry{
		Layer:    node.Layer,
		Position: node.Position,
		Role:     role,
		Path:     node.Path,
		Task:     node.Task,
		Focus:    node.Focus,
		Response: text,
	})
	w.tree.Complete(id, text)
	w.completed(node, text, false)
	return text
}

// delegate hands the subtasks to the node's children, waits for all of
// them and synthesizes their answers.
func (w *walker) delegate(ctx context.Context, id tree.NodeID, node tree.Node, role models.Role, d oracle.Decision) string {
	subtasks := d.Subtasks()

	summary := fmt.Sprintf("Delegating to %d agents: %s", len(subtasks), d.Reason())
	rootSummary := ""
	if node.Layer == 0 {
		rootSummary = fmt.Sprintf("Root agent delegated to %d specialized agents: %s", len(subtasks), d.Reason())
	}
	w.trace.MarkDelegated(rootSummary)
	w.trace.Record(models.LogEntry{
		Layer:     node.Layer,
		Position:  node.Position,
		Role:      role,
		Path:      node.Path,
		Task:      node.Task,
		Focus:     node.Focus,
		Response:  summary,
		Delegated: true,
	})
	w.tree.MarkDelegated(id)

	w.logger.Debug("agent delegated",
		zap.Int("layer", node.Layer),
		zap.Int("position", node.Position),
		zap.Int("subtasks", len(subtasks)),
	)

	children := w.tree.Children(id)
	results := make([]models.TaskResult, len(subtasks))

	// Children never return errors; the group is only a structured join.
	var g errgroup.Group
	for i, st := range subtasks {
		child := children[i]
		w.tree.Assign(child, st.Subtask, st.Focus)
		g.Go(func() error {
			answer := w.execute(ctx, child)
			n, _ := w.tree.Node(child)
			results[i] = models.TaskResult{
				Subtask:  st.Subtask,
				Focus:    st.Focus,
				Result:   answer,
				Layer:    n.Layer,
				Position: n.Position,
			}
			return nil
		})
	}
	_ = g.Wait()

	response := w.synthesize(ctx, node, results)
	w.tree.Complete(id, response)
	w.completed(node, response, true)
	return response
}

func (w *walker) decide(ctx context.Context, req oracle.TaskRequest) (oracle.Decision, error) {
	var decision oracle.Decision
	err := w.call(ctx, "decide", func(ctx context.Context) error {
		var err error
		decision, err = w.e.tasks.Decide(ctx, req)
		return err
	})
	return decision, err
}

func (w *walker) synthesize(ctx context.Context, node tree.Node, results []models.TaskResult) string {
	var out string
	err := w.call(ctx, "synthesize", func(ctx context.Context) error {
		var err error
		out, err = w.e.synth.Synthesize(ctx, oracle.SynthesisRequest{
			Task:    node.Task,
			Goal:    w.req.Goal,
			Results: oracle.FilterResults(results),
		})
		if err == nil && strings.TrimSpace(out) == "" {
			err = oracle.ErrEmptyResponse
		}
		return err
	})
	if err != nil {
		w.logger.Warn("synthesis failed, concatenating child results",
			zap.Int("layer", node.Layer),
			zap.Int("position", node.Position),
			zap.Error(err),
		)
		return oracle.FallbackSynthesis(err, results)
	}
	return out
}

func (w *walker) call(ctx context.Context, kind string, fn func(ctx context.Context) error) error {
	return w.e.callOnce(ctx, kind, fn)
}

// callOnce runs one oracle call inside a limiter slot. The per-node deadline
// starts once the slot is held, so queueing never times a call out.
func (e *Engine) callOnce(ctx context.Context, kind string, fn func(ctx context.Context) error) (err error) {
	release, err := e.opts.limiter.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("wait for call slot: %w", err)
	}
	defer release()

	if timeout := e.opts.nodeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	OracleCallsInFlight.Inc()
	defer OracleCallsInFlight.Dec()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", errOraclePanic, kind, r)
		}
		recordOracleCall(kind, start, err)
	}()
	return fn(ctx)
}

func (w *walker) completed(node tree.Node, response string, delegated bool) {
	w.emit(Event{
		Type:      EventNodeCompleted,
		Layer:     node.Layer,
		Position:  node.Position,
		Path:      node.Path,
		Task:      node.Task,
		Focus:     node.Focus,
		Response:  truncate(response, maxEventResponse),
		Delegated: delegated,
	})
}

func (w *walker) emit(ev Event) {
	h := w.req.Options.OnEvent
	if h == nil {
		return
	}
	ev.Run = w.index
	ev.Path = slices.Clone(ev.Path)
	ev.Executed = w.trace.Executed()
	ev.TotalPossible = w.trace.TotalPossible()
	ev.Timestamp = time.Now()
	h(ev)
}
