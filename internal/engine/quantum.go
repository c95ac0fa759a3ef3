package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/fractal/internal/oracle"
)

// executeQuantum runs req.runs() independent trees one after another and
// reconciles their answers.
func (e *Engine) executeQuantum(ctx context.Context, sessionID string, req Request, res *Result) error {
	n := req.runs()
	answers := make([]string, 0, n)

	for i := 0; i < n; i++ {
		emitRun(req.Options.OnEvent, Event{Type: EventQuantumRunStarted, Run: i})

		run, err := e.runOnce(ctx, sessionID, req, i)
		if err != nil {
			return err
		}
		res.Runs = append(res.Runs, run)
		answers = append(answers, run.Answer)

		emitRun(req.Options.OnEvent, Event{
			Type:          EventQuantumRunCompleted,
			Run:           i,
			Response:      truncate(run.Answer, maxEventResponse),
			Delegated:     run.Trace.DidDelegate(),
			Executed:      run.Trace.Executed(),
			TotalPossible: run.Trace.TotalPossible(),
		})
	}

	res.FinalAnswer = e.reconcile(ctx, req, answers)
	return nil
}

// reconcile merges run answers, falling back to a labeled concatenation.
func (e *Engine) reconcile(ctx context.Context, req Request, answers []string) string {
	r := e.opts.reconciler
	if r == nil {
		return oracle.FallbackReconcile(errNoReconciler, answers)
	}

	var out string
	err := e.callOnce(ctx, "reconcile", func(ctx context.Context) error {
		var err error
		out, err = r.Reconcile(ctx, oracle.ReconcileRequest{
			Query:   req.Query,
			Goal:    req.Goal,
			Answers: answers,
		})
		if err == nil && strings.TrimSpace(out) == "" {
			err = oracle.ErrEmptyResponse
		}
		return err
	})
	if err != nil {
		e.logger.Warn("reconciliation failed, concatenating run answers", zap.Error(err))
		return oracle.FallbackReconcile(err, answers)
	}
	return out
}

func emitRun(h EventHandler, ev Event) {
	if h == nil {
		return
	}
	ev.Timestamp = time.Now()
	h(ev)
}
