// Package oracletest provides scripted in-memory oracles for tests.
package oracletest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/fractal/internal/oracle"
	"github.com/ShayCichocki/fractal/pkg/models"
)

// Fake implements oracle.TaskOracle, oracle.SynthesisOracle and
// oracle.Reconciler. Nil funcs fall back to Split, Join and JoinAnswers.
type Fake struct {
	DecideFunc    func(ctx context.Context, req oracle.TaskRequest) (oracle.Decision, error)
	SynthFunc     func(ctx context.Context, req oracle.SynthesisRequest) (string, error)
	ReconcileFunc func(ctx context.Context, req oracle.ReconcileRequest) (string, error)

	// Delay is slept, honoring ctx, inside every call.
	Delay time.Duration

	mu         sync.Mutex
	decides    []oracle.TaskRequest
	synths     []oracle.SynthesisRequest
	reconciles []oracle.ReconcileRequest

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

var (
	_ oracle.TaskOracle      = (*Fake)(nil)
	_ oracle.SynthesisOracle = (*Fake)(nil)
	_ oracle.Reconciler      = (*Fake)(nil)
)

// Decide records the request and returns the scripted decision.
func (f *Fake) Decide(ctx context.Context, req oracle.TaskRequest) (oracle.Decision, error) {
	f.mu.Lock()
	f.decides = append(f.decides, req)
	f.mu.Unlock()

	done := f.enter()
	defer done()
	if err := f.wait(ctx); err != nil {
		return oracle.Decision{}, err
	}

	if f.DecideFunc != nil {
		return f.DecideFunc(ctx, req)
	}
	return Split(ctx, req)
}

// Synthesize records the request and returns the scripted synthesis.
func (f *Fake) Synthesize(ctx context.Context, req oracle.SynthesisRequest) (string, error) {
	f.mu.Lock()
	f.synths = append(f.synths, req)
	f.mu.Unlock()

	done := f.enter()
	defer done()
	if err := f.wait(ctx); err != nil {
		return "", err
	}

	if f.SynthFunc != nil {
		return f.SynthFunc(ctx, req)
	}
	return Join(ctx, req)
}

// Reconcile records the request and returns the scripted merge.
func (f *Fake) Reconcile(ctx context.Context, req oracle.ReconcileRequest) (string, error) {
	f.mu.Lock()
	f.reconciles = append(f.reconciles, req)
	f.mu.Unlock()

	if f.ReconcileFunc != nil {
		return f.ReconcileFunc(ctx, req)
	}
	return JoinAnswers(ctx, req)
}

// DecideCalls returns a copy of every decision request seen.
func (f *Fake) DecideCalls() []oracle.TaskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]oracle.TaskRequest(nil), f.decides...)
}

// SynthCalls returns a copy of every synthesis request seen.
func (f *Fake) SynthCalls() []oracle.SynthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]oracle.SynthesisRequest(nil), f.synths...)
}

// ReconcileCalls returns a copy of every reconcile request seen.
func (f *Fake) ReconcileCalls() []oracle.ReconcileRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]oracle.ReconcileRequest(nil), f.reconciles...)
}

// MaxInFlight is the highest number of concurrent Decide/Synthesize calls.
func (f *Fake) MaxInFlight() int64 {
	return f.maxInFlight.Load()
}

func (f *Fake) enter() func() {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.Delay):
		return nil
	}
}

// Split delegates exactly AllowedChildren subtasks named "<task>/<i>" and
// answers directly at terminal agents.
func Split(_ context.Context, req oracle.TaskRequest) (oracle.Decision, error) {
	if req.AllowedChildren == 0 {
		return oracle.Direct(Answer(req.Task)), nil
	}
	subtasks := make([]models.Subtask, req.AllowedChildren)
	for i := range subtasks {
		subtasks[i] = models.Subtask{
			Subtask: fmt.Sprintf("%s/%d", req.Task, i),
			Focus:   fmt.Sprintf("focus %d", i),
		}
	}
	return oracle.Delegate(subtasks, "split "+req.Task), nil
}

// AnswerAll answers every request directly.
func AnswerAll(_ context.Context, req oracle.TaskRequest) (oracle.Decision, error) {
	return oracle.Direct(Answer(req.Task)), nil
}

// Answer is the direct answer Split and AnswerAll give for task.
func Answer(task string) string {
	return "answer: " + task
}

// Join synthesizes by listing the child results in sorted order.
func Join(_ context.Context, req oracle.SynthesisRequest) (string, error) {
	parts := make([]string, 0, len(req.Results))
	for _, r := range req.Results {
		parts = append(parts, r.Result)
	}
	sort.Strings(parts)
	return fmt.Sprintf("synth(%s)[%s]", req.Task, strings.Join(parts, "|")), nil
}

// JoinAnswers reconciles by joining the run answers in order.
func JoinAnswers(_ context.Context, req oracle.ReconcileRequest) (string, error) {
	return "reconciled[" + strings.Join(req.Answers, "||") + "]", nil
}
