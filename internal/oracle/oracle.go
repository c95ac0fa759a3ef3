// Package oracle defines the reasoning calls the delegation engine depends on.
//
// A TaskOracle decides, for one agent, whether to answer directly or to split
// the task into subtasks. A SynthesisOracle merges child results into one
// answer, and a Reconciler merges the answers of independent quantum runs.
// The engine only depends on these contracts; Claude implements all three.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/fractal/pkg/models"
)

// TaskRequest is the input to a single decision call.
type TaskRequest struct {
	Task     string
	Focus    string
	Goal     string
	Layer    int
	MaxDepth int
	// AllowedChildren is the number of children this agent may create.
	AllowedChildren int
	// ForceDelegation requires exactly AllowedChildren subtasks. Only the
	// root receives it.
	ForceDelegation bool
}

// Role returns the agent's role for prompting.
func (r TaskRequest) Role() models.Role {
	return models.RoleFor(r.Layer, r.AllowedChildren)
}

// Kind tags the variant held by a Decision.
type Kind int

const (
	// KindDirect means the agent answered.
	KindDirect Kind = iota
	// KindDelegate means the agent split its task.
	KindDelegate
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == KindDelegate {
		return "delegate"
	}
	return "direct"
}

// Decision is either Direct(text) or Delegate(subtasks, reason).
type Decision struct {
	kind     Kind
	text     string
	subtasks []models.Subtask
	reason   string
}

// Direct returns a decision that answers with text.
func Direct(text string) Decision {
	return Decision{kind: KindDirect, text: text}
}

// Delegate returns a decision that splits the task into subtasks.
func Delegate(subtasks []models.Subtask, reason string) Decision {
	return Decision{kind: KindDelegate, subtasks: subtasks, reason: reason}
}

// WithText attaches free text that accompanied a delegation.
func (d Decision) WithText(text string) Decision {
	d.text = text
	return d
}

// Kind returns the variant tag.
func (d Decision) Kind() Kind { return d.kind }

// IsDelegate reports whether the decision splits the task.
func (d Decision) IsDelegate() bool { return d.kind == KindDelegate }

// Text returns the direct answer, or the text that accompanied a delegation.
func (d Decision) Text() string { return d.text }

// Subtasks returns the delegated subtasks.
func (d Decision) Subtasks() []models.Subtask { return d.subtasks }

// Reason returns why the agent delegated.
func (d Decision) Reason() string { return d.reason }

// Truncate keeps at most n subtasks.
func (d Decision) Truncate(n int) Decision {
	if n >= 0 && len(d.subtasks) > n {
		d.subtasks = d.subtasks[:n]
	}
	return d
}

// AsDirect converts a delegation into a direct answer built from its textual
// content. Direct decisions are returned unchanged.
func (d Decision) AsDirect() Decision {
	if d.kind == KindDirect {
		return d
	}
	if strings.TrimSpace(d.text) != "" {
		return Direct(d.text)
	}

	var b strings.Builder
	if d.reason != "" {
		b.WriteString(d.reason)
	}
	for _, st := range d.subtasks {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s", st.Subtask)
		if st.Focus != "" {
			fmt.Fprintf(&b, " (%s)", st.Focus)
		}
	}
	return Direct(b.String())
}

// SynthesisRequest is the input to a synthesis call.
type SynthesisRequest struct {
	Task    string
	Goal    string
	Results []models.TaskResult
}

// ReconcileRequest is the input to a cross-run reconciliation call.
type ReconcileRequest struct {
	Query   string
	Goal    string
	Answers []string
}

// TaskOracle makes the direct-or-delegate decision for one agent.
type TaskOracle interface {
	Decide(ctx context.Context, req TaskRequest) (Decision, error)
}

// SynthesisOracle merges child results into one answer.
type SynthesisOracle interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// Reconciler merges the final answers of independent runs.
type Reconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (string, error)
}

// TaskOracleFunc adapts a function to TaskOracle.
type TaskOracleFunc func(ctx context.Context, req TaskRequest) (Decision, error)

// Decide calls f.
func (f TaskOracleFunc) Decide(ctx context.Context, req TaskRequest) (Decision, error) {
	return f(ctx, req)
}

// SynthesisFunc adapts a function to SynthesisOracle.
type SynthesisFunc func(ctx context.Context, req SynthesisRequest) (string, error)

// Synthesize calls f.
func (f SynthesisFunc) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	return f(ctx, req)
}

// ReconcileFunc adapts a function to Reconciler.
type ReconcileFunc func(ctx context.Context, req ReconcileRequest) (string, error)

// Reconcile calls f.
func (f ReconcileFunc) Reconcile(ctx context.Context, req ReconcileRequest) (string, error) {
	return f(ctx, req)
}
