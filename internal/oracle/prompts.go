package oracle

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/fractal/pkg/models"
)

// rootPrompt is the system prompt for the layer 0 agent.
// Args: goal, child count, max depth.
const rootPrompt = `You are the root agent of a fractal reasoning system. Your goal: %s

You may either:
1. Answer simple queries directly.
2. Use the delegate_fractal_tasks tool to split a complex query into subtasks for specialized agents.

When delegating, create exactly %d focused subtasks. The system has at most %d layers.
Give every subtask a distinct aspect of the problem.`

// forcedRootPrompt replaces rootPrompt when full delegation is forced.
// Args: goal, child count.
const forcedRootPrompt = `You are the root agent of a fractal reasoning system. Your goal: %s

FORCED DELEGATION IS ACTIVE.
You MUST call the delegate_fractal_tasks tool for this query.
Create exactly %d specialized subtasks. Do not answer directly.

Give every subtask a distinct aspect of the problem.`

// intermediatePrompt is the system prompt for agents that may still delegate.
// Args: layer, max depth, goal, child count, focus, layer, max depth.
const intermediatePrompt = `You are an intermediate agent at layer %d/%d of a fractal reasoning system. Goal: %s

You may either:
1. Handle this subtask directly if it is straightforward.
2. Use delegate_fractal_tasks to split it into exactly %d more specific subtasks.

Focus: %s
Current layer: %d, max depth: %d`

// leafPrompt is the system prompt for agents that must answer.
// Args: goal, focus.
const leafPrompt = `You are a leaf agent in a fractal reasoning system. Goal: %s

Answer this subtask directly with a focused, detailed response.
Focus: %s

Give concrete, actionable findings that can be merged with the work of other agents.`

// synthesisPrompt merges child results. Args: result count, goal.
const synthesisPrompt = `You are combining the results of %d specialized agents. Goal: %s

Merge their findings into one coherent answer to the original query.
Integrate the insights, call out patterns, and give a single unified response.`

// reconcilePrompt merges independent runs. Args: run count.
const reconcilePrompt = `You are merging the results of %d independent executions of the same query.

Each execution worked on the problem without seeing the others. Identify the
insights they agree on, keep perspectives that only some of them found,
and resolve contradictions by weighing the evidence.

Produce one unified answer that is richer than any single execution.`

// systemPrompt selects the role prompt for a decision request.
func systemPrompt(req TaskRequest) string {
	switch req.Role() {
	case models.RoleRoot:
		if req.ForceDelegation {
			return fmt.Sprintf(forcedRootPrompt, req.Goal, req.AllowedChildren)
		}
		return fmt.Sprintf(rootPrompt, req.Goal, req.AllowedChildren, req.MaxDepth)
	case models.RoleIntermediate:
		return fmt.Sprintf(intermediatePrompt,
			req.Layer, req.MaxDepth, req.Goal, req.AllowedChildren,
			req.Focus, req.Layer, req.MaxDepth)
	default:
		return fmt.Sprintf(leafPrompt, req.Goal, req.Focus)
	}
}

func synthesisUserMessage(req SynthesisRequest) string {
	parts := make([]string, 0, len(req.Results))
	for _, r := range req.Results {
		subtask := r.Subtask
		if subtask == "" {
			subtask = "Unknown task"
		}
		focus := r.Focus
		if focus == "" {
			focus = "No focus specified"
		}
		parts = append(parts, fmt.Sprintf("Subtask: %s\nFocus: %s\nResult: %s", subtask, focus, r.Result))
	}
	return fmt.Sprintf("Original query: %s\n\nAgent results:\n%s\n\nSynthesize these into a comprehensive response.",
		req.Task, strings.Join(parts, "\n\n"))
}

func reconcileUserMessage(req ReconcileRequest) string {
	parts := make([]string, len(req.Answers))
	for i, a := range req.Answers {
		parts[i] = fmt.Sprintf("Execution %d:\n%s", i+1, a)
	}
	return fmt.Sprintf("Original query: %s\n\nExecution results:\n%s\n\nMerge these results into the most complete response possible.",
		req.Query, strings.Join(parts, "\n\n---\n\n"))
}
