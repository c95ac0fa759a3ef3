package oracle

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/fractal/pkg/models"
)

// ErrorAnswer is the direct answer recorded when a decision call fails.
func ErrorAnswer(layer int, err error) string {
	if layer == 0 {
		return fmt.Sprintf("I encountered an error while processing your request: %v", err)
	}
	return fmt.Sprintf("Error executing subtask: %v", err)
}

// FilterResults drops results that carry no text.
func FilterResults(results []models.TaskResult) []models.TaskResult {
	out := make([]models.TaskResult, 0, len(results))
	for _, r := range results {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}

// FallbackSynthesis joins raw child results when synthesis fails.
func FallbackSynthesis(err error, results []models.TaskResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range FilterResults(results) {
		parts = append(parts, r.Result)
	}
	return fmt.Sprintf("Error synthesizing results: %v. Here are the individual results:\n\n%s",
		err, strings.Join(parts, "\n\n"))
}

// FallbackReconcile joins per-run answers when reconciliation fails.
func FallbackReconcile(err error, answers []string) string {
	parts := make([]string, len(answers))
	for i, a := range answers {
		parts[i] = fmt.Sprintf("Execution %d: %s", i+1, a)
	}
	return fmt.Sprintf("Error synthesizing quantum results: %v. Here are the individual quantum results:\n\n%s",
		err, strings.Join(parts, "\n\n"))
}
