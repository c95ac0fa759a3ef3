package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/fractal/internal/report"
	"github.com/ShayCichocki/fractal/pkg/models"
)

var (
	doneNodeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	delegatedNodeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	executingNodeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pendingNodeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	responseStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// maxTreeResponse is the number of characters of a response shown per node.
const maxTreeResponse = 60

// RenderTree draws a delegation tree. Subtrees that never ran are folded
// into a single line.
func RenderTree(root *models.NodeSnapshot) string {
	if root == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(nodeLabel(root))
	b.WriteString("\n")
	renderChildren(&b, root.Children, "")
	return b.String()
}

func renderChildren(b *strings.Builder, children []*models.NodeSnapshot, prefix string) {
	var shown []*models.NodeSnapshot
	pending := 0
	for _, c := range children {
		if c.State == models.NodeStatePending {
			pending += countNodes(c)
			continue
		}
		shown = append(shown, c)
	}

	for i, c := range shown {
		last := i == len(shown)-1 && pending == 0
		branch, next := "├─ ", "│  "
		if last {
			branch, next = "└─ ", "   "
		}
		b.WriteString(prefix + branch + nodeLabel(c) + "\n")
		renderChildren(b, c.Children, prefix+next)
	}
	if pending > 0 {
		b.WriteString(prefix + "└─ " + pendingNodeStyle.Render(fmt.Sprintf("(%d not executed)", pending)) + "\n")
	}
}

func nodeLabel(n *models.NodeSnapshot) string {
	style := pendingNodeStyle
	switch n.State {
	case models.NodeStateDone:
		style = doneNodeStyle
	case models.NodeStateDelegated:
		style = delegatedNodeStyle
	case models.NodeStateExecuting:
		style = executingNodeStyle
	}

	label := style.Render(report.PathString(n.Path))
	if n.Task != "" {
		label += " " + oneLine(n.Task, maxTreeResponse)
	}
	if n.Response != "" && len(n.Children) == 0 {
		label += " " + responseStyle.Render("→ "+oneLine(n.Response, maxTreeResponse))
	}
	return label
}

func countNodes(n *models.NodeSnapshot) int {
	total := 1
	for _, c := range n.Children {
		total += countNodes(c)
	}
	return total
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
