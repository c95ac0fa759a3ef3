package tui

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/fractal/pkg/models"
)

func TestRenderTree(t *testing.T) {
	root := &models.NodeSnapshot{
		Path: []int{}, Task: "root query", State: models.NodeStateDone, Executed: true,
		Response: "final",
		Children: []*models.NodeSnapshot{
			{Path: []int{0}, Task: "first", State: models.NodeStateDone, Executed: true, Response: "answer one"},
			{Path: []int{1}, Task: "second", State: models.NodeStateDone, Executed: true, Response: "answer\ntwo"},
			{Path: []int{2}, State: models.NodeStatePending, Children: []*models.NodeSnapshot{
				{Path: []int{2, 0}, State: models.NodeStatePending},
			}},
		},
	}

	out := RenderTree(root)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], " root query") {
		t.Errorf("unexpected root line %q", lines[0])
	}
	if strings.Contains(lines[0], "final") {
		t.Error("delegating node should not show its response inline")
	}
	if !strings.Contains(lines[1], "├─ ") || !strings.Contains(lines[1], "answer one") {
		t.Errorf("unexpected first child line %q", lines[1])
	}
	if !strings.Contains(lines[2], "answer two") {
		t.Errorf("expected response collapsed to one line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "└─ ") || !strings.Contains(lines[3], "(2 not executed)") {
		t.Errorf("unexpected pending line %q", lines[3])
	}
}

func TestRenderTree_Nil(t *testing.T) {
	if RenderTree(nil) != "" {
		t.Error("expected empty output for nil tree")
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\n b", 10); got != "a b" {
		t.Errorf("oneLine = %q", got)
	}
	if got := oneLine("abcdef", 3); got != "abc..." {
		t.Errorf("oneLine = %q", got)
	}
}
