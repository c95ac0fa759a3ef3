package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/fractal/pkg/models"
)

func TestDecision_Variants(t *testing.T) {
	d := Direct("hello")
	assert.Equal(t, KindDirect, d.Kind())
	assert.False(t, d.IsDelegate())
	assert.Equal(t, "direct", d.Kind().String())

	del := Delegate([]models.Subtask{{Subtask: "a"}, {Subtask: "b"}, {Subtask: "c"}}, "why")
	assert.True(t, del.IsDelegate())
	assert.Equal(t, "delegate", del.Kind().String())
	assert.Len(t, del.Truncate(2).Subtasks(), 2)
	assert.Len(t, del.Subtasks(), 3, "truncate returns a copy")
	assert.Len(t, del.Truncate(10).Subtasks(), 3)
}

func TestDecision_AsDirect(t *testing.T) {
	assert.Equal(t, Direct("x"), Direct("x").AsDirect())

	withText := Delegate([]models.Subtask{{Subtask: "a"}}, "r").WithText("my own answer")
	assert.Equal(t, "my own answer", withText.AsDirect().Text())

	bare := Delegate([]models.Subtask{{Subtask: "a", Focus: "f"}, {Subtask: "b"}}, "reason")
	got := bare.AsDirect()
	assert.Equal(t, KindDirect, got.Kind())
	assert.Equal(t, "reason\n- a (f)\n- b", got.Text())
}

func TestTaskRequest_Role(t *testing.T) {
	assert.Equal(t, models.RoleRoot, TaskRequest{Layer: 0, AllowedChildren: 0}.Role())
	assert.Equal(t, models.RoleIntermediate, TaskRequest{Layer: 1, AllowedChildren: 2}.Role())
	assert.Equal(t, models.RoleLeaf, TaskRequest{Layer: 2}.Role())
}

func TestErrorAnswer(t *testing.T) {
	err := errors.New("timeout")
	assert.Equal(t, "I encountered an error while processing your request: timeout", ErrorAnswer(0, err))
	assert.Equal(t, "Error executing subtask: timeout", ErrorAnswer(2, err))
}

func TestFallbackSynthesis(t *testing.T) {
	out := FallbackSynthesis(errors.New("down"), []models.TaskResult{
		{Result: "one"}, {Result: ""}, {Result: "two"},
	})
	assert.Equal(t, "Error synthesizing results: down. Here are the individual results:\n\none\n\ntwo", out)
}

func TestFallbackReconcile(t *testing.T) {
	out := FallbackReconcile(errors.New("down"), []string{"a", "b"})
	assert.Equal(t, "Error synthesizing quantum results: down. Here are the individual quantum results:\n\nExecution 1: a\n\nExecution 2: b", out)
}
