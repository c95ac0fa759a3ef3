package trace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/fractal/internal/branching"
	"github.com/ShayCichocki/fractal/pkg/models"
)

func TestRecord_AssignsCompletionOrder(t *testing.T) {
	tr := New("q", 3, 2, branching.Flat, 7)

	first := tr.Record(models.LogEntry{Path: []int{1}, Response: "b"})
	second := tr.Record(models.LogEntry{Path: []int{0}, Response: "a"})

	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, 1, second.Seq)
	assert.False(t, first.At.IsZero())

	snap := tr.Snapshot()
	require.Len(t, snap.Log, 2)
	assert.Equal(t, []int{1}, snap.Log[0].Path)
	assert.Equal(t, []int{0}, snap.Log[1].Path)
	assert.Equal(t, 2, snap.ExecutedAgents)
	assert.Equal(t, 7, snap.TotalPossibleAgents)
}

func TestSetExecutingAndFinish(t *testing.T) {
	tr := New("q", 3, 2, branching.Flat, 7)
	path := []int{0, 1}
	tr.SetExecuting(path)
	path[0] = 5

	st := tr.Status()
	assert.Equal(t, []int{0, 1}, st.CurrentlyExecuting)
	assert.False(t, st.Done)

	tr.Finish()
	st = tr.Status()
	assert.Nil(t, st.CurrentlyExecuting)
	assert.True(t, st.Done)
}

func TestMarkDelegated(t *testing.T) {
	tr := New("q", 3, 2, branching.Flat, 7)
	assert.False(t, tr.DidDelegate())

	tr.MarkDelegated("Root agent delegated to 2 specialized agents: breadth")
	tr.MarkDelegated("")

	snap := tr.Snapshot()
	assert.True(t, snap.DidDelegate)
	assert.Equal(t, "Root agent delegated to 2 specialized agents: breadth", snap.Summary)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	tr := New("q", 2, 2, branching.Flat, 3)
	tr.Record(models.LogEntry{Path: []int{0}})

	snap := tr.Snapshot()
	snap.Log[0].Path[0] = 9

	assert.Equal(t, []int{0}, tr.Snapshot().Log[0].Path)
	assert.Equal(t, [][]int{{0}}, tr.Status().ExecutionPath)
}

func TestConcurrentRecord(t *testing.T) {
	tr := New("q", 3, 8, branching.Flat, 73)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.SetExecuting([]int{i % 8, i / 8})
			tr.Record(models.LogEntry{Path: []int{i % 8, i / 8}})
			_ = tr.Status()
		}(i)
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.Equal(t, 64, snap.ExecutedAgents)
	require.Len(t, snap.Log, 64)
	for i, e := range snap.Log {
		assert.Equal(t, i, e.Seq)
	}
}
