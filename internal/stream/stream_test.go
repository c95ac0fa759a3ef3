package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/fractal/internal/engine"
)

func setupPublisher(t *testing.T, maxLen int64) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewPublisher(client, maxLen, nil), mr
}

func TestPublishAndReplay(t *testing.T) {
	p, _ := setupPublisher(t, 0)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	events := []engine.Event{
		{Type: engine.EventNodeStarted, Path: []int{}, Task: "q", Timestamp: now},
		{Type: engine.EventNodeCompleted, Layer: 1, Position: 1, Path: []int{1}, Response: "done", Executed: 1, TotalPossible: 3, Timestamp: now},
	}
	for _, e := range events {
		id, err := p.Publish(ctx, "run-1", e)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	got, err := p.Replay(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, engine.EventNodeStarted, got[0].Type)
	assert.Equal(t, []int{1}, got[1].Path)
	assert.Equal(t, "done", got[1].Response)
	assert.Equal(t, 3, got[1].TotalPossible)
	assert.True(t, now.Equal(got[1].Timestamp))
}

func TestReplay_UnknownRun(t *testing.T) {
	p, _ := setupPublisher(t, 0)

	got, err := p.Replay(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHandler_WritesToRunKey(t *testing.T) {
	p, mr := setupPublisher(t, 0)

	h := p.Handler("run-7")
	h(engine.Event{Type: engine.EventQuantumRunStarted, Run: 2})

	assert.True(t, mr.Exists(Key("run-7")))
	got, err := p.Replay(context.Background(), "run-7")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Run)
}

func TestHandler_LogsFailures(t *testing.T) {
	p, mr := setupPublisher(t, 0)
	mr.Close()

	assert.NotPanics(t, func() {
		p.Handler("run-1")(engine.Event{Type: engine.EventNodeStarted})
	})
}

func TestExpire(t *testing.T) {
	p, mr := setupPublisher(t, 0)
	ctx := context.Background()

	_, err := p.Publish(ctx, "run-1", engine.Event{Type: engine.EventNodeStarted})
	require.NoError(t, err)
	require.NoError(t, p.Expire(ctx, "run-1", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(Key("run-1")))
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Dial(context.Background(), mr.Addr())
	require.NoError(t, err)
	client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = Dial(context.Background(), addr)
	assert.Error(t, err)
}
