package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	base := t.TempDir()
	w, err := NewWatcher(base, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, base
}

func TestNewWatcher_CreatesDir(t *testing.T) {
	_, base := newTestWatcher(t)

	info, err := os.Stat(Dir(base))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewWatcher_ClearsStaleStop(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, SendStop(base))

	w, err := NewWatcher(base, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.ShouldStop())
}

func TestSendStop_CancelsContext(t *testing.T) {
	w, base := newTestWatcher(t)
	ctx, cancel := w.Context(context.Background())
	defer cancel()

	require.NoError(t, SendStop(base))

	select {
	case <-ctx.Done():
		assert.True(t, errors.Is(context.Cause(ctx), ErrStopRequested))
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled by stop file")
	}
	assert.True(t, w.ShouldStop())
}

func TestShouldStop_ChecksFileDirectly(t *testing.T) {
	w, base := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(Dir(base), StopFile), nil, 0644))

	assert.True(t, w.ShouldStop())
	select {
	case <-w.Stopped():
	default:
		t.Fatal("Stopped channel not closed")
	}
}

func TestContext_CancelIsNotAStop(t *testing.T) {
	w, _ := newTestWatcher(t)
	ctx, cancel := w.Context(context.Background())
	cancel()

	<-ctx.Done()
	assert.False(t, errors.Is(context.Cause(ctx), ErrStopRequested))
	assert.False(t, w.ShouldStop())
}

func TestOtherFilesIgnored(t *testing.T) {
	w, base := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(Dir(base), "pause"), nil, 0644))

	time.Sleep(100 * time.Millisecond)
	assert.False(t, w.ShouldStop())
}

func TestClose_Idempotent(t *testing.T) {
	w, base := newTestWatcher(t)
	require.NoError(t, SendStop(base))

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	_, err := os.Stat(filepath.Join(Dir(base), StopFile))
	assert.True(t, os.IsNotExist(err))
}
