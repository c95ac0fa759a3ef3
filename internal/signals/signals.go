// Package signals lets another process stop a running query by dropping a
// file into the signals directory.
package signals

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StopFile is the name of the file that requests a stop.
const StopFile = "stop"

// pollInterval is used when the filesystem watcher is unavailable.
const pollInterval = 500 * time.Millisecond

// ErrStopRequested is the cancellation cause set by a stop signal.
var ErrStopRequested = errors.New("stop requested")

// Watcher watches <base>/signals for a stop file.
type Watcher struct {
	dir    string
	logger *zap.Logger

	watcher  *fsnotify.Watcher
	stopped  chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

// Dir returns the signals directory under base.
func Dir(base string) string {
	return filepath.Join(base, "signals")
}

// NewWatcher creates the signals directory under base and starts watching
// it. Without fsnotify support it falls back to polling.
func NewWatcher(base string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := Dir(base)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:     dir,
		logger:  logger.With(zap.String("component", "signals")),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}

	// A stale stop file from an earlier run must not cancel this one.
	w.Clear()

	fw, err := fsnotify.NewWatcher()
	if err == nil {
		if err = fw.Add(dir); err != nil {
			fw.Close()
		}
	}
	if err != nil {
		w.logger.Debug("file watcher unavailable, polling", zap.Error(err))
		go w.poll()
		return w, nil
	}
	w.watcher = fw
	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if w.fileExists() {
				w.trigger()
			}
		}
	}
}

func (w *Watcher) trigger() {
	w.stopOnce.Do(func() {
		w.logger.Info("stop signal received", zap.String("dir", w.dir))
		close(w.stopped)
	})
}

func (w *Watcher) fileExists() bool {
	_, err := os.Stat(filepath.Join(w.dir, StopFile))
	return err == nil
}

// Stopped is closed once a stop has been requested.
func (w *Watcher) Stopped() <-chan struct{} {
	return w.stopped
}

// ShouldStop reports whether a stop has been requested. It also checks the
// file directly in case the watcher missed the event.
func (w *Watcher) ShouldStop() bool {
	if w.fileExists() {
		w.trigger()
	}
	select {
	case <-w.stopped:
		return true
	default:
		return false
	}
}

// Context returns a context that is cancelled with ErrStopRequested when a
// stop arrives, or when parent is done.
func (w *Watcher) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-w.stopped:
			cancel(ErrStopRequested)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// SendStop writes the stop file into the signals directory under base.
func SendStop(base string) error {
	dir := Dir(base)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StopFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes the stop file.
func (w *Watcher) Clear() {
	if err := os.Remove(filepath.Join(w.dir, StopFile)); err != nil && !os.IsNotExist(err) {
		w.logger.Debug("remove stop file", zap.Error(err))
	}
}

// Close stops watching and removes the stop file.
func (w *Watcher) Close() error {
	var err error
	w.doneOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
		w.Clear()
	})
	return err
}
