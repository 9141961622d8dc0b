// Package platformwatch arms directory watches and coalesces filesystem
// change notifications into a single "something changed, rescan" pulse.
// It is built on fsnotify, whose own per-OS backend (inotify, kqueue,
// ReadDirectoryChangesW) stands in for hand-written platform variants.
package platformwatch

import (
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"qljsconfig/internal/canonical"
	"qljsconfig/internal/ioerr"
	"qljsconfig/internal/logging"
)

const (
	debounceDuration   = 50 * time.Millisecond
	restartBaseDelay   = 100 * time.Millisecond
	maxRestartAttempts = 6
)

// Watcher arms and disarms directories and reports when any of them
// changed. It does not report which path or what kind of change: callers
// rescan their whole watch set on a pulse, keeping resolution ordering
// deterministic rather than driven by per-event callbacks.
type Watcher interface {
	ArmDirectory(dir canonical.Path) error
	DisarmDirectory(dir canonical.Path)
	Dirty() <-chan struct{}
	TakeWatchErrors() []ioerr.IOError
	Close() error
}

// FSNotifyWatcher is the production Watcher, backed by one
// *fsnotify.Watcher per instance: each loader owns exactly one inotify
// instance (or kqueue/ReadDirectoryChangesW equivalent), however many
// directories it watches.
type FSNotifyWatcher struct {
	mu       sync.Mutex
	inner    *fsnotify.Watcher
	refcount map[string]int
	dirty    chan struct{}
	errs     []ioerr.IOError
	logger   *logging.Logger

	restartMu       sync.Mutex
	restartAttempts int
	restartTimer    *time.Timer
	closed          bool
}

// New creates an FSNotifyWatcher. logger may be nil.
func New(logger *logging.Logger) (*FSNotifyWatcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &FSNotifyWatcher{
		inner:    inner,
		refcount: make(map[string]int),
		dirty:    make(chan struct{}, 1),
		logger:   logger,
	}
	w.startForwarder(inner)
	return w, nil
}

func (w *FSNotifyWatcher) ArmDirectory(dir canonical.Path) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := string(dir)
	if w.refcount[path] > 0 {
		w.refcount[path]++
		return nil
	}
	if err := w.inner.Add(path); err != nil {
		w.recordError(path, err)
		return nil
	}
	w.refcount[path] = 1
	return nil
}

func (w *FSNotifyWatcher) DisarmDirectory(dir canonical.Path) {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := string(dir)
	count, ok := w.refcount[path]
	if !ok {
		return
	}
	if count <= 1 {
		delete(w.refcount, path)
		_ = w.inner.Remove(path)
		return
	}
	w.refcount[path] = count - 1
}

func (w *FSNotifyWatcher) Dirty() <-chan struct{} {
	return w.dirty
}

func (w *FSNotifyWatcher) TakeWatchErrors() []ioerr.IOError {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.errs
	w.errs = nil
	return out
}

func (w *FSNotifyWatcher) Close() error {
	w.restartMu.Lock()
	w.closed = true
	if w.restartTimer != nil {
		w.restartTimer.Stop()
	}
	w.restartMu.Unlock()
	return w.inner.Close()
}

func (w *FSNotifyWatcher) recordError(path string, cause error) {
	var ioErr *ioerr.IOError
	if errors.As(cause, &ioErr) {
		w.errs = append(w.errs, *ioErr)
		return
	}
	w.errs = append(w.errs, *ioerr.New(path, cause))
}

func (w *FSNotifyWatcher) markDirty() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

func (w *FSNotifyWatcher) startForwarder(inner *fsnotify.Watcher) {
	go func() {
		timer := time.AfterFunc(debounceDuration, w.markDirty)
		timer.Stop()
		for {
			select {
			case event, ok := <-inner.Events:
				if !ok {
					return
				}
				_ = event
				timer.Reset(debounceDuration)
			case err, ok := <-inner.Errors:
				if !ok {
					return
				}
				w.handleError(err)
			}
		}
	}()
}

func (w *FSNotifyWatcher) handleError(err error) {
	if err == nil {
		return
	}
	if w.logger != nil {
		w.logger.Warn("watcher error", map[string]string{"error": err.Error()})
	}
	w.mu.Lock()
	w.recordError("", err)
	w.mu.Unlock()
	w.scheduleRestart()
}

func restartDelay(attempt int) time.Duration {
	return restartBaseDelay * time.Duration(uint64(1)<<uint(attempt))
}

func (w *FSNotifyWatcher) scheduleRestart() {
	w.restartMu.Lock()
	if w.closed || w.restartTimer != nil {
		w.restartMu.Unlock()
		return
	}
	if w.restartAttempts >= maxRestartAttempts {
		w.restartMu.Unlock()
		return
	}
	delay := restartDelay(w.restartAttempts)
	w.restartAttempts++
	w.restartTimer = time.AfterFunc(delay, w.performRestart)
	w.restartMu.Unlock()
}

func (w *FSNotifyWatcher) performRestart() {
	err := w.restart()

	w.restartMu.Lock()
	w.restartTimer = nil
	if err == nil {
		w.restartAttempts = 0
		w.restartMu.Unlock()
		return
	}
	w.restartMu.Unlock()
	w.scheduleRestart()
}

func (w *FSNotifyWatcher) isClosed() bool {
	w.restartMu.Lock()
	defer w.restartMu.Unlock()
	return w.closed
}

func (w *FSNotifyWatcher) restart() error {
	if w.isClosed() {
		return nil
	}
	w.mu.Lock()
	dirs := make([]string, 0, len(w.refcount))
	for dir := range w.refcount {
		dirs = append(dirs, dir)
	}
	w.mu.Unlock()

	replacement, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := replacement.Add(dir); err != nil {
			if w.logger != nil {
				w.logger.Warn("watcher re-add failed", map[string]string{"path": dir, "error": err.Error()})
			}
		}
	}

	if w.isClosed() {
		_ = replacement.Close()
		return nil
	}
	w.mu.Lock()
	previous := w.inner
	w.inner = replacement
	w.mu.Unlock()

	w.startForwarder(replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}
