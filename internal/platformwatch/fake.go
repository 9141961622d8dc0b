package platformwatch

import (
	"sync"

	"qljsconfig/internal/canonical"
	"qljsconfig/internal/ioerr"
)

// FakeWatcher is a Watcher driven entirely by test code instead of real
// filesystem events: a test arms a directory, mutates the fake filesystem
// directly, then calls TriggerDirty to simulate the notification a real
// OS would have delivered.
type FakeWatcher struct {
	mu       sync.Mutex
	armed    map[string]int
	dirty    chan struct{}
	errs     []ioerr.IOError
	failNext map[string]error
}

func NewFake() *FakeWatcher {
	return &FakeWatcher{
		armed: make(map[string]int),
		dirty: make(chan struct{}, 1),
	}
}

func (w *FakeWatcher) ArmDirectory(dir canonical.Path) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	path := string(dir)
	if err, ok := w.failNext[path]; ok {
		delete(w.failNext, path)
		w.errs = append(w.errs, *ioerr.New(path, err))
		return nil
	}
	w.armed[path]++
	return nil
}

func (w *FakeWatcher) DisarmDirectory(dir canonical.Path) {
	w.mu.Lock()
	defer w.mu.Unlock()
	path := string(dir)
	if w.armed[path] <= 1 {
		delete(w.armed, path)
		return
	}
	w.armed[path]--
}

func (w *FakeWatcher) Dirty() <-chan struct{} {
	return w.dirty
}

func (w *FakeWatcher) TakeWatchErrors() []ioerr.IOError {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.errs
	w.errs = nil
	return out
}

func (w *FakeWatcher) Close() error {
	return nil
}

// TriggerDirty simulates an OS notification arriving for any armed
// directory.
func (w *FakeWatcher) TriggerDirty() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

// ArmedDirectories returns the set of currently armed directories, for
// assertions in tests.
func (w *FakeWatcher) ArmedDirectories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.armed))
	for path := range w.armed {
		out = append(out, path)
	}
	return out
}

// FailNextArm makes the next ArmDirectory call for path surface err via
// TakeWatchErrors instead of succeeding, simulating ENOSPC/EMFILE-class
// watch-establishment failures.
func (w *FakeWatcher) FailNextArm(path string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext == nil {
		w.failNext = make(map[string]error)
	}
	w.failNext[path] = err
}
