package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher watches a single directory with inotify/kqueue.
// The files directory is flat, so no recursive watch setup is needed.
type FSNotifyWatcher struct {
	events  chan FileEvent
	errors  chan error
	stopCh  chan struct{}
	mu      sync.Mutex
	stopped bool
}

var _ Watcher = (*FSNotifyWatcher)(nil)

// NewFSNotifyWatcher creates an fsnotify-based watcher.
func NewFSNotifyWatcher() *FSNotifyWatcher {
	return &FSNotifyWatcher{
		events: make(chan FileEvent, 100),
		errors: make(chan error, 10),
		stopCh: make(chan struct{}),
	}
}

// Start begins watching the directory. Blocks until Stop or context
// cancellation.
func (w *FSNotifyWatcher) Start(ctx context.Context, path string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.sendError(err)
		}
	}
}

func (w *FSNotifyWatcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		// A rename away from the directory looks like a delete to us;
		// the rename target arrives as its own CREATE.
		op = OpDelete
	default:
		return
	}

	w.emit(FileEvent{
		Name:      name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

func (w *FSNotifyWatcher) emit(event FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	select {
	case w.events <- event:
	default:
	}
}

func (w *FSNotifyWatcher) sendError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *FSNotifyWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}

	w.stopped = true
	close(w.stopCh)
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of file events.
func (w *FSNotifyWatcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of errors.
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errors
}
