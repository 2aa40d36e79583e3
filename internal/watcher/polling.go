package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// PollingWatcher watches for changes by periodically scanning the
// directory. Fallback for when fsnotify is unavailable or unreliable.
type PollingWatcher struct {
	interval  time.Duration
	fileState map[string]fileSnapshot
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
	rootPath  string
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

var _ Watcher = (*PollingWatcher)(nil)

// NewPollingWatcher creates a polling watcher with the given interval.
func NewPollingWatcher(interval time.Duration) *PollingWatcher {
	return &PollingWatcher{
		interval:  interval,
		fileState: make(map[string]fileSnapshot),
		events:    make(chan FileEvent, 100),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
}

// Start begins polling the directory. Blocks until Stop or context
// cancellation.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	p.rootPath = path

	// Baseline scan so only subsequent changes produce events.
	baseline, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	p.mu.Lock()
	p.fileState = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.detectChanges(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// Stop stops the polling watcher. Safe to call multiple times.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}

	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshot reads the current state of the flat directory.
func (p *PollingWatcher) snapshot() (map[string]fileSnapshot, error) {
	entries, err := os.ReadDir(p.rootPath)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	state := make(map[string]fileSnapshot, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		state[entry.Name()] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
		}
	}
	return state, nil
}

// detectChanges compares current state with the previous scan and
// emits events for the differences.
func (p *PollingWatcher) detectChanges() error {
	current, err := p.snapshot()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for name, snap := range current {
		if prev, exists := p.fileState[name]; !exists {
			p.emitLocked(FileEvent{Name: name, Operation: OpCreate, Timestamp: now})
		} else if prev.modTime != snap.modTime || prev.size != snap.size {
			p.emitLocked(FileEvent{Name: name, Operation: OpModify, Timestamp: now})
		}
	}

	for name := range p.fileState {
		if _, exists := current[name]; !exists {
			p.emitLocked(FileEvent{Name: name, Operation: OpDelete, Timestamp: now})
		}
	}

	p.fileState = current
	return nil
}

// emitLocked sends an event. Caller must hold p.mu.
func (p *PollingWatcher) emitLocked(event FileEvent) {
	if p.stopped {
		return
	}

	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("name", event.Name),
			slog.String("op", event.Operation.String()),
		)
	}
}
