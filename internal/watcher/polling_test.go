package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvent(t *testing.T, events <-chan FileEvent, timeout time.Duration) FileEvent {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "event channel closed")
		return e
	case <-time.After(timeout):
		t.Fatal("timeout waiting for event")
		return FileEvent{}
	}
}

func TestPollingWatcher_DetectsCreate(t *testing.T) {
	dir := t.TempDir()
	p := NewPollingWatcher(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	// When: a new file appears
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.pdf"), []byte("x"), 0o644))

	// Then: a create event is emitted
	event := collectEvent(t, p.Events(), time.Second)
	assert.Equal(t, "doc.pdf", event.Name)
	assert.Equal(t, OpCreate, event.Operation)
}

func TestPollingWatcher_DetectsDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	p := NewPollingWatcher(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	// When: the file is removed
	require.NoError(t, os.Remove(path))

	// Then: a delete event is emitted
	event := collectEvent(t, p.Events(), time.Second)
	assert.Equal(t, "doc.pdf", event.Name)
	assert.Equal(t, OpDelete, event.Operation)
}

func TestPollingWatcher_IgnoresDotfiles(t *testing.T) {
	dir := t.TempDir()
	p := NewPollingWatcher(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	// When: only a dotfile appears
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))

	// Then: no event is emitted
	select {
	case e := <-p.Events():
		t.Fatalf("expected no events, got %v", e)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRunner_TriggersOnChange(t *testing.T) {
	dir := t.TempDir()

	triggered := make(chan struct{}, 1)
	runner := NewRunner(NewPollingWatcher(20*time.Millisecond), Options{
		DebounceWindow: 30 * time.Millisecond,
	}, func(context.Context) {
		select {
		case triggered <- struct{}{}:
		default:
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx, dir) }()
	time.Sleep(50 * time.Millisecond)

	// When: a file appears
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.pdf"), []byte("x"), 0o644))

	// Then: the reconcile callback fires
	select {
	case <-triggered:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change callback")
	}
}
