package watcher

import (
	"context"
	"log/slog"
)

// Runner pumps watcher events through a debouncer and invokes the
// reconcile callback once per settled batch. The callback receives no
// event detail on purpose: reconciliation always compares the whole
// directory against the index, so the batch only serves as a trigger.
type Runner struct {
	watcher   Watcher
	debouncer *Debouncer
	onChange  func(ctx context.Context)
	logger    *slog.Logger
}

// NewRunner creates a runner around the given watcher.
func NewRunner(w Watcher, opts Options, onChange func(ctx context.Context), logger *slog.Logger) *Runner {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		watcher:   w,
		debouncer: NewDebouncer(opts.DebounceWindow),
		onChange:  onChange,
		logger:    logger,
	}
}

// Run watches path until the context is cancelled.
func (r *Runner) Run(ctx context.Context, path string) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-r.watcher.Events():
				if !ok {
					return
				}
				r.debouncer.Add(event)
			case err, ok := <-r.watcher.Errors():
				if !ok {
					return
				}
				r.logger.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-r.debouncer.Output():
				if !ok {
					return
				}
				r.logger.Debug("file changes detected", slog.Int("count", len(batch)))
				r.onChange(ctx)
			}
		}
	}()

	defer r.debouncer.Stop()
	err := r.watcher.Start(ctx, path)
	if err == context.Canceled {
		return nil
	}
	return err
}
