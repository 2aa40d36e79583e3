package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docchat/internal/server"
	"docchat/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		Long: `Starts the HTTP server, reconciles the index against the files
directory on startup, and keeps watching that directory for changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable the files-directory watcher")

	return cmd
}

func runServe(ctx context.Context, noWatch bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// Reconcile at startup so files dropped in while the server was
	// down get indexed before the first query.
	if result, err := a.engine.Reconcile(ctx); err != nil {
		a.logger.Error("startup reconcile failed", slog.String("error", err.Error()))
	} else if result.Changed() {
		a.logger.Info("startup reconcile applied changes",
			slog.Int("added", len(result.Added)),
			slog.Int("removed", len(result.Removed)))
	}

	srv := server.New(cfg, a.engine, a.sessions, a.chatSvc, a.transcriber, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(ctx)
	})

	if !noWatch && cfg.Watcher.Mode != "off" {
		var w watcher.Watcher
		if cfg.Watcher.Mode == "poll" {
			w = watcher.NewPollingWatcher(cfg.Watcher.PollInterval)
		} else {
			w = watcher.NewFSNotifyWatcher()
		}

		runner := watcher.NewRunner(w, watcher.Options{
			DebounceWindow: cfg.Watcher.DebounceWindow,
			PollInterval:   cfg.Watcher.PollInterval,
		}, func(ctx context.Context) {
			if _, err := a.engine.Reconcile(ctx); err != nil {
				a.logger.Error("watcher reconcile failed", slog.String("error", err.Error()))
			}
		}, a.logger)

		g.Go(func() error {
			return runner.Run(ctx, cfg.Paths.FilesDir)
		})
	}

	return g.Wait()
}
