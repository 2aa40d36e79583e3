package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/embed"
	"docchat/internal/index"
	"docchat/internal/llm"
	"docchat/internal/loader"
	"docchat/internal/session"
	"docchat/internal/transcribe"
)

// app holds the wired application components.
type app struct {
	cfg         *config.Config
	engine      *index.Engine
	sessions    *session.Store
	chatSvc     *chat.Service
	transcriber transcribe.Transcriber
	embedder    embed.Embedder
	logger      *slog.Logger
}

// buildApp constructs the full dependency graph from configuration.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := slog.Default()

	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	client := llm.NewOllamaClient(llm.OllamaOptions{
		Host:    cfg.Chat.OllamaHost,
		Model:   cfg.Chat.Model,
		Timeout: cfg.Chat.Timeout,
	})

	loaders := loader.NewRegistry(&llm.ImageDescriber{Client: client})

	engine, err := index.NewEngine(index.Config{
		FilesDir:  cfg.Paths.FilesDir,
		IndexDir:  cfg.Paths.IndexDir,
		ChunkSize: cfg.Chunking.Size,
		Overlap:   cfg.Chunking.Overlap,
	}, loaders, embedder, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("open index: %w", err)
	}

	sessions, err := session.NewStore(cfg.Paths.SessionsDir, logger)
	if err != nil {
		_ = engine.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	chatSvc := chat.NewService(engine, sessions, client, chat.RetrievalConfig{
		Strategy: cfg.Retrieval.Strategy,
		K:        cfg.Retrieval.TopK,
		FetchK:   cfg.Retrieval.FetchK,
		Lambda:   cfg.Retrieval.MMRLambda,
	}, logger)

	var transcriber transcribe.Transcriber = transcribe.Disabled{}
	if cfg.Transcribe.APIBase != "" {
		transcriber = transcribe.NewWhisperClient(transcribe.Options{
			APIBase: cfg.Transcribe.APIBase,
			APIKey:  cfg.Transcribe.APIKey,
			Model:   cfg.Transcribe.Model,
		})
	}

	return &app{
		cfg:         cfg,
		engine:      engine,
		sessions:    sessions,
		chatSvc:     chatSvc,
		transcriber: transcriber,
		embedder:    embedder,
		logger:      logger,
	}, nil
}

// close releases the app's resources.
func (a *app) close() {
	if err := a.engine.Close(); err != nil {
		a.logger.Warn("failed to close index engine", slog.String("error", err.Error()))
	}
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("failed to close embedder", slog.String("error", err.Error()))
	}
}
