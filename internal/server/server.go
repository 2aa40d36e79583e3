// Package server exposes the HTTP API: file management, chat sessions,
// question answering and the audio transcription websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/index"
	"docchat/internal/session"
	"docchat/internal/transcribe"
)

// Server is the HTTP front end.
type Server struct {
	cfg         *config.Config
	engine      *index.Engine
	sessions    *session.Store
	chatSvc     *chat.Service
	transcriber transcribe.Transcriber
	logger      *slog.Logger

	httpServer *http.Server
}

// New wires the HTTP server to its collaborators.
func New(cfg *config.Config, engine *index.Engine, sessions *session.Store, chatSvc *chat.Service, transcriber transcribe.Transcriber, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:         cfg,
		engine:      engine,
		sessions:    sessions,
		chatSvc:     chatSvc,
		transcriber: transcriber,
		logger:      logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler:           s.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /upload_file", s.handleUploadFile)
	mux.HandleFunc("GET /list_files", s.handleListFiles)
	mux.HandleFunc("DELETE /delete_file/{filename}", s.handleDeleteFile)

	mux.HandleFunc("POST /create_chat_session", s.handleCreateSession)
	mux.HandleFunc("GET /chat_sessions", s.handleListSessions)
	mux.HandleFunc("GET /chat_history/{session_id}", s.handleChatHistory)
	mux.HandleFunc("DELETE /delete_chat_session/{session_id}", s.handleDeleteSession)

	mux.HandleFunc("POST /chat", s.handleChat)

	mux.HandleFunc("GET /ws/audio_chat", s.handleAudioChat)
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chunks": s.engine.ChunkCount(),
	})
}
