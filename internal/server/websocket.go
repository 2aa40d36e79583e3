package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 4 << 10,
	// Browser clients connect from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleAudioChat receives raw audio blobs over a websocket,
// transcribes each one and sends the text back. The temp audio file is
// removed after every message and again on the way out, so a failed
// transcription never leaks it.
func (s *Server) handleAudioChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	audioFile := filepath.Join(os.TempDir(), fmt.Sprintf("temp_audio_%s.wav", filepath.Base(sessionID)))
	defer removeIfExists(audioFile)

	s.logger.Info("audio chat connected", slog.String("session_id", sessionID))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("audio chat read failed",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()))
			} else {
				s.logger.Info("audio chat disconnected", slog.String("session_id", sessionID))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		text, err := s.transcribeBlob(r.Context(), audioFile, data)
		if err != nil {
			s.logger.Warn("transcription failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			if writeErr := conn.WriteMessage(websocket.TextMessage, []byte("Error: "+err.Error())); writeErr != nil {
				return
			}
			continue
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			return
		}
	}
}

// transcribeBlob writes the audio to the temp file, transcribes it and
// removes the file regardless of outcome.
func (s *Server) transcribeBlob(ctx context.Context, audioFile string, data []byte) (string, error) {
	defer removeIfExists(audioFile)

	if err := os.WriteFile(audioFile, data, 0o600); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}

	return s.transcriber.Transcribe(ctx, audioFile)
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove temp audio file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}
