package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	appErrors "docchat/internal/errors"
	"docchat/internal/loader"
	"docchat/internal/session"
)

// maxUploadSize bounds multipart uploads (64 MiB).
const maxUploadSize = 64 << 20

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps an error onto an HTTP status and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	status := appErrors.HTTPStatus(err)

	body := map[string]any{"detail": err.Error()}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		body["detail"] = appErr.Message
		body["code"] = appErr.Code
	}

	writeJSON(w, status, body)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, appErrors.ValidationError(appErrors.ErrCodeUnsupportedFileType, "invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, appErrors.ValidationError(appErrors.ErrCodeUnsupportedFileType, "missing file field"))
		return
	}
	defer func() { _ = file.Close() }()

	filename := filepath.Base(header.Filename)
	ext := loader.Ext(filename)

	wantType, ok := loader.AllowedTypes[ext]
	if !ok {
		writeError(w, appErrors.ValidationError(appErrors.ErrCodeUnsupportedFileType, "Unsupported file type"))
		return
	}

	if got := header.Header.Get("Content-Type"); got != wantType {
		writeError(w, appErrors.ValidationError(appErrors.ErrCodeContentTypeMismatch,
			fmt.Sprintf("Invalid content type for %s files", strings.ToUpper(ext))))
		return
	}

	path := filepath.Join(s.cfg.Paths.FilesDir, filename)
	if err := s.saveUpload(path, file); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.engine.Reconcile(r.Context()); err != nil {
		// The upload cannot be served, so do not leave it behind to
		// fail every future reconcile the same way.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("failed to remove rejected upload",
				slog.String("filename", filename),
				slog.String("error", rmErr.Error()))
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"filename": filename,
		"message":  fmt.Sprintf("%s file uploaded successfully", strings.ToUpper(ext)),
	})
}

func (s *Server) saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}

	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close upload file: %w", err)
	}
	return nil
}

// handleListFiles returns the uploaded file names grouped by extension
// and flattened into one list.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.Paths.FilesDir)
	if err != nil {
		writeError(w, fmt.Errorf("read files directory: %w", err))
		return
	}

	byExt := make(map[string][]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		byExt[loader.Ext(entry.Name())] = append(byExt[loader.Ext(entry.Name())], entry.Name())
	}

	extOrder := []string{"pdf", "csv", "xlsx", "json", "jpg", "jpeg", "png"}
	files := make([]string, 0, len(entries))
	for _, ext := range extOrder {
		files = append(files, byExt[ext]...)
	}

	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.PathValue("filename"))
	path := filepath.Join(s.cfg.Paths.FilesDir, filename)

	if _, err := os.Stat(path); err != nil {
		writeError(w, appErrors.NotFoundError(appErrors.ErrCodeFileNotFound, "file "+filename))
		return
	}

	if err := os.Remove(path); err != nil {
		writeError(w, fmt.Errorf("delete file: %w", err))
		return
	}

	if _, err := s.engine.Reconcile(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"filename": filename,
		"message":  "File deleted successfully",
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeError(w, err)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id":  sess.ID,
		"session_url": fmt.Sprintf("%s://%s/chat/%s", scheme, r.Host, sess.ID),
		"title":       sess.Title,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.sessions.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleChatHistory returns a session's messages. An unknown session
// yields an empty history rather than an error, so a fresh client can
// poll before its first exchange.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	sess, err := s.sessions.Get(id)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrCodeSessionNotFound {
			writeJSON(w, http.StatusOK, []session.Message{})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess.History)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session_id")

	if err := s.sessions.Delete(id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"message":    "Chat session deleted successfully",
	})
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, appErrors.ValidationError(appErrors.ErrCodeEmptyQuery, "invalid request body"))
		return
	}

	resp, err := s.chatSvc.Answer(r.Context(), req.SessionID, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
