package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/embed"
	"docchat/internal/index"
	"docchat/internal/llm"
	"docchat/internal/loader"
	"docchat/internal/session"
	"docchat/internal/transcribe"
)

type stubClient struct{}

func (stubClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	prompt := messages[0].Content
	switch {
	case strings.Contains(prompt, "yes or no"):
		return "no", nil
	case strings.Contains(prompt, "descriptive title"):
		return "Test Title", nil
	default:
		return "stub answer", nil
	}
}

func (stubClient) ChatWithImage(ctx context.Context, prompt, imagePath string) (string, error) {
	return "", nil
}

type testEnv struct {
	server   *httptest.Server
	cfg      *config.Config
	sessions *session.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = root
	cfg.Paths.FilesDir = filepath.Join(root, "files")
	cfg.Paths.IndexDir = filepath.Join(root, "index")
	cfg.Paths.SessionsDir = filepath.Join(root, "sessions")

	engine, err := index.NewEngine(index.Config{
		FilesDir:  cfg.Paths.FilesDir,
		IndexDir:  cfg.Paths.IndexDir,
		ChunkSize: 200,
		Overlap:   20,
	}, loader.NewRegistry(nil), embed.NewStaticEmbedder(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	sessions, err := session.NewStore(cfg.Paths.SessionsDir, nil)
	require.NoError(t, err)

	chatSvc := chat.NewService(engine, sessions, stubClient{}, chat.RetrievalConfig{Strategy: "mmr"}, nil)

	srv := New(cfg, engine, sessions, chatSvc, transcribe.Disabled{}, nil)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, cfg: cfg, sessions: sessions}
}

func uploadRequest(t *testing.T, url, filename, contentType, body string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/upload_file", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUploadFile_ValidCSV(t *testing.T) {
	env := newTestEnv(t)

	resp := uploadRequest(t, env.server.URL, "people.csv", "text/csv", "name,role\nalice,engineer\n")
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "people.csv", body["filename"])

	_, err := os.Stat(filepath.Join(env.cfg.Paths.FilesDir, "people.csv"))
	assert.NoError(t, err)
}

func TestUploadFile_UnsupportedExtension(t *testing.T) {
	env := newTestEnv(t)

	resp := uploadRequest(t, env.server.URL, "notes.txt", "text/plain", "hello")
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadFile_ContentTypeMismatch(t *testing.T) {
	env := newTestEnv(t)

	// Given: a CSV filename with a PDF content type
	resp := uploadRequest(t, env.server.URL, "people.csv", "application/pdf", "name\n")
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Then: nothing was written to the files directory
	entries, err := os.ReadDir(env.cfg.Paths.FilesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadFile_ReconcileFailureRemovesUpload(t *testing.T) {
	env := newTestEnv(t)

	// Given: a PDF upload whose bytes are not a valid PDF
	resp := uploadRequest(t, env.server.URL, "broken.pdf", "application/pdf", "not a pdf")
	defer func() { _ = resp.Body.Close() }()

	// Then: the request fails and the file is rolled back
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	_, err := os.Stat(filepath.Join(env.cfg.Paths.FilesDir, "broken.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestListFiles_GroupedByExtension(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"z.csv", "a.png", "m.pdf"} {
		require.NoError(t, os.WriteFile(filepath.Join(env.cfg.Paths.FilesDir, name), []byte("x"), 0o644))
	}

	resp, err := http.Get(env.server.URL + "/list_files")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var files []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&files))

	// Then: PDFs come before CSVs, images last
	assert.Equal(t, []string{"m.pdf", "z.csv", "a.png"}, files)
}

func TestDeleteFile_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/delete_file/nope.pdf", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteFile_RemovesAndReconciles(t *testing.T) {
	env := newTestEnv(t)
	up := uploadRequest(t, env.server.URL, "people.csv", "text/csv", "name,role\nalice,engineer\n")
	_ = up.Body.Close()
	require.Equal(t, http.StatusOK, up.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/delete_file/people.csv", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, statErr := os.Stat(filepath.Join(env.cfg.Paths.FilesDir, "people.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// When: creating a session
	resp, err := http.Post(env.server.URL+"/create_chat_session", "application/json", nil)
	require.NoError(t, err)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, created["session_id"])
	assert.Equal(t, "Session 1", created["title"])
	assert.Contains(t, created["session_url"], "/chat/"+created["session_id"])

	// When: listing sessions
	listResp, err := http.Get(env.server.URL + "/chat_sessions")
	require.NoError(t, err)
	var summaries []map[string]string
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&summaries))
	_ = listResp.Body.Close()
	require.Len(t, summaries, 1)
	assert.Equal(t, created["session_id"], summaries[0]["session_id"])

	// When: deleting the session
	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/delete_chat_session/"+created["session_id"], nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	// Then: deleting again reports not found
	again, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestChatHistory_UnknownSessionIsEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/chat_history/unknown")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []session.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	assert.Empty(t, history)
}

func TestChat_AnswersAndRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.sessions.Create()
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{
		"session_id": sess.ID,
		"query":      "who is alice",
	})
	require.NoError(t, err)

	resp, err := http.Post(env.server.URL+"/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var answer struct {
		Answer string  `json:"answer"`
		Title  *string `json:"title"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	assert.Equal(t, "stub answer", answer.Answer)
	require.NotNil(t, answer.Title)
	assert.Equal(t, "Test Title", *answer.Title)
}

func TestChat_EmptyQueryIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.sessions.Create()
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"session_id": sess.ID, "query": ""})
	require.NoError(t, err)

	resp, err := http.Post(env.server.URL+"/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
