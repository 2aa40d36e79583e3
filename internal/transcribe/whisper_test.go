package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperClient_Transcribe(t *testing.T) {
	// Given: a server mimicking the transcription API
	var gotAuth, gotModel string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/transcriptions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		_ = file.Close()

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  hello world \n"})
	}))
	defer ts.Close()

	audioPath := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF"), 0o600))

	c := NewWhisperClient(Options{APIBase: ts.URL, APIKey: "key123", Model: "whisper-1"})

	// When: transcribing
	text, err := c.Transcribe(context.Background(), audioPath)
	require.NoError(t, err)

	// Then: the text is trimmed and the request carried auth and model
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "Bearer key123", gotAuth)
	assert.Equal(t, "whisper-1", gotModel)
}

func TestWhisperClient_APIErrorSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	audioPath := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF"), 0o600))

	c := NewWhisperClient(Options{APIBase: ts.URL})

	_, err := c.Transcribe(context.Background(), audioPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestWhisperClient_MissingFile(t *testing.T) {
	c := NewWhisperClient(Options{APIBase: "http://localhost:1"})

	_, err := c.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))

	assert.Error(t, err)
}

func TestDisabled_AlwaysFails(t *testing.T) {
	_, err := Disabled{}.Transcribe(context.Background(), "x.wav")

	assert.Error(t, err)
}
