// Package transcribe turns recorded audio into text via a
// Whisper-compatible transcription API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appErrors "docchat/internal/errors"
)

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// WhisperClient talks to an OpenAI-compatible /audio/transcriptions
// endpoint (OpenAI, Groq, a local whisper server).
type WhisperClient struct {
	apiBase    string
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ Transcriber = (*WhisperClient)(nil)

// Options configures the Whisper client.
type Options struct {
	APIBase string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewWhisperClient creates a transcription client.
func NewWhisperClient(opts Options) *WhisperClient {
	if opts.Model == "" {
		opts.Model = "whisper-1"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	return &WhisperClient{
		apiBase:    strings.TrimRight(opts.APIBase, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the audio file and returns the recognized text.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "failed to open audio file", err)
	}
	defer func() { _ = audio.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "failed to create form file", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "failed to copy audio data", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "failed to write model field", err)
	}
	if err := writer.Close(); err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "failed to finalize form", err)
	}

	url := c.apiBase + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "failed to create request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "transcription request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", appErrors.Newf(appErrors.ErrCodeTranscribeFailed,
			"transcription API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", appErrors.New(appErrors.ErrCodeTranscribeFailed, "failed to decode transcription response", err)
	}

	return strings.TrimSpace(tr.Text), nil
}

// Disabled is a Transcriber used when no transcription backend is
// configured.
type Disabled struct{}

var _ Transcriber = (*Disabled)(nil)

// Transcribe always fails with a configuration hint.
func (Disabled) Transcribe(context.Context, string) (string, error) {
	return "", fmt.Errorf("transcription is not configured: set transcribe.api_base")
}
