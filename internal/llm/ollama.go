// Package llm wraps the chat model collaborator. All calls go through
// Ollama's /api/chat endpoint; the model itself is external to docchat.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultHost    = "http://localhost:11434"
	defaultModel   = "qwen2:0.5b"
	defaultTimeout = 120 * time.Second
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64-encoded, vision models only
}

// Client generates text from a conversation.
type Client interface {
	// Chat sends the messages and returns the model's reply.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatWithImage sends a prompt plus one image to a vision-capable model.
	ChatWithImage(ctx context.Context, prompt, imagePath string) (string, error)
}

// OllamaClient talks to Ollama's /api/chat endpoint.
type OllamaClient struct {
	host   string
	model  string
	client *http.Client
}

var _ Client = (*OllamaClient)(nil)

// OllamaOptions configures the Ollama chat client.
type OllamaOptions struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// NewOllamaClient creates a new Ollama chat client.
func NewOllamaClient(opts OllamaOptions) *OllamaClient {
	if opts.Host == "" {
		opts.Host = defaultHost
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &OllamaClient{
		host:   opts.Host,
		model:  opts.Model,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// chatRequest matches the Ollama /api/chat request body.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chatResponse matches the Ollama /api/chat response body.
type chatResponse struct {
	Message Message `json:"message"`
}

// Chat sends the messages and returns the model's reply.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	return result.Message.Content, nil
}

// ChatWithImage sends the prompt with one base64-encoded image attached.
func (c *OllamaClient) ChatWithImage(ctx context.Context, prompt, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	return c.Chat(ctx, []Message{{
		Role:    RoleUser,
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(data)},
	}})
}
