// Package config loads and validates docchat configuration.
// Configuration comes from a YAML file with environment variable
// overrides (DOCCHAT_*), falling back to defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file looked up in the data directory.
const DefaultConfigFile = "docchat.yaml"

// Config represents the complete docchat configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Paths      PathsConfig      `yaml:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Chat       ChatConfig       `yaml:"chat"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Watcher    WatcherConfig    `yaml:"watcher"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// PathsConfig configures where durable state lives.
type PathsConfig struct {
	// DataDir is the root for all persisted state. Defaults to ./data.
	DataDir string `yaml:"data_dir"`
	// FilesDir holds uploaded source documents. Defaults to <data>/files.
	FilesDir string `yaml:"files_dir"`
	// IndexDir holds the vector index and its metadata store.
	// Defaults to <data>/index. Deleted wholesale when a reconcile fails.
	IndexDir string `yaml:"index_dir"`
	// SessionsDir holds one JSON file per chat session.
	// Defaults to <data>/sessions.
	SessionsDir string `yaml:"sessions_dir"`
}

// ChunkingConfig configures the text splitter.
// Both 1000/100 and 2000/200 are supported configurations.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "ollama" (default) or "static"
	// (deterministic hash embeddings, offline/testing only).
	Provider   string `yaml:"provider"`
	OllamaHost string `yaml:"ollama_host"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	// CacheSize is the number of embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size"`
}

// ChatConfig configures the chat model collaborator.
type ChatConfig struct {
	OllamaHost string        `yaml:"ollama_host"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	// ClassifyImageQueries routes image-related questions through the
	// image answer prompt when enabled.
	ClassifyImageQueries bool `yaml:"classify_image_queries"`
}

// RetrievalConfig configures chunk retrieval for answering.
type RetrievalConfig struct {
	// Strategy is "similarity" or "mmr".
	Strategy string `yaml:"strategy"`
	TopK     int    `yaml:"top_k"`
	// FetchK is the candidate pool size for MMR re-ranking.
	FetchK int `yaml:"fetch_k"`
	// MMRLambda trades relevance (1.0) against diversity (0.0).
	MMRLambda float64 `yaml:"mmr_lambda"`
}

// TranscribeConfig configures the Whisper-compatible transcription API.
type TranscribeConfig struct {
	APIBase  string `yaml:"api_base"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// WatcherConfig configures the files-directory change trigger.
type WatcherConfig struct {
	// Mode is "fsnotify" (default) or "poll".
	Mode           string        `yaml:"mode"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8000,
			LogLevel: "info",
		},
		Paths: PathsConfig{
			DataDir: "data",
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			BatchSize:  32,
			CacheSize:  1000,
		},
		Chat: ChatConfig{
			OllamaHost:           "http://localhost:11434",
			Model:                "qwen2:0.5b",
			Timeout:              120 * time.Second,
			ClassifyImageQueries: true,
		},
		Retrieval: RetrievalConfig{
			Strategy:  "mmr",
			TopK:      3,
			FetchK:    20,
			MMRLambda: 0.5,
		},
		Transcribe: TranscribeConfig{
			APIBase: "https://api.openai.com/v1",
			Model:   "whisper-1",
		},
		Watcher: WatcherConfig{
			Mode:           "fsnotify",
			PollInterval:   5 * time.Second,
			DebounceWindow: 500 * time.Millisecond,
		},
	}
}

// Load reads configuration from the given YAML file, applies environment
// overrides, resolves derived paths, and validates the result.
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies DOCCHAT_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("DOCCHAT_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DOCCHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("DOCCHAT_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("DOCCHAT_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
		c.Chat.OllamaHost = v
	}
	if v := os.Getenv("DOCCHAT_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCCHAT_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCCHAT_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("DOCCHAT_WHISPER_API_BASE"); v != "" {
		c.Transcribe.APIBase = v
	}
	if v := os.Getenv("DOCCHAT_WHISPER_API_KEY"); v != "" {
		c.Transcribe.APIKey = v
	}
}

// resolvePaths fills in derived paths relative to the data directory.
func (c *Config) resolvePaths() {
	if c.Paths.FilesDir == "" {
		c.Paths.FilesDir = filepath.Join(c.Paths.DataDir, "files")
	}
	if c.Paths.IndexDir == "" {
		c.Paths.IndexDir = filepath.Join(c.Paths.DataDir, "index")
	}
	if c.Paths.SessionsDir == "" {
		c.Paths.SessionsDir = filepath.Join(c.Paths.DataDir, "sessions")
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	switch c.Embeddings.Provider {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider)
	}
	switch c.Retrieval.Strategy {
	case "similarity", "mmr":
	default:
		return fmt.Errorf("retrieval.strategy must be 'similarity' or 'mmr', got %q", c.Retrieval.Strategy)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.Strategy == "mmr" {
		if c.Retrieval.FetchK < c.Retrieval.TopK {
			return fmt.Errorf("retrieval.fetch_k must be >= top_k, got %d < %d", c.Retrieval.FetchK, c.Retrieval.TopK)
		}
		if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
			return fmt.Errorf("retrieval.mmr_lambda must be in [0, 1], got %g", c.Retrieval.MMRLambda)
		}
	}
	switch c.Watcher.Mode {
	case "fsnotify", "poll", "off":
	default:
		return fmt.Errorf("watcher.mode must be 'fsnotify', 'poll' or 'off', got %q", c.Watcher.Mode)
	}
	return nil
}
