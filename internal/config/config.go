// Package config provides configuration loading and structs for SmartDoc.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
	OCR       OCRConfig       `yaml:"ocr"`
	FollowUps FollowUpConfig  `yaml:"followups"`
	Export    ExportConfig    `yaml:"export"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MaxUploadMB bounds a multipart upload request.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// StorageConfig holds paths for uploaded files and persisted indexes.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	IndexDir  string `yaml:"index_dir"`
}

// Key strategies for naming a persisted index.
const (
	KeyContent  = "content"
	KeyFilename = "filename"
)

// IndexConfig controls how an upload maps to a persisted index.
type IndexConfig struct {
	KeyStrategy string `yaml:"key_strategy"`
	// Keyword additionally builds a BM25 index next to the vectors.
	Keyword bool `yaml:"keyword"`
}

// Embedding providers.
const (
	ProviderONNX   = "onnx"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	ModelPath   string `yaml:"model_path"`
	Dimensions  int    `yaml:"dimensions"`
	MaxTokens   int    `yaml:"max_tokens"`
	CacheSize   int    `yaml:"cache_size"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
}

// ChunkingConfig holds splitter settings, measured in characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds retrieval and context assembly settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// ContextK truncates the retrieved chunks placed in the prompt. Negative disables truncation.
	ContextK        int     `yaml:"context_k"`
	AnnotateSources *bool   `yaml:"annotate_sources"`
	Hybrid          bool    `yaml:"hybrid"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	SemanticWeight  float64 `yaml:"semantic_weight"`
}

// AnnotateOrDefault reports whether context passages carry source annotations; defaults to true.
func (r *RetrievalConfig) AnnotateOrDefault() bool {
	if r.AnnotateSources != nil {
		return *r.AnnotateSources
	}
	return true
}

// LLMConfig holds settings for the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	StreamBuffer      int     `yaml:"stream_buffer"`
}

// APIKey returns the key read from the configured environment variable.
func (l *LLMConfig) APIKey() string {
	return os.Getenv(l.APIKeyEnv)
}

// OCR modes.
const (
	OCRAuto   = "auto"
	OCRAlways = "always"
	OCRNever  = "never"
)

// OCRConfig holds scanned-document recognition settings.
type OCRConfig struct {
	Mode          string `yaml:"mode"`
	TesseractCmd  string `yaml:"tesseract_cmd"`
	RasterizerCmd string `yaml:"rasterizer_cmd"`
	Language      string `yaml:"language"`
	DPI           int    `yaml:"dpi"`
}

// FollowUpConfig holds follow-up suggestion settings.
type FollowUpConfig struct {
	Count int `yaml:"count"`
}

// ExportConfig holds transcript export settings.
type ExportConfig struct {
	Filename string `yaml:"filename"`
	Title    string `yaml:"title"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(filepath.Dir(path))
	return &cfg, nil
}

// LoadOrDefault loads path when it exists. A missing file yields the defaults,
// with relative paths resolved against the working directory.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = &Config{}
	ApplyDefaults(cfg)
	wd, werr := os.Getwd()
	if werr != nil {
		wd = "."
	}
	cfg.expandPaths(wd)
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderONNX, ProviderOllama, ProviderHash:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.OCR.Mode {
	case OCRAuto, OCRAlways, OCRNever:
	default:
		return fmt.Errorf("unknown ocr mode %q", c.OCR.Mode)
	}
	switch c.Index.KeyStrategy {
	case KeyContent, KeyFilename:
	default:
		return fmt.Errorf("unknown index key strategy %q", c.Index.KeyStrategy)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Retrieval.Hybrid && !c.Index.Keyword {
		return fmt.Errorf("hybrid retrieval requires index.keyword to be enabled")
	}
	return nil
}

func (c *Config) expandPaths(baseDir string) {
	c.Storage.UploadDir = expandPath(c.Storage.UploadDir, baseDir)
	c.Storage.IndexDir = expandPath(c.Storage.IndexDir, baseDir)
	if c.Embedding.ModelPath != "" {
		c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, baseDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
