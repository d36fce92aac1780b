// Package config loads One-Desk configuration.
//
// Values are applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. YAML file (onedesk.yaml in the working directory, or an explicit path)
//  3. .env file in the working directory (does not override the real environment)
//  4. ONEDESK_* environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "onedesk.yaml"

// Config is the complete One-Desk configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Uploads    UploadsConfig    `yaml:"uploads" json:"uploads"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Debug           bool          `yaml:"debug" json:"debug"`
	LogLevel        string        `yaml:"log_level" json:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig configures the chat-completion backend.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible API, DeepSeek by default),
	// "ollama", or "none".
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env" json:"api_key_env"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
}

// APIKey resolves the key from the environment variable named by APIKeyEnv.
func (l LLMConfig) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// EmbeddingsConfig configures the embedding backend.
type EmbeddingsConfig struct {
	// Provider is "static", "ollama", or "openai".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
	APIKeyEnv     string `yaml:"api_key_env" json:"api_key_env"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// APIKey resolves the key from the environment variable named by APIKeyEnv.
func (e EmbeddingsConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// StorageConfig locates the HR policy folder and the index directory.
type StorageConfig struct {
	HRPoliciesPath string `yaml:"hr_policies_path" json:"hr_policies_path"`
	IndicesPath    string `yaml:"indices_path" json:"indices_path"`
}

// HRIndexStem is the path stem of the HR policy index artifacts.
func (s StorageConfig) HRIndexStem() string {
	return filepath.Join(s.IndicesPath, "hr")
}

// MeetingIndexStem is the path stem of the meeting index artifacts.
func (s StorageConfig) MeetingIndexStem() string {
	return filepath.Join(s.IndicesPath, "meet")
}

// IndexConfig selects the vector backend.
type IndexConfig struct {
	// Backend is "flat" (exact inner product) or "hnsw" (approximate).
	Backend string `yaml:"backend" json:"backend"`
}

// ChunkingConfig configures the character-window chunker.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// MaxChunksPerDocument caps chunks per ingested document. Zero means no cap.
	MaxChunksPerDocument int `yaml:"max_chunks_per_document" json:"max_chunks_per_document"`
}

// RetrievalConfig configures the question-answering pipeline.
type RetrievalConfig struct {
	TopK             int  `yaml:"top_k" json:"top_k"`
	MaxTopK          int  `yaml:"max_top_k" json:"max_top_k"`
	MaxContextLength int  `yaml:"max_context_length" json:"max_context_length"`
	IncludeSources   bool `yaml:"include_sources" json:"include_sources"`
}

// CacheConfig configures the response and embedding caches.
type CacheConfig struct {
	Enabled              bool          `yaml:"enabled" json:"enabled"`
	TTL                  time.Duration `yaml:"ttl" json:"ttl"`
	ResponseCapacity     int           `yaml:"response_capacity" json:"response_capacity"`
	EmbeddingCapacity    int           `yaml:"embedding_capacity" json:"embedding_capacity"`
	ResponseTTL          time.Duration `yaml:"response_ttl" json:"response_ttl"`
	EmbeddingTTL         time.Duration `yaml:"embedding_ttl" json:"embedding_ttl"`
	EnableResponseCache  bool          `yaml:"enable_response_cache" json:"enable_response_cache"`
	EnableEmbeddingCache bool          `yaml:"enable_embedding_cache" json:"enable_embedding_cache"`
}

// ResponseCacheTTL returns ResponseTTL, falling back to TTL.
func (c CacheConfig) ResponseCacheTTL() time.Duration {
	if c.ResponseTTL > 0 {
		return c.ResponseTTL
	}
	return c.TTL
}

// EmbeddingCacheTTL returns EmbeddingTTL, falling back to TTL.
func (c CacheConfig) EmbeddingCacheTTL() time.Duration {
	if c.EmbeddingTTL > 0 {
		return c.EmbeddingTTL
	}
	return c.TTL
}

// ResponseCacheEnabled reports whether responses are cached.
func (c CacheConfig) ResponseCacheEnabled() bool {
	return c.Enabled && c.EnableResponseCache
}

// EmbeddingCacheEnabled reports whether query embeddings are cached.
func (c CacheConfig) EmbeddingCacheEnabled() bool {
	return c.Enabled && c.EnableEmbeddingCache
}

// UploadsConfig limits what documents are accepted.
type UploadsConfig struct {
	AllowedFileTypes []string `yaml:"allowed_file_types" json:"allowed_file_types"`
	MaxFileSizeMB    int      `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// MaxBytes returns the upload limit in bytes.
func (u UploadsConfig) MaxBytes() int64 {
	return int64(u.MaxFileSizeMB) * 1024 * 1024
}

// Allowed reports whether name has an accepted extension.
func (u UploadsConfig) Allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range u.AllowedFileTypes {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// WatchConfig configures the HR policy folder watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// TelemetryConfig configures local query statistics.
type TelemetryConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	Path          string        `yaml:"path" json:"path"`
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			LogLevel:        "info",
			ShutdownTimeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "deepseek-chat",
			BaseURL:     "https://api.deepseek.com",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Temperature: 0.1,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
			MaxRetries:  2,
		},
		Embeddings: EmbeddingsConfig{
			Provider:      "static",
			Model:         "static-256",
			Dimensions:    256,
			BatchSize:     32,
			OllamaHost:    "http://localhost:11434",
			OpenAIBaseURL: "https://api.openai.com/v1",
			APIKeyEnv:     "OPENAI_API_KEY",
			Timeout:       60 * time.Second,
		},
		Storage: StorageConfig{
			HRPoliciesPath: "./data/HR Polices",
			IndicesPath:    "./data/indices",
		},
		Index: IndexConfig{
			Backend: "flat",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MaxTopK:          20,
			MaxContextLength: 20000,
			IncludeSources:   true,
		},
		Cache: CacheConfig{
			Enabled:              true,
			TTL:                  time.Hour,
			ResponseCapacity:     500,
			EmbeddingCapacity:    10000,
			EnableResponseCache:  true,
			EnableEmbeddingCache: true,
		},
		Uploads: UploadsConfig{
			AllowedFileTypes: []string{".pdf", ".txt"},
			MaxFileSizeMB:    10,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			Path:          "./data/telemetry.db",
			FlushInterval: time.Minute,
		},
	}
}

// Load builds the configuration. path is an explicit YAML file; when empty,
// onedesk.yaml in dir is used if present.
func Load(dir, path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidate := filepath.Join(dir, DefaultFileName)
		if fileExists(candidate) {
			path = candidate
		}
	} else if !fileExists(path) {
		return nil, oderrors.New(oderrors.ErrCodeConfigNotFound,
			fmt.Sprintf("config file not found: %s", path), nil)
	}

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays the file onto c; keys absent from the file keep their
// current values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return oderrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return oderrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// loadDotEnv loads a .env file without overriding variables already set.
func loadDotEnv(path string) error {
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return oderrors.ConfigError(fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies ONEDESK_* environment variable overrides.
// Malformed numeric values are ignored.
func (c *Config) applyEnvOverrides() {
	envString("ONEDESK_HOST", &c.Server.Host)
	envInt("ONEDESK_PORT", &c.Server.Port)
	envBool("ONEDESK_DEBUG", &c.Server.Debug)
	envString("ONEDESK_LOG_LEVEL", &c.Server.LogLevel)

	envString("ONEDESK_LLM_PROVIDER", &c.LLM.Provider)
	envString("ONEDESK_LLM_MODEL", &c.LLM.Model)
	envString("ONEDESK_LLM_BASE_URL", &c.LLM.BaseURL)
	envDuration("ONEDESK_LLM_TIMEOUT", &c.LLM.Timeout)

	envString("ONEDESK_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	envString("ONEDESK_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	envInt("ONEDESK_EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)
	envString("ONEDESK_OLLAMA_HOST", &c.Embeddings.OllamaHost)

	envString("ONEDESK_HR_POLICIES_PATH", &c.Storage.HRPoliciesPath)
	envString("ONEDESK_INDICES_PATH", &c.Storage.IndicesPath)
	envString("ONEDESK_INDEX_BACKEND", &c.Index.Backend)

	envInt("ONEDESK_CHUNK_SIZE", &c.Chunking.ChunkSize)
	envInt("ONEDESK_CHUNK_OVERLAP", &c.Chunking.ChunkOverlap)

	envInt("ONEDESK_TOP_K", &c.Retrieval.TopK)
	envInt("ONEDESK_MAX_CONTEXT_LENGTH", &c.Retrieval.MaxContextLength)
	envBool("ONEDESK_INCLUDE_SOURCES", &c.Retrieval.IncludeSources)

	envBool("ONEDESK_CACHE_ENABLED", &c.Cache.Enabled)
	envDuration("ONEDESK_CACHE_TTL", &c.Cache.TTL)

	envInt("ONEDESK_MAX_FILE_SIZE_MB", &c.Uploads.MaxFileSizeMB)

	envBool("ONEDESK_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envString("ONEDESK_TELEMETRY_PATH", &c.Telemetry.Path)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

// envDuration accepts Go durations ("90s") or bare seconds ("3600").
func envDuration(key string, dst *time.Duration) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return oderrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return invalid("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "ollama", "none":
	default:
		return invalid("llm.provider must be 'openai', 'ollama', or 'none', got %s", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return invalid("llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	if c.LLM.MaxRetries < 0 {
		return invalid("llm.max_retries must be non-negative, got %d", c.LLM.MaxRetries)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return invalid("llm.temperature must be in 0..2, got %g", c.LLM.Temperature)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama", "openai":
	default:
		return invalid("embeddings.provider must be 'static', 'ollama', or 'openai', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	switch strings.ToLower(c.Index.Backend) {
	case "flat", "hnsw":
	default:
		return invalid("index.backend must be 'flat' or 'hnsw', got %s", c.Index.Backend)
	}

	if c.Storage.IndicesPath == "" {
		return invalid("storage.indices_path must not be empty")
	}

	if c.Chunking.ChunkSize <= 0 {
		return invalid("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 {
		return invalid("chunking.chunk_overlap must be non-negative, got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return invalid("chunking.chunk_overlap (%d) must be smaller than chunking.chunk_size (%d)",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Chunking.MaxChunksPerDocument < 0 {
		return invalid("chunking.max_chunks_per_document must be non-negative, got %d", c.Chunking.MaxChunksPerDocument)
	}

	if c.Retrieval.MaxTopK <= 0 {
		return invalid("retrieval.max_top_k must be positive, got %d", c.Retrieval.MaxTopK)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.TopK > c.Retrieval.MaxTopK {
		return invalid("retrieval.top_k must be in 1..%d, got %d", c.Retrieval.MaxTopK, c.Retrieval.TopK)
	}
	if c.Retrieval.MaxContextLength <= 0 {
		return invalid("retrieval.max_context_length must be positive, got %d", c.Retrieval.MaxContextLength)
	}

	if c.Cache.ResponseCapacity <= 0 || c.Cache.EmbeddingCapacity <= 0 {
		return invalid("cache capacities must be positive, got %d and %d",
			c.Cache.ResponseCapacity, c.Cache.EmbeddingCapacity)
	}
	if c.Cache.ResponseCacheTTL() <= 0 || c.Cache.EmbeddingCacheTTL() <= 0 {
		return invalid("cache ttl must be positive")
	}

	if c.Uploads.MaxFileSizeMB <= 0 {
		return invalid("uploads.max_file_size_mb must be positive, got %d", c.Uploads.MaxFileSizeMB)
	}

	if c.Telemetry.Enabled && c.Telemetry.Path == "" {
		return invalid("telemetry.path must not be empty when telemetry is enabled")
	}
	if c.Telemetry.FlushInterval < 0 {
		return invalid("telemetry.flush_interval must be non-negative, got %s", c.Telemetry.FlushInterval)
	}
	return nil
}

// EnsureDirectories creates the HR policy folder and the index directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.HRPoliciesPath, c.Storage.IndicesPath} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return oderrors.New(oderrors.ErrCodeFilePermission,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
