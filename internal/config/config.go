// Package config loads and validates the taxrag configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full taxrag configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // qdrant, pgvector, memory
	Collection string `yaml:"collection"`

	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"` // gRPC port
}

// PostgresConfig holds pgvector connection settings.
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

// ChunkingConfig holds text chunking settings.
type ChunkingConfig struct {
	ChunkSize     int `yaml:"chunk_size"`     // estimated tokens per chunk
	Overlap       int `yaml:"overlap"`        // estimated tokens carried between chunks
	CharsPerToken int `yaml:"chars_per_token"` // token estimate divisor, a heuristic not a tokenizer
}

// RetrievalConfig holds query-time retrieval settings.
type RetrievalConfig struct {
	TopK        int `yaml:"top_k"`         // candidates fetched from the store
	ContextTopK int `yaml:"context_top_k"` // candidates rendered into the prompt
	MaxSources  int `yaml:"max_sources"`   // unique documents cited per answer
}

// LLMConfig holds answer generation settings.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled bool     `yaml:"enabled"`
	Addrs   []string `yaml:"addrs"`
	TTLSec  int      `yaml:"ttl_sec"`
}

// IngestConfig holds ingestion batch settings.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency"` // bound on parallel documents per batch
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Load reads configuration from a YAML file, expanding ${VAR} references
// from the environment before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied and no backends
// configured. Used by tests and the memory backend.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "tax_documents"
	}
	if c.Store.Qdrant.Host == "" {
		c.Store.Qdrant.Host = "localhost"
	}
	if c.Store.Qdrant.Port <= 0 {
		c.Store.Qdrant.Port = 6334
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimension <= 0 {
		c.Embedding.Dimension = 768
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Chunking.ChunkSize <= 0 {
		c.Chunking.ChunkSize = 1024
	}
	if c.Chunking.Overlap <= 0 {
		c.Chunking.Overlap = 128
	}
	if c.Chunking.CharsPerToken <= 0 {
		c.Chunking.CharsPerToken = 4
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 10
	}
	if c.Retrieval.ContextTopK <= 0 {
		c.Retrieval.ContextTopK = 5
	}
	if c.Retrieval.MaxSources <= 0 {
		c.Retrieval.MaxSources = 5
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4-turbo-preview"
	}
	if c.LLM.Temperature <= 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = 4
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness. Chunking settings are
// checked here because chunk_size <= overlap would make the chunker grow a
// chunk forever; that is a startup failure, not a per-call error.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "qdrant", "pgvector", "memory":
	default:
		return fmt.Errorf("store.backend must be qdrant, pgvector or memory, got %q", c.Store.Backend)
	}
	if c.Store.Backend == "pgvector" && c.Store.Postgres.URL == "" {
		return fmt.Errorf("store.postgres.url is required for the pgvector backend")
	}
	if c.Chunking.ChunkSize <= c.Chunking.Overlap {
		return fmt.Errorf("chunking.chunk_size (%d) must be greater than chunking.overlap (%d)",
			c.Chunking.ChunkSize, c.Chunking.Overlap)
	}
	if c.Retrieval.ContextTopK > c.Retrieval.TopK {
		return fmt.Errorf("retrieval.context_top_k (%d) must not exceed retrieval.top_k (%d)",
			c.Retrieval.ContextTopK, c.Retrieval.TopK)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
