package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"prepvista-rag/internal/ragerr"
)

const DefaultPath = "./configs/config.yaml"

// MaxContextChunksLimit is the hard ceiling on chunks handed to the composer
const MaxContextChunksLimit = 10

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type DatabaseConfig struct {
	Type         string `yaml:"type"`   // postgres, sqlite or memory
	Driver       string `yaml:"driver"` // pgdriver or pq
	DSN          string `yaml:"dsn"`
	Password     string `yaml:"password"`
	Debug        bool   `yaml:"debug"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type VectorIndexConfig struct {
	Type     string `yaml:"type"` // pgvector, chromem or memory
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, ollama or gemini
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Dimension   int     `yaml:"dimension"`
	Temperature float64 `yaml:"temperature"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type RAGConfig struct {
	ChunkSize        int           `yaml:"chunk_size"`
	ChunkOverlap     int           `yaml:"chunk_overlap"`
	BatchSize        int           `yaml:"batch_size"`
	BatchDelay       time.Duration `yaml:"batch_delay"`
	Retry            RetryConfig   `yaml:"retry"`
	MinSimilarity    float64       `yaml:"min_similarity"`
	MaxContextChunks int           `yaml:"max_context_chunks"`
	DedupeSimilarity float64       `yaml:"dedupe_similarity"`
	ExcerptLength    int           `yaml:"excerpt_length"`
	QueryCacheSize   int           `yaml:"query_cache_size"`
	QueryCacheTTL    time.Duration `yaml:"query_cache_ttl"`
	MaxFileBytes     int64         `yaml:"max_file_bytes"`
	IngestTimeout    time.Duration `yaml:"ingest_timeout"`
	SearchTimeout    time.Duration `yaml:"search_timeout"`
	ComposeTimeout   time.Duration `yaml:"compose_timeout"`
}

type ScheduleConfig struct {
	ResumeSpec string `yaml:"resume_spec"`
}

type Config struct {
	Log          LogConfig         `yaml:"log"`
	Database     DatabaseConfig    `yaml:"database"`
	VectorIndex  VectorIndexConfig `yaml:"vector_index"`
	EmbedLLM     LLMConfig         `yaml:"embed_llm"`
	InferenceLLM LLMConfig         `yaml:"inference_llm"`
	RAG          RAGConfig         `yaml:"rag"`
	Schedule     ScheduleConfig    `yaml:"schedule"`
}

// LoadConfig reads the yaml file at path, expanding ${VAR} references from
// the environment and an optional .env file next to the working directory.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml config bytes over the defaults and validates the
// result. Keys missing from data keep their default, so explicit zero
// values such as chunk_overlap: 0 survive.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	resolve(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration that runs fully in memory
func Default() *Config {
	cfg := defaults()
	cfg.Database.Type = "memory"
	cfg.VectorIndex.Type = "memory"
	resolve(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		Log:      LogConfig{Level: "info"},
		Database: DatabaseConfig{Type: "postgres"},
		EmbedLLM: LLMConfig{Provider: "gemini"},
		InferenceLLM: LLMConfig{
			Provider:    "gemini",
			Temperature: 0.3,
		},
		RAG: RAGConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			BatchSize:    5,
			BatchDelay:   time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   500 * time.Millisecond,
				MaxDelay:    5 * time.Second,
			},
			MinSimilarity:    0.5,
			MaxContextChunks: 5,
			DedupeSimilarity: 0.9,
			ExcerptLength:    300,
			QueryCacheSize:   256,
			QueryCacheTTL:    time.Hour,
			MaxFileBytes:     50 << 20,
			IngestTimeout:    2 * time.Minute,
			SearchTimeout:    10 * time.Second,
			ComposeTimeout:   30 * time.Second,
		},
		Schedule: ScheduleConfig{ResumeSpec: "*/5 * * * *"},
	}
}

// resolve fills the settings whose default depends on other settings
func resolve(cfg *Config) {
	if cfg.Database.Type == "postgres" && cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.VectorIndex.Type == "" {
		switch cfg.Database.Type {
		case "postgres":
			cfg.VectorIndex.Type = "pgvector"
		case "sqlite":
			cfg.VectorIndex.Type = "chromem"
		default:
			cfg.VectorIndex.Type = "memory"
		}
	}
	if cfg.VectorIndex.Type == "chromem" && cfg.VectorIndex.Path == "" {
		cfg.VectorIndex.Path = "./chromemdb"
	}
	if cfg.EmbedLLM.Model == "" && cfg.EmbedLLM.Provider == "gemini" {
		cfg.EmbedLLM.Model = "text-embedding-004"
	}
	if cfg.InferenceLLM.Model == "" && cfg.InferenceLLM.Provider == "gemini" {
		cfg.InferenceLLM.Model = "gemini-1.5-flash"
	}
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres":
		if c.Database.Driver != "pgdriver" && c.Database.Driver != "pq" {
			return fmt.Errorf("unknown database driver %q", c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	case "sqlite":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}

	switch c.VectorIndex.Type {
	case "pgvector":
		if c.Database.Type != "postgres" {
			return fmt.Errorf("vector_index pgvector requires database type postgres")
		}
	case "chromem", "memory":
	default:
		return fmt.Errorf("unknown vector index type %q", c.VectorIndex.Type)
	}

	if c.EmbedLLM.Model == "" {
		return fmt.Errorf("embed_llm.model is required")
	}
	if c.InferenceLLM.Model == "" {
		return fmt.Errorf("inference_llm.model is required")
	}

	r := c.RAG
	if r.ChunkSize <= 0 || r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got size=%d overlap=%d: %w", r.ChunkSize, r.ChunkOverlap, ragerr.ErrInvalidChunkConfig)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("rag.batch_size must be positive")
	}
	if r.BatchDelay < 0 {
		return fmt.Errorf("rag.batch_delay must not be negative")
	}
	if r.MinSimilarity < -1 || r.MinSimilarity > 1 {
		return fmt.Errorf("rag.min_similarity must be within [-1, 1]")
	}
	if r.MaxContextChunks < 1 || r.MaxContextChunks > MaxContextChunksLimit {
		return fmt.Errorf("rag.max_context_chunks must be within [1, %d]", MaxContextChunksLimit)
	}
	if r.Retry.MaxAttempts < 1 {
		return fmt.Errorf("rag.retry.max_attempts must be at least 1")
	}
	return nil
}
