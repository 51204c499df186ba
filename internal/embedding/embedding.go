package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"prepvista-rag/internal/config"
)

// Task tells the provider what the vector will be used for
type Task string

const (
	TaskDocument Task = "RETRIEVAL_DOCUMENT"
	TaskQuery    Task = "RETRIEVAL_QUERY"
)

// Embedder produces one vector per text
type Embedder interface {
	Embed(ctx context.Context, text string, task Task) ([]float32, error)
	ModelName() string
}

// New builds the embedder for the configured provider
func New(ctx context.Context, cfg *config.LLMConfig) (Embedder, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("Creating embedder")
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "gemini":
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// langchainEmbedder adapts a langchaingo embedder. Task types are not
// supported by these providers and are ignored.
type langchainEmbedder struct {
	impl  *embeddings.EmbedderImpl
	model string
}

// NewOpenAIEmbedder works with any OpenAI compatible endpoint
func NewOpenAIEmbedder(cfg *config.LLMConfig) (Embedder, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &langchainEmbedder{impl: impl, model: cfg.Model}, nil
}

func NewOllamaEmbedder(cfg *config.LLMConfig) (Embedder, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	impl, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &langchainEmbedder{impl: impl, model: cfg.Model}, nil
}

func (e *langchainEmbedder) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	if task == TaskQuery {
		return e.impl.EmbedQuery(ctx, text)
	}
	vectors, err := e.impl.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

func (e *langchainEmbedder) ModelName() string {
	return e.model
}
