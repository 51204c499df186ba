package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"prepvista-rag/internal/config"
	"prepvista-rag/internal/models"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// Generator produces a completion for a system instruction and a user prompt
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	ModelName() string
}

// New builds the generator for the configured provider
func New(ctx context.Context, cfg *config.LLMConfig) (Generator, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating inference client")
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return &langchainGenerator{llm: llm, model: cfg.Model, temperature: cfg.Temperature}, nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return &langchainGenerator{llm: llm, model: cfg.Model, temperature: cfg.Temperature}, nil
	case "gemini":
		return NewGeminiGenerator(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

type langchainGenerator struct {
	llm         llms.Model
	model       string
	temperature float64
}

func (g *langchainGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	res, err := g.llm.GenerateContent(ctx, messages, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", nil
	}
	return CleanOutput(res.Choices[0].Content), nil
}

func (g *langchainGenerator) ModelName() string {
	return g.model
}

// CleanOutput strips reasoning blocks some models emit before the answer
func CleanOutput(s string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(s, ""))
}
