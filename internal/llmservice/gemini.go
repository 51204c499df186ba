package llmservice

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"prepvista-rag/internal/config"
)

type geminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiGenerator(ctx context.Context, cfg *config.LLMConfig) (Generator, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.Key),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiGenerator{client: client, model: cfg.Model, temperature: float32(cfg.Temperature)}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", err
	}
	return CleanOutput(resp.Text()), nil
}

func (g *geminiGenerator) ModelName() string {
	return g.model
}
