package embedding

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"prepvista-rag/internal/config"
)

type geminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.LLMConfig) (Embedder, error) {
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
	return &geminiEmbedder{client: client, model: cfg.Model, dimension: int32(cfg.Dimension)}, nil
}

func (g *geminiEmbedder) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	embedCfg := &genai.EmbedContentConfig{TaskType: string(task)}
	if g.dimension > 0 {
		embedCfg.OutputDimensionality = &g.dimension
	}
	resp, err := g.client.Models.EmbedContent(
		ctx,
		g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		embedCfg,
	)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

func (g *geminiEmbedder) ModelName() string {
	return g.model
}
