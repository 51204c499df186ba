package rag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"prepvista-rag/internal/llmservice"
	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
)

type Composer struct {
	generator     llmservice.Generator
	timeout       time.Duration
	excerptLength int
	md            goldmark.Markdown
}

func NewComposer(g llmservice.Generator, timeout time.Duration, excerptLength int) *Composer {
	return &Composer{
		generator:     g,
		timeout:       timeout,
		excerptLength: excerptLength,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Compose answers query from the retrieved context. Without context the
// fixed fallback answer is returned and the generator is not called.
func (c *Composer) Compose(ctx context.Context, query string, r *Retrieval, includeSources bool) (*models.Answer, error) {
	if r == nil || !r.ContextUsed || len(r.Chunks) == 0 {
		return &models.Answer{
			Text:       models.NoContextAnswer,
			HTML:       c.renderHTML(models.NoContextAnswer),
			Grounded:   false,
			Sources:    []models.Source{},
			Similarity: []float64{},
		}, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(models.AnswerPromptTemplate, FormatContext(r.Chunks), query)
	start := time.Now()
	text, err := c.generator.Generate(ctx, models.SystemPrompt, prompt)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("generation timed out after %s: %w", c.timeout, ragerr.ErrGenerationFailed)
		}
		return nil, fmt.Errorf("%v: %w", err, ragerr.ErrGenerationFailed)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty completion: %w", ragerr.ErrGenerationFailed)
	}
	log.Debug().Str("model", c.generator.ModelName()).Dur("took", time.Since(start)).Msg("Generated answer")

	answer := &models.Answer{
		Text:       text,
		HTML:       c.renderHTML(text),
		Grounded:   true,
		Sources:    []models.Source{},
		Similarity: r.Scores(),
	}
	if includeSources {
		answer.Sources = c.sources(r.Chunks)
	}
	return answer, nil
}

func (c *Composer) sources(chunks []models.ScoredChunk) []models.Source {
	out := make([]models.Source, len(chunks))
	for i, ch := range chunks {
		out[i] = models.Source{
			DocumentID:    ch.DocumentID,
			FileName:      ch.DocumentName,
			PageNumber:    ch.PageNumber,
			SequenceIndex: ch.SequenceIndex,
			Similarity:    ch.Similarity,
			Excerpt:       Excerpt(ch.Content, c.excerptLength),
		}
	}
	return out
}

func (c *Composer) renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		log.Warn().Err(err).Msg("Failed to render answer markdown")
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// FormatContext lays out chunks as numbered, attributed sources for the prompt
func FormatContext(chunks []models.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		name := ch.DocumentName
		if name == "" {
			name = "Unknown"
		}
		header := fmt.Sprintf("[Source %d: %s", i+1, name)
		if ch.PageNumber != nil {
			header += fmt.Sprintf(", Page %d", *ch.PageNumber)
		}
		header += fmt.Sprintf(", Similarity: %.2f]", ch.Similarity)
		parts[i] = header + "\n" + ch.Content + "\n"
	}
	return strings.Join(parts, models.ContextSeparator)
}

// Excerpt returns the first n runes of s
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
