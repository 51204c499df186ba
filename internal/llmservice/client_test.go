package llmservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"prepvista-rag/internal/config"
)

func TestCleanOutput(t *testing.T) {
	assert.Equal(t, "## Answer\nOsmosis.", CleanOutput("<think>\nlet me reason\n</think>\n\n## Answer\nOsmosis.  "))
	assert.Equal(t, "", CleanOutput("  \n"))
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), &config.LLMConfig{Provider: "cohere", Model: "x"})
	assert.Error(t, err)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := New(context.Background(), &config.LLMConfig{Provider: "gemini", Model: "gemini-1.5-flash"})
	assert.Error(t, err)
}
