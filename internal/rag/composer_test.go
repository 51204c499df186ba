package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
)

func intPtr(n int) *int { return &n }

func TestFormatContext(t *testing.T) {
	a := scored("d1", 0, 0.876, "Osmosis moves water.")
	a.PageNumber = intPtr(3)
	b := scored("d2", 1, 0.5, "Enzymes lower activation energy.")
	b.DocumentName = ""

	got := FormatContext([]models.ScoredChunk{a, b})
	want := "[Source 1: d1.pdf, Page 3, Similarity: 0.88]\nOsmosis moves water.\n" +
		"\n" +
		"[Source 2: Unknown, Similarity: 0.50]\nEnzymes lower activation energy.\n"
	assert.Equal(t, want, got)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("  short  ", 10))
	assert.Equal(t, "abcde...", Excerpt("abcdefgh", 5))
	assert.Equal(t, "ab...", Excerpt("ab   cdefgh", 4))
	assert.Equal(t, "héllo...", Excerpt("héllo wörld", 5))
	assert.Equal(t, "anything", Excerpt("anything", 0))
}

func TestComposeWithoutContext(t *testing.T) {
	g := &fakeGenerator{answer: "should not be used"}
	c := NewComposer(g, time.Second, 300)

	ans, err := c.Compose(context.Background(), "What is X?", &Retrieval{}, true)
	require.NoError(t, err)
	assert.Equal(t, models.NoContextAnswer, ans.Text)
	assert.False(t, ans.Grounded)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, ans.Similarity)
	assert.Zero(t, g.calls())
}

func TestComposeWithSources(t *testing.T) {
	g := &fakeGenerator{answer: "**Osmosis** is the movement of water.\nIt is passive."}
	c := NewComposer(g, time.Second, 10)
	chunk := scored("d1", 2, 0.8, "Osmosis is the movement of water across a membrane.")
	chunk.PageNumber = intPtr(4)

	ans, err := c.Compose(context.Background(), "What is osmosis?", &Retrieval{Chunks: []models.ScoredChunk{chunk}, ContextUsed: true}, true)
	require.NoError(t, err)
	assert.True(t, ans.Grounded)
	assert.Contains(t, ans.HTML, "<strong>Osmosis</strong>")
	assert.Contains(t, ans.HTML, "<br")
	require.Len(t, ans.Sources, 1)
	src := ans.Sources[0]
	assert.Equal(t, "d1", src.DocumentID)
	assert.Equal(t, "d1.pdf", src.FileName)
	assert.Equal(t, 4, *src.PageNumber)
	assert.Equal(t, 2, src.SequenceIndex)
	assert.Equal(t, "Osmosis is...", src.Excerpt)
	assert.Equal(t, []float64{0.8}, ans.Similarity)

	require.Equal(t, 1, g.calls())
	assert.True(t, strings.Contains(g.prompts[0], "[Source 1: d1.pdf, Page 4, Similarity: 0.80]"))
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowGenerator) ModelName() string { return "slow" }

func TestComposeFailures(t *testing.T) {
	r := &Retrieval{Chunks: []models.ScoredChunk{scored("d1", 0, 0.9, "text")}, ContextUsed: true}

	c := NewComposer(&fakeGenerator{err: errors.New("503")}, time.Second, 300)
	_, err := c.Compose(context.Background(), "q", r, false)
	assert.ErrorIs(t, err, ragerr.ErrGenerationFailed)

	c = NewComposer(slowGenerator{}, 20*time.Millisecond, 300)
	_, err = c.Compose(context.Background(), "q", r, false)
	assert.ErrorIs(t, err, ragerr.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "timed out")
}
