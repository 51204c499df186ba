package parser

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
)

// pageOf builds prose of exactly n characters
func pageOf(n int, word string) string {
	var sb strings.Builder
	for sb.Len() < n {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(word)
		if sb.Len()%7 == 0 {
			sb.WriteString(".")
		}
	}
	out := []byte(sb.String()[:n])
	if out[n-1] == ' ' {
		out[n-1] = 'z'
	}
	return string(out)
}

func TestNewChunkerRejectsInvalidConfig(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {100, 100}, {100, 150}, {100, -1}} {
		_, err := NewChunker(tc.size, tc.overlap)
		assert.ErrorIs(t, err, ragerr.ErrInvalidChunkConfig, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestSplitThreePages(t *testing.T) {
	pages := []models.Page{
		{Number: 1, Text: pageOf(1200, "mitochondria")},
		{Number: 2, Text: pageOf(1200, "ribosome")},
		{Number: 3, Text: pageOf(1200, "chloroplast")},
	}
	c, err := NewChunker(500, 50)
	require.NoError(t, err)

	chunks := c.Split(pages)
	require.GreaterOrEqual(t, len(chunks), 7)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.SequenceIndex)
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk.Content), 550)
		require.NotNil(t, chunk.PageNumber)
		assert.GreaterOrEqual(t, *chunk.PageNumber, 1)
		assert.LessOrEqual(t, *chunk.PageNumber, 3)
	}

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Content)
		next := []rune(chunks[i].Content)
		assert.Equal(t, string(prev[len(prev)-50:]), string(next[:50]), "overlap between %d and %d", i-1, i)
	}

	assert.Equal(t, DocumentText(pages), Reassemble(chunks, 50))
	assert.Equal(t, 3, *chunks[len(chunks)-1].PageNumber)
	assert.Equal(t, 1, *chunks[0].PageNumber)
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	text := strings.Repeat("a", 60) + ". " + strings.Repeat("b", 30) + " " + strings.Repeat("c", 40)
	c, err := NewChunker(100, 10)
	require.NoError(t, err)

	chunks := c.Split([]models.Page{{Number: 1, Text: text}})
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Content, ". "), chunks[0].Content)
	assert.Equal(t, text, Reassemble(chunks, 10))
}

func TestSplitLongWordIsHardCut(t *testing.T) {
	word := strings.Repeat("x", 250)
	c, err := NewChunker(100, 20)
	require.NoError(t, err)

	chunks := c.Split([]models.Page{{Number: 1, Text: word}})
	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Content), 100)
	}
	assert.Equal(t, word, Reassemble(chunks, 20))
}

func TestSplitSinglePageLongerThanMax(t *testing.T) {
	c, err := NewChunker(200, 0)
	require.NoError(t, err)

	chunks := c.Split([]models.Page{{Number: 4, Text: pageOf(1000, "enzyme")}})
	assert.Greater(t, len(chunks), 4)
	for _, chunk := range chunks {
		assert.Equal(t, 4, *chunk.PageNumber)
	}
}

func TestSplitEmptyDocument(t *testing.T) {
	c, err := NewChunker(500, 50)
	require.NoError(t, err)

	assert.Empty(t, c.Split(nil))
	assert.Empty(t, c.Split([]models.Page{{Number: 1, Text: ""}, {Number: 2, Text: "   "}}))
}

func TestSplitSkipsBlankPagesAndTracksPageSpan(t *testing.T) {
	pages := []models.Page{
		{Number: 1, Text: pageOf(80, "alpha")},
		{Number: 2, Text: ""},
		{Number: 3, Text: pageOf(80, "gamma")},
	}
	c, err := NewChunker(100, 10)
	require.NoError(t, err)

	chunks := c.Split(pages)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0].Content, PageSeparator))
	assert.Equal(t, 1, *chunks[0].PageNumber)
	assert.Equal(t, 3, *chunks[1].PageNumber)
	assert.Equal(t, "1", chunks[1].Metadata[models.MetaPageStart])
	assert.Equal(t, "3", chunks[1].Metadata[models.MetaPageEnd])
	assert.Equal(t, strconv.Itoa(162), chunks[1].Metadata[models.MetaCharEnd])
}

func TestSplitIsDeterministic(t *testing.T) {
	pages := []models.Page{{Number: 1, Text: pageOf(3000, "osmosis")}}
	c, err := NewChunker(400, 40)
	require.NoError(t, err)
	assert.Equal(t, c.Split(pages), c.Split(pages))
}
