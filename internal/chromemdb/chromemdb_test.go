package chromemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/store"
	"prepvista-rag/internal/store/memory"
)

func entries() []store.IndexEntry {
	return []store.IndexEntry{
		{ChunkID: "a0", DocumentID: "doc-a", AgentID: "agent-1", SequenceIndex: 0, Model: "m1", Vector: []float32{1, 0, 0}},
		{ChunkID: "a1", DocumentID: "doc-a", AgentID: "agent-1", SequenceIndex: 1, Model: "m1", Vector: []float32{0.8, 0.6, 0}},
		{ChunkID: "b0", DocumentID: "doc-b", AgentID: "agent-2", SequenceIndex: 0, Model: "m1", Vector: []float32{1, 0, 0}},
	}
}

func TestIndexSearchIsScoped(t *testing.T) {
	ctx := context.Background()
	x, err := New("", false)
	require.NoError(t, err)
	require.NoError(t, x.Add(ctx, entries()))

	hits, err := x.Search(ctx, []float32{1, 0, 0}, models.AgentScope("agent-1"), "m1", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a0", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
	assert.Equal(t, "a1", hits[1].ChunkID)
	assert.Equal(t, 1, hits[1].SequenceIndex)
	assert.InDelta(t, 0.8, hits[1].Similarity, 1e-5)

	hits, err = x.Search(ctx, []float32{1, 0, 0}, models.DocumentScope("doc-b"), "m1", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b0", hits[0].ChunkID)

	hits, err = x.Search(ctx, []float32{1, 0, 0}, models.AgentScope("agent-1"), "m2", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexDeleteDocument(t *testing.T) {
	ctx := context.Background()
	x, err := New("", false)
	require.NoError(t, err)
	require.NoError(t, x.Add(ctx, entries()))

	require.NoError(t, x.DeleteDocument(ctx, "doc-a"))

	n, err := x.Count("m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	hits, err := x.Search(ctx, []float32{1, 0, 0}, models.AgentScope("agent-1"), "m1", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexPersistsAndReindexes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo := memory.NewRepository()
	doc := &models.Document{ID: "doc-a", AgentID: "agent-1", Name: "a.pdf", Status: models.StatusProcessed}
	require.NoError(t, repo.CreateDocument(ctx, doc, []models.Chunk{{ID: "a0", DocumentID: "doc-a", SequenceIndex: 0, Content: "x"}}))
	_, err := repo.InsertEmbedding(ctx, &models.Embedding{ID: "e0", ChunkID: "a0", Model: "m1", Vector: []float32{0, 1}})
	require.NoError(t, err)

	x, err := New(dir, false)
	require.NoError(t, err)
	n, err := x.Reindex(ctx, repo, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// a second call finds the collection populated
	n, err = x.Reindex(ctx, repo, "m1")
	require.NoError(t, err)
	assert.Zero(t, n)

	reopened, err := New(dir, false)
	require.NoError(t, err)
	count, err := reopened.Count("m1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReindexFillsGaps(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	doc := &models.Document{ID: "doc-a", AgentID: "agent-1", Name: "a.pdf", Status: models.StatusProcessed}
	chunks := []models.Chunk{
		{ID: "a0", DocumentID: "doc-a", SequenceIndex: 0, Content: "x"},
		{ID: "a1", DocumentID: "doc-a", SequenceIndex: 1, Content: "y"},
	}
	require.NoError(t, repo.CreateDocument(ctx, doc, chunks))
	for i, c := range chunks {
		_, err := repo.InsertEmbedding(ctx, &models.Embedding{ID: c.ID + "-e", ChunkID: c.ID, Model: "m1", Vector: []float32{float32(i), 1}})
		require.NoError(t, err)
	}

	x, err := New("", false)
	require.NoError(t, err)
	first, err := repo.GetIndexEntry(ctx, "a0", "m1")
	require.NoError(t, err)
	require.NoError(t, x.Add(ctx, []store.IndexEntry{*first}))

	missing, err := x.Missing(ctx, "m1", []string{"a0", "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, missing)

	n, err := x.Reindex(ctx, repo, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	missing, err = x.Missing(ctx, "m1", []string{"a0", "a1"})
	require.NoError(t, err)
	assert.Empty(t, missing)
}
