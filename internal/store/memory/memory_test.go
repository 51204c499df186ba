package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
	"prepvista-rag/internal/store"
)

func seed(t *testing.T, r *Repository, docID, agent string, n int) []models.Chunk {
	t.Helper()
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:            fmt.Sprintf("%s-c%d", docID, i),
			DocumentID:    docID,
			SequenceIndex: i,
			Content:       fmt.Sprintf("chunk %d of %s", i, docID),
		}
	}
	doc := &models.Document{ID: docID, AgentID: agent, Name: docID + ".pdf", ContentHash: "h-" + docID, Status: models.StatusPending}
	require.NoError(t, r.CreateDocument(context.Background(), doc, chunks))
	return chunks
}

func TestRepositoryEmbeddingVersions(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	chunks := seed(t, r, "d1", "a1", 3)

	ok, err := r.InsertEmbedding(ctx, &models.Embedding{ID: "e1", ChunkID: chunks[0].ID, Model: "m1", Vector: []float32{1, 0}})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.InsertEmbedding(ctx, &models.Embedding{ID: "e2", ChunkID: chunks[0].ID, Model: "m1", Vector: []float32{0, 1}})
	require.NoError(t, err)
	assert.False(t, ok, "embeddings are insert only per chunk and model")
	ok, err = r.InsertEmbedding(ctx, &models.Embedding{ID: "e3", ChunkID: chunks[0].ID, Model: "m2", Vector: []float32{0, 1}})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.InsertEmbedding(ctx, &models.Embedding{ID: "e4", ChunkID: "missing", Model: "m1", Vector: []float32{1}})
	assert.Error(t, err)

	pending, err := r.ListChunksWithoutEmbedding(ctx, "d1", "m1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].SequenceIndex)

	n, err := r.CountEmbeddings(ctx, "d1", "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err := r.GetIndexEntry(ctx, chunks[0].ID, "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, entry.Vector)
	assert.Equal(t, "a1", entry.AgentID)

	counts, err := r.ScopeModels(ctx, models.AgentScope("a1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"m1": 1, "m2": 1}, counts)

	counts, err = r.ScopeModels(ctx, models.AgentScope("other"))
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRepositoryStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	seed(t, r, "d1", "a1", 2)

	require.NoError(t, r.UpdateDocumentStatus(ctx, "d1", models.StatusProcessed, ""))
	doc, err := r.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, doc.Status)
	assert.NotNil(t, doc.ProcessedAt)

	found, err := r.FindDocumentByHash(ctx, "a1", "h-d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", found.ID)
	_, err = r.FindDocumentByHash(ctx, "a2", "h-d1")
	assert.ErrorIs(t, err, ragerr.ErrDocumentNotFound)

	require.NoError(t, r.InsertChunks(ctx, []models.Chunk{{ID: "dup", DocumentID: "d1", SequenceIndex: 1}}))
	n, err := r.CountChunks(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.DeleteDocument(ctx, "d1"))
	n, err = r.CountChunks(ctx, "d1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, r.DeleteDocument(ctx, "d1"), ragerr.ErrDocumentNotFound)
}

func TestIndexSearch(t *testing.T) {
	ctx := context.Background()
	x := NewIndex()
	require.NoError(t, x.Add(ctx, []store.IndexEntry{
		{ChunkID: "c1", DocumentID: "d1", AgentID: "a1", SequenceIndex: 1, Model: "m", Vector: []float32{1, 0}},
		{ChunkID: "c0", DocumentID: "d1", AgentID: "a1", SequenceIndex: 0, Model: "m", Vector: []float32{1, 0}},
		{ChunkID: "c2", DocumentID: "d1", AgentID: "a1", SequenceIndex: 2, Model: "m", Vector: []float32{0, 1}},
		{ChunkID: "c3", DocumentID: "d2", AgentID: "a2", SequenceIndex: 0, Model: "m", Vector: []float32{1, 0}},
		{ChunkID: "c0", DocumentID: "d1", AgentID: "a1", SequenceIndex: 0, Model: "other", Vector: []float32{1, 0}},
	}))
	assert.Equal(t, 5, x.Len())

	hits, err := x.Search(ctx, []float32{1, 0}, models.AgentScope("a1"), "m", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c0", hits[0].ChunkID)
	assert.Equal(t, "c1", hits[1].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)

	hits, err = x.Search(ctx, []float32{1, 0}, models.DocumentScope("d2"), "m", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c3", hits[0].ChunkID)

	require.NoError(t, x.DeleteDocument(ctx, "d1"))
	assert.Equal(t, 1, x.Len())
}

func TestRepositoryStatsAndDimension(t *testing.T) {
	ctx := context.Background()
	r := NewRepository()
	a := seed(t, r, "d1", "a1", 2)
	seed(t, r, "d2", "a1", 1)
	seed(t, r, "d3", "a2", 4)
	require.NoError(t, r.UpdateDocumentStatus(ctx, "d2", models.StatusFailed, "empty"))

	dim, err := r.ModelDimension(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, dim)

	for i, c := range a {
		_, err := r.InsertEmbedding(ctx, &models.Embedding{ID: fmt.Sprintf("e%d", i), ChunkID: c.ID, Model: "m1", Vector: []float32{1, 0, 0}})
		require.NoError(t, err)
	}
	dim, err = r.ModelDimension(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	entries, err := r.ListDocumentIndexEntries(ctx, "d1", "m1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].SequenceIndex)
	assert.Equal(t, "a1", entries[0].AgentID)

	stats, err := r.AgentStats(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, map[models.DocumentStatus]int{models.StatusPending: 1, models.StatusFailed: 1}, stats.ByStatus)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, []models.ModelStats{{Model: "m1", Embeddings: 2, Dimension: 3}}, stats.Models)
}

func TestIndexMissing(t *testing.T) {
	ctx := context.Background()
	x := NewIndex()
	require.NoError(t, x.Add(ctx, []store.IndexEntry{{ChunkID: "c0", DocumentID: "d1", AgentID: "a1", Model: "m1", Vector: []float32{1, 0}}}))

	missing, err := x.Missing(ctx, "m1", []string{"c0", "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, missing)

	missing, err = x.Missing(ctx, "m2", []string{"c0"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c0"}, missing)
}
