// Package store declares the persistence ports of the pipeline.
package store

import (
	"context"
	"math"

	"prepvista-rag/internal/models"
)

// Repository persists documents, chunks and embeddings. Lookups of missing
// documents return ragerr.ErrDocumentNotFound.
type Repository interface {
	// CreateDocument stores doc and its chunks in one transaction
	CreateDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	FindDocumentByHash(ctx context.Context, agentID, hash string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error
	ListDocumentsByStatus(ctx context.Context, status models.DocumentStatus) ([]models.Document, error)
	// DeleteDocument removes the document with its chunks and embeddings
	DeleteDocument(ctx context.Context, id string) error

	// InsertChunks ignores chunks whose (document, sequence index) already exists
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	ListChunks(ctx context.Context, documentID string) ([]models.Chunk, error)
	ListChunksWithoutEmbedding(ctx context.Context, documentID, model string) ([]models.Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]models.ScoredChunk, error)
	CountChunks(ctx context.Context, documentID string) (int, error)

	// InsertEmbedding never overwrites. It reports false when the chunk
	// already has an embedding for the model.
	InsertEmbedding(ctx context.Context, e *models.Embedding) (bool, error)
	CountEmbeddings(ctx context.Context, documentID, model string) (int, error)
	ListIndexEntries(ctx context.Context, model string) ([]IndexEntry, error)
	ListDocumentIndexEntries(ctx context.Context, documentID, model string) ([]IndexEntry, error)
	GetIndexEntry(ctx context.Context, chunkID, model string) (*IndexEntry, error)
	// ScopeModels counts embeddings per model inside scope
	ScopeModels(ctx context.Context, scope models.Scope) (map[string]int, error)
	// ModelDimension is the vector length stored for model, 0 when it has no embeddings
	ModelDimension(ctx context.Context, model string) (int, error)
	AgentStats(ctx context.Context, agentID string) (*models.AgentStats, error)

	Close() error
}

// IndexEntry is what a vector index needs to know about one embedding
type IndexEntry struct {
	ChunkID       string
	DocumentID    string
	AgentID       string
	SequenceIndex int
	Model         string
	Vector        []float32
}

// Hit is a search result before chunk content is loaded
type Hit struct {
	ChunkID       string
	SequenceIndex int
	Similarity    float64
}

// VectorIndex answers nearest neighbour queries restricted to a scope
type VectorIndex interface {
	Add(ctx context.Context, entries []IndexEntry) error
	DeleteDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, query []float32, scope models.Scope, model string, k int) ([]Hit, error)
	// Missing returns the chunk ids that have no entry for model
	Missing(ctx context.Context, model string, chunkIDs []string) ([]string, error)
}

// Cosine similarity of a and b, 0 when either is a zero vector
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// InScope reports whether an entry belongs to scope
func (e IndexEntry) InScope(scope models.Scope) bool {
	switch scope.Kind {
	case models.ScopeDocument:
		return e.DocumentID == scope.ID
	case models.ScopeAgent:
		return e.AgentID == scope.ID
	}
	return false
}
