package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/store"
)

const (
	metaChunkID    = "chunk_id"
	metaDocumentID = "document_id"
	metaAgentID    = "agent_id"
	metaSequence   = "sequence_index"
	metaModel      = "model"

	collectionPrefix = "chunks_"
)

var errNoEmbeddingFunc = errors.New("chromem index only accepts precomputed embeddings")

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// Index keeps one chromem collection per embedding model
type Index struct {
	db   *chromem.DB
	mu   sync.Mutex
	cols map[string]*chromem.Collection
}

var _ store.VectorIndex = (*Index)(nil)

// New opens a persistent index at path, or an in-memory one when path is empty
func New(path string, compress bool) (*Index, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	return &Index{db: db, cols: make(map[string]*chromem.Collection)}, nil
}

func (x *Index) collection(model string) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if c, ok := x.cols[model]; ok {
		return c, nil
	}
	c, err := x.db.GetOrCreateCollection(collectionPrefix+model, map[string]string{metaModel: model}, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	x.cols[model] = c
	return c, nil
}

// Count returns the number of vectors stored for model
func (x *Index) Count(model string) (int, error) {
	c, err := x.collection(model)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

func (x *Index) Add(ctx context.Context, entries []store.IndexEntry) error {
	byModel := make(map[string][]chromem.Document)
	for _, e := range entries {
		byModel[e.Model] = append(byModel[e.Model], chromem.Document{
			ID: e.ChunkID,
			Metadata: map[string]string{
				metaChunkID:    e.ChunkID,
				metaDocumentID: e.DocumentID,
				metaAgentID:    e.AgentID,
				metaSequence:   strconv.Itoa(e.SequenceIndex),
				metaModel:      e.Model,
			},
			Embedding: e.Vector,
			Content:   e.ChunkID,
		})
	}
	for model, docs := range byModel {
		c, err := x.collection(model)
		if err != nil {
			return err
		}
		if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add documents: %w", err)
		}
	}
	return nil
}

func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	for name, c := range x.db.ListCollections() {
		if !strings.HasPrefix(name, collectionPrefix) {
			continue
		}
		if err := c.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil); err != nil {
			return fmt.Errorf("failed to delete document vectors: %w", err)
		}
	}
	return nil
}

func (x *Index) Search(ctx context.Context, query []float32, scope models.Scope, model string, k int) ([]store.Hit, error) {
	c, err := x.collection(model)
	if err != nil {
		return nil, err
	}
	// chromem rejects more results than stored documents
	n := min(k, c.Count())
	if n <= 0 {
		return nil, nil
	}

	where := map[string]string{}
	switch scope.Kind {
	case models.ScopeDocument:
		where[metaDocumentID] = scope.ID
	case models.ScopeAgent:
		where[metaAgentID] = scope.ID
	default:
		return nil, fmt.Errorf("unknown scope kind %q", scope.Kind)
	}

	results, err := c.QueryEmbedding(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	hits := make([]store.Hit, 0, len(results))
	for _, r := range results {
		seq, _ := strconv.Atoi(r.Metadata[metaSequence])
		hits = append(hits, store.Hit{
			ChunkID:       r.ID,
			SequenceIndex: seq,
			Similarity:    float64(r.Similarity),
		})
	}
	return hits, nil
}

func (x *Index) Missing(ctx context.Context, model string, chunkIDs []string) ([]string, error) {
	c, err := x.collection(model)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, id := range chunkIDs {
		if _, err := c.GetByID(ctx, id); err != nil {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Reindex adds every stored embedding of model that the collection lacks
func (x *Index) Reindex(ctx context.Context, repo store.Repository, model string) (int, error) {
	entries, err := repo.ListIndexEntries(ctx, model)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ChunkID
	}
	missing, err := x.Missing(ctx, model, ids)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}
	want := make(map[string]bool, len(missing))
	for _, id := range missing {
		want[id] = true
	}
	add := make([]store.IndexEntry, 0, len(missing))
	for _, e := range entries {
		if want[e.ChunkID] {
			add = append(add, e)
		}
	}
	if err := x.Add(ctx, add); err != nil {
		return 0, err
	}
	log.Info().Str("model", model).Int("vectors", len(add)).Msg("Rebuilt vector index")
	return len(add), nil
}
