// Package memory keeps the repository and vector index in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
	"prepvista-rag/internal/store"
)

type Repository struct {
	mu         sync.RWMutex
	documents  map[string]*models.Document
	chunks     map[string]*models.Chunk
	embeddings map[string]map[string]*models.Embedding // chunk id -> model
}

func NewRepository() *Repository {
	return &Repository{
		documents:  make(map[string]*models.Document),
		chunks:     make(map[string]*models.Chunk),
		embeddings: make(map[string]map[string]*models.Embedding),
	}
}

func (r *Repository) CreateDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	now := time.Now().UTC()
	d := *doc
	d.CreatedAt, d.UpdatedAt = now, now
	r.documents[d.ID] = &d
	r.insertChunksLocked(chunks)
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, ragerr.ErrDocumentNotFound)
	}
	out := *d
	return &out, nil
}

func (r *Repository) FindDocumentByHash(ctx context.Context, agentID, hash string) (*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *models.Document
	for _, d := range r.documents {
		if d.AgentID == agentID && d.ContentHash == hash {
			if found == nil || d.CreatedAt.Before(found.CreatedAt) {
				found = d
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("document with hash %s: %w", hash, ragerr.ErrDocumentNotFound)
	}
	out := *found
	return &out, nil
}

func (r *Repository) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, ragerr.ErrDocumentNotFound)
	}
	now := time.Now().UTC()
	d.Status = status
	d.FailureReason = reason
	d.UpdatedAt = now
	if status == models.StatusProcessed {
		d.ProcessedAt = &now
	}
	return nil
}

func (r *Repository) ListDocumentsByStatus(ctx context.Context, status models.DocumentStatus) ([]models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Document
	for _, d := range r.documents {
		if d.Status == status {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, ragerr.ErrDocumentNotFound)
	}
	delete(r.documents, id)
	for cid, c := range r.chunks {
		if c.DocumentID == id {
			delete(r.chunks, cid)
			delete(r.embeddings, cid)
		}
	}
	return nil
}

func (r *Repository) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertChunksLocked(chunks)
	return nil
}

func (r *Repository) insertChunksLocked(chunks []models.Chunk) {
	existing := make(map[string]bool)
	for _, c := range r.chunks {
		existing[seqKey(c.DocumentID, c.SequenceIndex)] = true
	}
	for _, c := range chunks {
		key := seqKey(c.DocumentID, c.SequenceIndex)
		if existing[key] {
			continue
		}
		existing[key] = true
		cp := c
		r.chunks[cp.ID] = &cp
	}
}

func seqKey(documentID string, seq int) string {
	return fmt.Sprintf("%s/%d", documentID, seq)
}

func (r *Repository) ListChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listChunksLocked(documentID, ""), nil
}

func (r *Repository) ListChunksWithoutEmbedding(ctx context.Context, documentID, model string) ([]models.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listChunksLocked(documentID, model), nil
}

// listChunksLocked returns chunks in sequence order, skipping those with an
// embedding for model when model is set
func (r *Repository) listChunksLocked(documentID, model string) []models.Chunk {
	var out []models.Chunk
	for _, c := range r.chunks {
		if c.DocumentID != documentID {
			continue
		}
		if model != "" {
			if _, ok := r.embeddings[c.ID][model]; ok {
				continue
			}
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceIndex < out[j].SequenceIndex })
	return out
}

func (r *Repository) GetChunks(ctx context.Context, ids []string) ([]models.ScoredChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ScoredChunk, 0, len(ids))
	for _, id := range ids {
		c, ok := r.chunks[id]
		if !ok {
			continue
		}
		sc := models.ScoredChunk{Chunk: *c}
		if d, ok := r.documents[c.DocumentID]; ok {
			sc.DocumentName = d.Name
		}
		out = append(out, sc)
	}
	return out, nil
}

func (r *Repository) CountChunks(ctx context.Context, documentID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (r *Repository) InsertEmbedding(ctx context.Context, e *models.Embedding) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunks[e.ChunkID]; !ok {
		return false, fmt.Errorf("chunk %s does not exist", e.ChunkID)
	}
	byModel, ok := r.embeddings[e.ChunkID]
	if !ok {
		byModel = make(map[string]*models.Embedding)
		r.embeddings[e.ChunkID] = byModel
	}
	if _, ok := byModel[e.Model]; ok {
		return false, nil
	}
	cp := *e
	cp.Vector = append([]float32(nil), e.Vector...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	byModel[e.Model] = &cp
	return true, nil
}

func (r *Repository) CountEmbeddings(ctx context.Context, documentID, model string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for cid, byModel := range r.embeddings {
		c, ok := r.chunks[cid]
		if !ok || c.DocumentID != documentID {
			continue
		}
		if _, ok := byModel[model]; ok {
			n++
		}
	}
	return n, nil
}

func (r *Repository) ListIndexEntries(ctx context.Context, model string) ([]store.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.IndexEntry
	for cid, byModel := range r.embeddings {
		e, ok := byModel[model]
		if !ok {
			continue
		}
		if entry, ok := r.entryLocked(cid, e); ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *Repository) ListDocumentIndexEntries(ctx context.Context, documentID, model string) ([]store.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.IndexEntry
	for _, c := range r.listChunksLocked(documentID, "") {
		e, ok := r.embeddings[c.ID][model]
		if !ok {
			continue
		}
		if entry, ok := r.entryLocked(c.ID, e); ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *Repository) GetIndexEntry(ctx context.Context, chunkID, model string) (*store.IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.embeddings[chunkID][model]
	if !ok {
		return nil, fmt.Errorf("embedding for chunk %s and model %s not found", chunkID, model)
	}
	entry, ok := r.entryLocked(chunkID, e)
	if !ok {
		return nil, fmt.Errorf("chunk %s not found", chunkID)
	}
	return &entry, nil
}

func (r *Repository) entryLocked(chunkID string, e *models.Embedding) (store.IndexEntry, bool) {
	c, ok := r.chunks[chunkID]
	if !ok {
		return store.IndexEntry{}, false
	}
	d, ok := r.documents[c.DocumentID]
	if !ok {
		return store.IndexEntry{}, false
	}
	return store.IndexEntry{
		ChunkID:       chunkID,
		DocumentID:    c.DocumentID,
		AgentID:       d.AgentID,
		SequenceIndex: c.SequenceIndex,
		Model:         e.Model,
		Vector:        append([]float32(nil), e.Vector...),
	}, true
}

func (r *Repository) ScopeModels(ctx context.Context, scope models.Scope) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int)
	for cid, byModel := range r.embeddings {
		for _, e := range byModel {
			entry, ok := r.entryLocked(cid, e)
			if ok && entry.InScope(scope) {
				out[e.Model]++
			}
		}
	}
	return out, nil
}

func (r *Repository) ModelDimension(ctx context.Context, model string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, byModel := range r.embeddings {
		if e, ok := byModel[model]; ok {
			return e.Dimension(), nil
		}
	}
	return 0, nil
}

func (r *Repository) AgentStats(ctx context.Context, agentID string) (*models.AgentStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &models.AgentStats{AgentID: agentID, ByStatus: make(map[models.DocumentStatus]int)}
	for _, d := range r.documents {
		if d.AgentID == agentID {
			stats.Documents++
			stats.ByStatus[d.Status]++
		}
	}
	perModel := make(map[string]*models.ModelStats)
	for cid, c := range r.chunks {
		d, ok := r.documents[c.DocumentID]
		if !ok || d.AgentID != agentID {
			continue
		}
		stats.Chunks++
		for model, e := range r.embeddings[cid] {
			ms, ok := perModel[model]
			if !ok {
				ms = &models.ModelStats{Model: model, Dimension: e.Dimension()}
				perModel[model] = ms
			}
			ms.Embeddings++
		}
	}
	for _, ms := range perModel {
		stats.Models = append(stats.Models, *ms)
	}
	sort.Slice(stats.Models, func(i, j int) bool { return stats.Models[i].Model < stats.Models[j].Model })
	return stats, nil
}

func (r *Repository) Close() error { return nil }
