package memory

import (
	"context"
	"sort"
	"sync"

	"prepvista-rag/internal/models"
	"prepvista-rag/internal/store"
)

// Index is a brute force cosine index
type Index struct {
	mu      sync.RWMutex
	entries map[string]store.IndexEntry // chunk id + model
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]store.IndexEntry)}
}

func (x *Index) Add(ctx context.Context, entries []store.IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range entries {
		key := e.ChunkID + "\x00" + e.Model
		if _, ok := x.entries[key]; ok {
			continue
		}
		x.entries[key] = e
	}
	return nil
}

func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for key, e := range x.entries {
		if e.DocumentID == documentID {
			delete(x.entries, key)
		}
	}
	return nil
}

func (x *Index) Search(ctx context.Context, query []float32, scope models.Scope, model string, k int) ([]store.Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var hits []store.Hit
	for _, e := range x.entries {
		if e.Model != model || !e.InScope(scope) {
			continue
		}
		hits = append(hits, store.Hit{
			ChunkID:       e.ChunkID,
			SequenceIndex: e.SequenceIndex,
			Similarity:    store.Cosine(query, e.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].SequenceIndex < hits[j].SequenceIndex
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (x *Index) Missing(ctx context.Context, model string, chunkIDs []string) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var missing []string
	for _, id := range chunkIDs {
		if _, ok := x.entries[id+"\x00"+model]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
