// Package vectorstore persists embeddings and answers scoped similarity searches.
package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"prepvista-rag/internal/helper"
	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
	"prepvista-rag/internal/store"
)

type Store struct {
	repo       store.Repository
	index      store.VectorIndex
	dimensions map[string]int
}

// New returns a store. dimensions maps model names to their vector length;
// models missing from it are checked against the length already stored.
func New(repo store.Repository, index store.VectorIndex, dimensions map[string]int) *Store {
	if dimensions == nil {
		dimensions = map[string]int{}
	}
	return &Store{repo: repo, index: index, dimensions: dimensions}
}

func (s *Store) checkDimension(ctx context.Context, model string, vec []float32) error {
	want := s.dimensions[model]
	if want <= 0 {
		stored, err := s.repo.ModelDimension(ctx, model)
		if err != nil {
			return err
		}
		want = stored
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("model %s expects %d values, got %d: %w", model, want, len(vec), ragerr.ErrDimensionMismatch)
	}
	return nil
}

// UpsertEmbedding stores vector for the chunk under model and adds it to the
// index. An existing embedding for the same chunk and model is kept
// unchanged and indexed again.
func (s *Store) UpsertEmbedding(ctx context.Context, chunkID string, vector []float32, model string) error {
	if err := s.checkDimension(ctx, model, vector); err != nil {
		return err
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	inserted, err := s.repo.InsertEmbedding(ctx, &models.Embedding{
		ID:      id,
		ChunkID: chunkID,
		Model:   model,
		Vector:  vector,
	})
	if err != nil {
		return err
	}
	if !inserted {
		log.Debug().Str("chunk_id", chunkID).Str("model", model).Msg("Embedding already exists")
	}

	entry, err := s.repo.GetIndexEntry(ctx, chunkID, model)
	if err != nil {
		return err
	}
	return s.index.Add(ctx, []store.IndexEntry{*entry})
}

// SyncIndex adds the stored embeddings of a document that the index lacks
// and returns how many were added
func (s *Store) SyncIndex(ctx context.Context, documentID, model string) (int, error) {
	entries, err := s.repo.ListDocumentIndexEntries(ctx, documentID, model)
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
	missing, err := s.index.Missing(ctx, model, ids)
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
	if err := s.index.Add(ctx, add); err != nil {
		return 0, fmt.Errorf("failed to index %d embeddings of %s: %w", len(add), documentID, err)
	}
	log.Info().Str("document_id", documentID).Int("vectors", len(add)).Msg("Restored missing index entries")
	return len(add), nil
}

// DeleteByDocument removes a document with its chunks, embeddings and index entries
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := s.repo.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := s.index.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to purge index for %s: %w", documentID, err)
	}
	return nil
}

// SearchSimilar returns up to k chunks of scope closest to query, ordered by
// similarity and then by sequence index
func (s *Store) SearchSimilar(ctx context.Context, query []float32, scope models.Scope, k int, metric models.Metric, model string) ([]models.ScoredChunk, error) {
	if metric != models.MetricCosine {
		return nil, fmt.Errorf("metric %q: %w", metric, ragerr.ErrUnsupportedMetric)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", ragerr.ErrInvalidRequest)
	}
	if err := s.checkDimension(ctx, model, query); err != nil {
		return nil, err
	}

	counts, err := s.repo.ScopeModels(ctx, scope)
	if err != nil {
		return nil, err
	}
	if counts[model] == 0 {
		if len(counts) > 0 {
			return nil, fmt.Errorf("scope %s has embeddings for %v, not %s: %w", scope, modelNames(counts), model, ragerr.ErrModelMismatch)
		}
		return nil, fmt.Errorf("scope %s: %w", scope, ragerr.ErrScopeNotFound)
	}

	hits, err := s.index.Search(ctx, query, scope, model, k)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	chunks, err := s.repo.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.ScoredChunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	out := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		c, ok := byID[h.ChunkID]
		if !ok {
			// index entry for a chunk deleted in the meantime
			continue
		}
		c.Similarity = h.Similarity
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].SequenceIndex < out[j].SequenceIndex
	})
	return out, nil
}

func modelNames(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for m := range counts {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}
