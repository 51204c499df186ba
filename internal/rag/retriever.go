package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"prepvista-rag/internal/embedding"
	"prepvista-rag/internal/models"
	"prepvista-rag/internal/ragerr"
)

// Searcher is the part of the vector store the retriever needs
type Searcher interface {
	SearchSimilar(ctx context.Context, query []float32, scope models.Scope, k int, metric models.Metric, model string) ([]models.ScoredChunk, error)
}

// Retrieval is the context selected for a query
type Retrieval struct {
	Chunks      []models.ScoredChunk
	ContextUsed bool
}

func (r *Retrieval) Scores() []float64 {
	scores := make([]float64, len(r.Chunks))
	for i, c := range r.Chunks {
		scores[i] = c.Similarity
	}
	return scores
}

type Retriever struct {
	embedder      embedding.Embedder
	searcher      Searcher
	minSimilarity float64
	dedupe        float64
	timeout       time.Duration
}

func NewRetriever(e embedding.Embedder, s Searcher, minSimilarity, dedupe float64, timeout time.Duration) *Retriever {
	return &Retriever{embedder: e, searcher: s, minSimilarity: minSimilarity, dedupe: dedupe, timeout: timeout}
}

// Retrieve embeds query with the corpus model and returns at most
// maxChunks chunks of scope that clear the similarity threshold
func (r *Retriever) Retrieve(ctx context.Context, query string, scope models.Scope, maxChunks int) (*Retrieval, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	vec, err := r.embedder.Embed(ctx, query, embedding.TaskQuery)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding query: %w", ragerr.ErrSearchTimeout)
		}
		return nil, fmt.Errorf("embedding query: %v: %w", err, ragerr.ErrEmbeddingServiceUnavailable)
	}

	// fetch extra candidates to survive filtering and deduplication
	candidates, err := r.searcher.SearchSimilar(ctx, vec, scope, maxChunks*2, models.MetricCosine, r.embedder.ModelName())
	switch {
	case errors.Is(err, ragerr.ErrScopeNotFound):
		log.Info().Str("scope", scope.String()).Msg("No embeddings in scope")
		return &Retrieval{}, nil
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("searching %s: %w", scope, ragerr.ErrSearchTimeout)
	case err != nil:
		return nil, err
	}

	kept := make([]models.ScoredChunk, 0, maxChunks)
	for _, c := range candidates {
		if c.Similarity < r.minSimilarity {
			continue
		}
		if r.isDuplicate(c, kept) {
			continue
		}
		kept = append(kept, c)
		if len(kept) == maxChunks {
			break
		}
	}
	log.Debug().
		Str("scope", scope.String()).
		Int("candidates", len(candidates)).
		Int("kept", len(kept)).
		Msg("Retrieved context")
	return &Retrieval{Chunks: kept, ContextUsed: len(kept) > 0}, nil
}

// isDuplicate reports whether c repeats a kept passage: the same or a
// neighbouring chunk of the same document with nearly the same words
func (r *Retriever) isDuplicate(c models.ScoredChunk, kept []models.ScoredChunk) bool {
	for _, k := range kept {
		if k.Content == c.Content {
			return true
		}
		if k.DocumentID != c.DocumentID {
			continue
		}
		d := k.SequenceIndex - c.SequenceIndex
		if d < -1 || d > 1 {
			continue
		}
		if jaccard(k.Content, c.Content) >= r.dedupe {
			return true
		}
	}
	return false
}

func jaccard(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
