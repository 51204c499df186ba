package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

type cachedEmbedder struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

// WithCache keeps recent vectors in memory. Non-positive size or ttl disables it.
func WithCache(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &cachedEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *cachedEmbedder) Embed(ctx context.Context, text string, task Task) ([]float32, error) {
	key := cacheKey(c.next.ModelName(), task, text)
	if cached, ok := c.cache.Get(key); ok {
		log.Debug().Str("task", string(task)).Msg("Embedding cache hit")
		return cloneVector(cached), nil
	}
	vec, err := c.next.Embed(ctx, text, task)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneVector(vec))
	return vec, nil
}

func (c *cachedEmbedder) ModelName() string {
	return c.next.ModelName()
}

func cacheKey(model string, task Task, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + string(task) + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
