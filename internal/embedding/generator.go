package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"prepvista-rag/internal/ragerr"
	"prepvista-rag/internal/retry"
)

// Failure records a text that could not be embedded
type Failure struct {
	Index int
	Err   error
}

// Result holds one vector per input text. A failed text has a nil vector
// and an entry in Failures.
type Result struct {
	Vectors  [][]float32
	Failures []Failure
}

func (r *Result) Succeeded() int {
	n := 0
	for _, v := range r.Vectors {
		if v != nil {
			n++
		}
	}
	return n
}

// BatchFunc receives the vectors of a finished batch. start is the index
// of the batch's first text.
type BatchFunc func(ctx context.Context, start int, vectors [][]float32) error

// Generator embeds texts in paced batches
type Generator struct {
	embedder  Embedder
	dimension int
	batchSize int
	limiter   *rate.Limiter
	retry     retry.Policy
}

type GeneratorOption func(*Generator)

func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithBatchDelay sets the minimum spacing between batch dispatches
func WithBatchDelay(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

func WithRetryPolicy(p retry.Policy) GeneratorOption {
	return func(g *Generator) {
		g.retry = p
	}
}

// WithDimension sets the expected vector length; 0 disables the check
func WithDimension(dim int) GeneratorOption {
	return func(g *Generator) {
		g.dimension = dim
	}
}

func NewGenerator(e Embedder, opts ...GeneratorOption) *Generator {
	g := &Generator{
		embedder:  e,
		dimension: Dimension(e.ModelName(), 0),
		batchSize: 5,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
		retry:     retry.Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) ModelName() string {
	return g.embedder.ModelName()
}

func (g *Generator) Dimension() int {
	return g.dimension
}

// Generate embeds texts batch by batch. Items within a batch run
// concurrently and one failure never cancels the others. When every item of
// a batch fails the remaining batches are skipped and
// ErrEmbeddingServiceUnavailable is returned with the partial result.
func (g *Generator) Generate(ctx context.Context, texts []string, onBatch BatchFunc) (*Result, error) {
	res := &Result{Vectors: make([][]float32, len(texts))}

	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))

		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// the limiter fails early when the deadline comes before the next slot
				err = fmt.Errorf("%v: %w", err, context.DeadlineExceeded)
			}
			return res, err
		}

		errs := make([]error, end-start)
		var eg errgroup.Group
		eg.SetLimit(g.batchSize)
		for i := start; i < end; i++ {
			eg.Go(func() error {
				vec, err := g.embedOne(ctx, texts[i])
				if err != nil {
					errs[i-start] = err
					return nil
				}
				res.Vectors[i] = vec
				return nil
			})
		}
		_ = eg.Wait()

		failed := 0
		var fatal error
		for j, err := range errs {
			if err == nil {
				continue
			}
			failed++
			res.Failures = append(res.Failures, Failure{Index: start + j, Err: err})
			log.Warn().Err(err).Int("index", start+j).Str("model", g.ModelName()).Msg("Failed to embed chunk")
			if errors.Is(err, ragerr.ErrDimensionMismatch) && fatal == nil {
				fatal = err
			}
		}

		if onBatch != nil {
			if err := onBatch(ctx, start, res.Vectors[start:end]); err != nil {
				return res, err
			}
		}

		if fatal != nil {
			return res, fatal
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if failed == end-start {
			return res, fmt.Errorf("batch %d-%d: %w", start, end-1, ragerr.ErrEmbeddingServiceUnavailable)
		}
		log.Debug().Int("start", start).Int("end", end).Int("failed", failed).Msg("Embedded batch")
	}
	return res, nil
}

func (g *Generator) embedOne(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		v, err := g.embedder.Embed(ctx, text, TaskDocument)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return fmt.Errorf("empty embedding returned")
		}
		if g.dimension > 0 && len(v) != g.dimension {
			return retry.Permanent(fmt.Errorf("model %s returned %d values, want %d: %w",
				g.ModelName(), len(v), g.dimension, ragerr.ErrDimensionMismatch))
		}
		vec = v
		return nil
	})
	return vec, err
}
