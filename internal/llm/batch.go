package llm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Batched splits embedding calls into fixed-size batches, runs a bounded
// number of them concurrently and paces requests with a token bucket.
type Batched struct {
	next    Embedder
	size    int
	workers int
	limiter *rate.Limiter
}

// BatchOption configures a Batched embedder.
type BatchOption func(*Batched)

// WithBatchSize sets the number of texts per upstream call.
func WithBatchSize(n int) BatchOption {
	return func(b *Batched) {
		if n > 0 {
			b.size = n
		}
	}
}

// WithRate limits upstream calls to rps per second. Zero disables pacing.
func WithRate(rps float64) BatchOption {
	return func(b *Batched) {
		if rps > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			b.limiter = nil
		}
	}
}

// WithWorkers bounds the number of batches in flight.
func WithWorkers(n int) BatchOption {
	return func(b *Batched) {
		if n > 0 {
			b.workers = n
		}
	}
}

// NewBatched wraps next. Defaults: 32 texts per batch, 4 workers, no pacing.
func NewBatched(next Embedder, opts ...BatchOption) *Batched {
	b := &Batched{next: next, size: 32, workers: 4}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Embed implements Embedder. The first failing batch cancels the others.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for start := 0; start < len(texts); start += b.size {
		end := min(start+b.size, len(texts))
		g.Go(func() error {
			if b.limiter != nil {
				if err := b.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			vecs, err := b.next.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("llm: expected %d embeddings, got %d", end-start, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
