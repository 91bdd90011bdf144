// Package search retrieves the chunks that ground an answer.
package search

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/models"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 5

// Searcher is an opened index. *store.Index implements it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]*models.Chunk, error)
	KeywordSearch(ctx context.Context, query string, k int) ([]*models.Chunk, error)
}

// Retriever returns the top-k chunks for a query, by semantic similarity or,
// in hybrid mode, by a weighted fusion of semantic and keyword scores.
type Retriever struct {
	topK           int
	hybrid         bool
	keywordWeight  float64
	semanticWeight float64
	logger         *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// WithHybrid enables keyword fusion with the given weights.
func WithHybrid(keywordWeight, semanticWeight float64) RetrieverOption {
	return func(r *Retriever) {
		r.hybrid = true
		r.keywordWeight = keywordWeight
		r.semanticWeight = semanticWeight
	}
}

// NewRetriever returns a retriever for k results (DefaultTopK if k is not positive).
func NewRetriever(k int, opts ...RetrieverOption) *Retriever {
	if k <= 0 {
		k = DefaultTopK
	}
	r := &Retriever{topK: k, semanticWeight: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRetrieverFromConfig builds a retriever from the retrieval settings.
func NewRetrieverFromConfig(cfg config.RetrievalConfig, logger *zap.Logger) *Retriever {
	opts := []RetrieverOption{}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	if cfg.Hybrid {
		opts = append(opts, WithHybrid(cfg.KeywordWeight, cfg.SemanticWeight))
	}
	return NewRetriever(cfg.TopK, opts...)
}

// TopK returns the number of chunks Retrieve returns at most.
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve returns at most TopK chunks for query, best first.
func (r *Retriever) Retrieve(ctx context.Context, idx Searcher, query string) ([]*models.Chunk, error) {
	if !r.hybrid {
		chunks, err := idx.Search(ctx, query, r.topK)
		if err != nil {
			return nil, fmt.Errorf("semantic search failed: %w", err)
		}
		r.logger.Debug("retrieved chunks", zap.String("query", query), zap.Int("count", len(chunks)))
		return chunks, nil
	}

	// Each side supplies twice k candidates so fusion can reorder across them.
	candidates := r.topK * 2
	var (
		keywordResults  []*models.Chunk
		semanticResults []*models.Chunk
		errChan         = make(chan error, 2)
		wg              sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results, err := idx.KeywordSearch(ctx, query, candidates)
		if err != nil {
			errChan <- fmt.Errorf("keyword search failed: %w", err)
			return
		}
		keywordResults = results
	}()
	go func() {
		defer wg.Done()
		results, err := idx.Search(ctx, query, candidates)
		if err != nil {
			errChan <- fmt.Errorf("semantic search failed: %w", err)
			return
		}
		semanticResults = results
	}()
	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return nil, err
	}

	fused := Fuse(keywordResults, semanticResults, r.keywordWeight, r.semanticWeight)
	if len(fused) > r.topK {
		fused = fused[:r.topK]
	}
	out := make([]*models.Chunk, len(fused))
	for i, f := range fused {
		ch := f.Chunk.Clone()
		ch.Score = f.Score
		out[i] = ch
	}
	r.logger.Debug("retrieved chunks",
		zap.String("query", query),
		zap.Int("keyword", len(keywordResults)),
		zap.Int("semantic", len(semanticResults)),
		zap.Int("count", len(out)))
	return out, nil
}
