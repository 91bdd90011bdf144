package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/embedding"
	"github.com/hyperjump/smartdoc/internal/keyword"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/storage"
	"github.com/hyperjump/smartdoc/internal/vector"
)

// Index is an opened, read-only index.
type Index struct {
	key      string
	manifest *Manifest
	vectors  vector.VectorIndex
	chunks   storage.Storage
	keyword  keyword.KeywordIndex
	embedder embedding.Embedder
	logger   *zap.Logger
}

// Key returns the index key.
func (i *Index) Key() string {
	return i.key
}

// Manifest returns the build manifest.
func (i *Index) Manifest() *Manifest {
	return i.manifest
}

// Count returns the number of indexed chunks.
func (i *Index) Count() int {
	return i.vectors.Size()
}

// HasKeyword reports whether a keyword index was built.
func (i *Index) HasKeyword() bool {
	return i.keyword != nil
}

// Search embeds query and returns up to k chunks by cosine similarity, best first.
func (i *Index) Search(ctx context.Context, query string, k int) ([]*models.Chunk, error) {
	if k <= 0 || i.vectors.Size() == 0 {
		return nil, nil
	}
	vec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := i.vectors.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for n, h := range hits {
		ids[n] = h.ID
		scores[h.ID] = h.Score
	}
	return i.resolve(ctx, ids, scores)
}

// KeywordSearch returns up to k chunks by BM25 score. It returns nothing when
// the index was built without keyword indexing.
func (i *Index) KeywordSearch(ctx context.Context, query string, k int) ([]*models.Chunk, error) {
	if i.keyword == nil || k <= 0 {
		return nil, nil
	}
	hits, err := i.keyword.Search(ctx, query, k, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for n, h := range hits {
		ids[n] = h.ID
		scores[h.ID] = h.Score
	}
	return i.resolve(ctx, ids, scores)
}

func (i *Index) resolve(ctx context.Context, ids []string, scores map[string]float64) ([]*models.Chunk, error) {
	chunks, err := i.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	for _, ch := range chunks {
		ch.Score = scores[ch.ID]
	}
	return chunks, nil
}

// Chunks returns stored chunks in document order.
func (i *Index) Chunks(ctx context.Context, offset, limit int) ([]*models.Chunk, error) {
	return i.chunks.ListChunks(ctx, offset, limit)
}

// Sources returns the files the index was built from.
func (i *Index) Sources(ctx context.Context) ([]*models.SourceFile, error) {
	return i.chunks.ListSources(ctx)
}

// Close releases the index files.
func (i *Index) Close() error {
	var firstErr error
	if i.keyword != nil {
		if err := i.keyword.Close(); err != nil {
			firstErr = err
		}
	}
	if err := i.chunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := i.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
