// Package keyword provides keyword (BM25) indexing and search over chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/smartdoc/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled matches terms within Fuzziness edits for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance (1 or 2). Defaults to 1.
	Fuzziness int
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, chunks []*models.Chunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// DocCount returns the total number of chunks in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit (ID is the chunk ID).
type KeywordResult struct {
	ID    string
	Score float64
}
