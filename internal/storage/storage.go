// Package storage defines the persistence interface for chunk text and source metadata.
package storage

import (
	"context"

	"github.com/hyperjump/smartdoc/internal/models"
)

// Storage persists the chunks of one index. Vectors live elsewhere; rows are
// addressed by chunk ID and kept in chunk order.
type Storage interface {
	// Source operations
	CreateSource(ctx context.Context, src *models.SourceFile) error
	ListSources(ctx context.Context) ([]*models.SourceFile, error)

	// Chunk operations
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*models.Chunk, error)
	ListChunks(ctx context.Context, offset, limit int) ([]*models.Chunk, error)

	// Batch operations
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error

	// Stats
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
