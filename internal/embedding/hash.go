package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/hyperjump/smartdoc/pkg/utils"
)

// HashEmbedder is a deterministic, model-free embedder. Each lowercased word
// contributes to a vector component chosen by its hash, so texts sharing
// words score higher than unrelated texts. Used offline and in tests.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder with the given dimensions (384 if not positive).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length bag-of-words vector for text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	words := 0
	for _, word := range SplitWords(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if word == "" {
			continue
		}
		words++
		h := HashString(word)
		emb[h%e.dimensions] += 1
		// A second, signed component keeps distinct words from colliding completely.
		emb[(h/7)%e.dimensions] += float32(math.Sin(float64(h)))
	}
	if words == 0 {
		emb[0] = 1
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
