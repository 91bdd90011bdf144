package loader

import (
	"context"
	"fmt"

	"github.com/lu4p/cat"

	"github.com/hyperjump/smartdoc/internal/models"
)

// loadOpenDocument reads .odt and .rtf files through lu4p/cat, which detects the format from the bytes.
func (l *Loader) loadOpenDocument(_ context.Context, content []byte, source string) ([]*models.Record, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return []*models.Record{{Text: validUTF8([]byte(text)), Source: source}}, nil
}
