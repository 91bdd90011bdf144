package loader

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/smartdoc/internal/models"
)

// validUTF8 returns content as string with invalid sequences replaced by U+FFFD.
func validUTF8(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd")
	}
	return string(content)
}

func (l *Loader) loadPlain(_ context.Context, content []byte, source string) ([]*models.Record, error) {
	return []*models.Record{{Text: validUTF8(content), Source: source}}, nil
}
