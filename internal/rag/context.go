package rag

import (
	"fmt"
	"strings"

	"github.com/hyperjump/smartdoc/internal/models"
)

// AssembleContext joins chunk texts with blank lines. With annotate, each
// passage is prefixed with its source and 1-based page. No chunks yields
// NoContextMarker.
func AssembleContext(chunks []*models.Chunk, annotate bool) string {
	if len(chunks) == 0 {
		return NoContextMarker
	}
	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if annotate {
			parts = append(parts, fmt.Sprintf("[source: %s, page: %d]\n%s", ch.Source, ch.Page+1, ch.Text))
			continue
		}
		parts = append(parts, ch.Text)
	}
	return strings.Join(parts, "\n\n")
}
