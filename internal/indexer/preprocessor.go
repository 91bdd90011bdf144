package indexer

import (
	"strings"
	"unicode"

	"github.com/hyperjump/smartdoc/internal/models"
)

// Preprocess normalizes text for chunking: CRLF to LF, runs of spaces and tabs
// collapsed within each line, and at most one blank line between paragraphs.
func Preprocess(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		blank = 0
	}
	return b.String()
}

func collapseSpaces(line string) string {
	var b strings.Builder
	wasSpace := false
	for _, r := range strings.TrimSpace(line) {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// FilterComplexMetadata returns copies of records whose metadata holds only
// scalar values (strings, booleans, integers, floats). Nested maps, slices and
// other composite values cannot be stored alongside vectors and are dropped.
func FilterComplexMetadata(records []*models.Record) []*models.Record {
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		cp := *r
		cp.Metadata = copyMetadata(r.Metadata)
		out = append(out, &cp)
	}
	return out
}

func copyMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			out[k] = v
		}
	}
	return out
}
