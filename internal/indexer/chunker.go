// Package indexer splits loaded records into chunks and builds persisted indexes from them.
package indexer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hyperjump/smartdoc/internal/models"
)

// Defaults for the splitter, in characters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hyperjump/smartdoc/chunk"))

// Chunker splits text recursively at the coarsest boundary that keeps pieces
// within chunkSize characters, then merges neighbouring pieces into windows
// that overlap by up to chunkOverlap characters.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewChunker creates a chunker with the given size and overlap (in characters).
// An overlap that is not smaller than the size is clamped to a quarter of it.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}
}

// Split returns the chunk texts for text. Empty or blank input yields nil.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, c.separators)
}

// Chunk splits every record and returns the chunks in record order.
// Identical records always produce identical chunks, IDs included.
func (c *Chunker) Chunk(records []*models.Record) []*models.Chunk {
	var chunks []*models.Chunk
	for ri, r := range records {
		for i, text := range c.Split(Preprocess(r.Text)) {
			chunks = append(chunks, &models.Chunk{
				ID:       chunkID(r.Source, ri, r.Page, i, text),
				Text:     text,
				Source:   r.Source,
				Page:     r.Page,
				Index:    len(chunks),
				Metadata: copyMetadata(r.Metadata),
			})
		}
	}
	return chunks
}

func chunkID(source string, record, page, ordinal int, text string) string {
	key := strings.Join([]string{source, strconv.Itoa(record), strconv.Itoa(page), strconv.Itoa(ordinal), text}, "\x00")
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

func (c *Chunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var out, pending []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) <= c.chunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, c.merge(pending)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, strings.TrimSpace(piece))
		} else {
			out = append(out, c.split(piece, rest)...)
		}
	}
	if len(pending) > 0 {
		out = append(out, c.merge(pending)...)
	}
	return out
}

// merge packs pieces into windows of at most chunkSize characters. Each new
// window starts with the tail of the previous one, up to chunkOverlap characters.
func (c *Chunker) merge(pieces []string) []string {
	var docs, window []string
	total := 0
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.chunkSize && len(window) > 0 {
			if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
				docs = append(docs, doc)
			}
			for len(window) > 0 && (total > c.chunkOverlap || total+n > c.chunkSize) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeep splits text after each occurrence of sep, keeping the separator on
// the preceding piece. An empty sep splits into single characters.
func splitKeep(text, sep string) []string {
	if sep == "" {
		parts := make([]string, 0, len(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
