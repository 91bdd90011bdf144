// Package cli renders answers, indexes, and status for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/storage"
	"github.com/hyperjump/smartdoc/internal/store"
	"github.com/hyperjump/smartdoc/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// sourcePreview bounds the source excerpt printed under an answer.
const sourcePreview = 120

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and the passages it was grounded on.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintf(w, "%s\n", strings.TrimSpace(ans.Text))
	WriteSources(w, ans.Sources)
	return nil
}

// WriteSources lists retrieved passages as "source p.N  excerpt".
func WriteSources(w io.Writer, sources []*models.Chunk) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\nSources:\n", rule)
	for i, c := range sources {
		excerpt := strings.Join(strings.Fields(c.Text), " ")
		fmt.Fprintf(w, "  [%d] %s p.%d  %s\n", i+1, c.Source, c.Page+1, utils.Truncate(excerpt, sourcePreview))
	}
}

// WriteSuggestions prints numbered follow-up questions.
func WriteSuggestions(w io.Writer, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintln(w, "\nYou could also ask:")
	for i, s := range suggestions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, s)
	}
}

// WriteIndexes lists persisted indexes, newest first.
func WriteIndexes(w io.Writer, manifests []*store.Manifest, format OutputFormat) error {
	if format == OutputJSON {
		if manifests == nil {
			manifests = []*store.Manifest{}
		}
		return writeJSON(w, map[string]interface{}{"indexes": manifests})
	}
	if len(manifests) == 0 {
		fmt.Fprintln(w, "No indexes built yet.")
		return nil
	}
	for _, m := range manifests {
		fmt.Fprintf(w, "%s  %5d chunks  %8s  %s  %s\n",
			m.Key, m.Chunks, storage.FormatBytes(m.SizeBytes),
			m.BuiltAt.Local().Format("2006-01-02 15:04"), strings.Join(m.Sources, ", "))
	}
	return nil
}

// WriteStatus writes the status summary.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "indexes:            %d   # persisted document indexes\n", st.Indexes)
	fmt.Fprintf(w, "chunks:             %d   # chunks across all indexes\n", st.Chunks)
	fmt.Fprintf(w, "disk_usage:         %s\n", storage.FormatBytes(st.DiskUsageBytes))
	fmt.Fprintf(w, "chat_enabled:       %t\n", st.ChatEnabled)
	if c := st.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "embedding:          %s (%d dims)\n", c.EmbeddingProvider, c.EmbeddingDimensions)
		fmt.Fprintf(w, "chunk_size:         %d\n", c.ChunkSize)
		fmt.Fprintf(w, "chunk_overlap:      %d\n", c.ChunkOverlap)
		fmt.Fprintf(w, "top_k:              %d\n", c.TopK)
		fmt.Fprintf(w, "context_k:          %d\n", c.ContextK)
		fmt.Fprintf(w, "hybrid:             %t\n", c.Hybrid)
		fmt.Fprintf(w, "model:              %s\n", c.Model)
		fmt.Fprintf(w, "upload_dir:         %s\n", c.UploadDir)
		fmt.Fprintf(w, "index_dir:          %s\n", c.IndexDir)
	}
	return nil
}
