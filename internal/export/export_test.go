package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/smartdoc/internal/models"
)

var sampleTurns = []models.ChatTurn{
	{Role: models.RoleUser, Text: "What color is the sky?"},
	{Role: models.RoleAssistant, Text: "The sky is blue."},
	{Role: models.RoleUser, Text: "Café?"},
}

func TestTranscript(t *testing.T) {
	want := "USER: What color is the sky?\n\nASSISTANT: The sky is blue.\n\nUSER: Café?"
	if got := Transcript(sampleTurns); got != want {
		t.Errorf("Transcript = %q", got)
	}
	if Transcript(nil) != "" {
		t.Error("empty transcript should be empty")
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, sampleTurns, Options{Title: "SmartDoc Chat"}); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-") {
		t.Fatalf("output is not a PDF: %q", out[:min(20, len(out))])
	}
	// Uncompressed content streams carry the text verbatim.
	for _, s := range []string{"USER: ", "ASSISTANT: ", "The sky is blue."} {
		if !strings.Contains(out, s) {
			t.Errorf("PDF missing %q", s)
		}
	}
	if strings.Index(out, "What color") > strings.Index(out, "The sky is blue.") {
		t.Error("turns out of order")
	}
}

func TestWritePDF_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, nil, Options{Compress: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("empty transcript should still produce a PDF")
	}
}

func TestSavePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", DefaultFilename)
	if err := SavePDF(path, sampleTurns, Options{}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("saved file is not a PDF")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}
