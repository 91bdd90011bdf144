// Package export renders a chat transcript as PDF or plain text.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/hyperjump/smartdoc/internal/models"
)

// DefaultFilename is the export file name offered for download.
const DefaultFilename = "SmartDoc_Chat.pdf"

const (
	fontSize    = 11
	lineHeight  = 0.22 // inches
	spacer      = 0.3  // inches between turns
	pageMargin  = 0.75 // inches
	titleHeight = 0.4
)

// Options controls PDF rendering.
type Options struct {
	Title    string
	Compress bool
}

// WritePDF writes turns to w, one "ROLE: text" paragraph per turn in order.
func WritePDF(w io.Writer, turns []models.ChatTurn, opts Options) error {
	pdf := fpdf.New("P", "in", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetCompression(opts.Compress)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	pdf.SetCreator("SmartDoc", true)
	pdf.AddPage()

	// Core fonts are cp1252; translate so accented text survives.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if opts.Title != "" {
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(0, titleHeight, tr(opts.Title), "", 1, "L", false, 0, "")
		pdf.Ln(spacer)
	}
	for _, turn := range turns {
		pdf.SetFont("Helvetica", "B", fontSize)
		label := strings.ToUpper(string(turn.Role)) + ": "
		pdf.Write(lineHeight, tr(label))
		pdf.SetFont("Helvetica", "", fontSize)
		pdf.Write(lineHeight, tr(turn.Text))
		pdf.Ln(lineHeight + spacer)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// SavePDF writes the transcript to path via a temporary file and rename.
func SavePDF(path string, turns []models.ChatTurn, opts Options) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := WritePDF(tmp, turns, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to save export: %w", err)
	}
	return nil
}

// Transcript renders turns as plain text, one "ROLE: text" paragraph per turn.
func Transcript(turns []models.ChatTurn) string {
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(turn.Role)))
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}
