package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/models"
)

// pdfPages returns the text layer of each page. Pages without content yield "".
func pdfPages(content []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func (l *Loader) loadPDF(ctx context.Context, content []byte, source string) ([]*models.Record, error) {
	var pages []string
	if l.ocrMode != config.OCRAlways {
		var err error
		pages, err = pdfPages(content)
		if err != nil {
			return nil, err
		}
	}
	method := "text"
	if l.needsOCR(pages) {
		ocrPages, err := l.recognize(ctx, content)
		if err != nil {
			return nil, err
		}
		pages = ocrPages
		method = "ocr"
	}
	records := make([]*models.Record, 0, len(pages))
	for i, text := range pages {
		records = append(records, &models.Record{
			Text:     text,
			Source:   source,
			Page:     i,
			Metadata: map[string]interface{}{"extraction": method},
		})
	}
	return records, nil
}

// needsOCR reports whether pages came back without any text layer.
func (l *Loader) needsOCR(pages []string) bool {
	switch l.ocrMode {
	case config.OCRAlways:
		return true
	case config.OCRNever:
		return false
	}
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

func (l *Loader) recognize(ctx context.Context, content []byte) ([]string, error) {
	if l.recognizer == nil {
		return nil, fmt.Errorf("document has no text layer and OCR is not configured")
	}
	r, err := l.recognizer()
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "smartdoc-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to stage pdf for ocr: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("failed to stage pdf for ocr: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to stage pdf for ocr: %w", err)
	}
	l.logger.Debug("running ocr", zap.String("file", tmp.Name()))
	return r.RecognizePDF(ctx, tmp.Name())
}
