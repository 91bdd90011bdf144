// Package loader turns uploaded files into text records, one per page or element.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/models"
)

// ErrUnsupportedFormat is returned for file extensions the loader cannot read.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Recognizer extracts text from scanned PDF pages.
type Recognizer interface {
	RecognizePDF(ctx context.Context, path string) ([]string, error)
}

// RecognizerFactory creates a Recognizer on first use, so a missing OCR tool
// only matters when a document actually needs it.
type RecognizerFactory func() (Recognizer, error)

type format func(l *Loader, ctx context.Context, content []byte, source string) ([]*models.Record, error)

var formats = map[string]format{
	".txt":  (*Loader).loadPlain,
	".md":   (*Loader).loadPlain,
	".pdf":  (*Loader).loadPDF,
	".docx": (*Loader).loadDOCX,
	".doc":  (*Loader).loadDOCX,
	".odt":  (*Loader).loadOpenDocument,
	".rtf":  (*Loader).loadOpenDocument,
	".xlsx": (*Loader).loadSpreadsheet,
}

// SupportedExtensions returns the accepted extensions, sorted, with leading dots.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supported reports whether files with the given extension (".pdf" or "pdf") can be loaded.
func Supported(ext string) bool {
	_, ok := formats[normalizeExt(ext)]
	return ok
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Loader reads documents from disk or memory.
type Loader struct {
	ocrMode    string
	recognizer RecognizerFactory
	logger     *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOCR enables scanned PDF recognition. mode is one of config.OCRAuto, OCRAlways, OCRNever.
func WithOCR(mode string, factory RecognizerFactory) LoaderOption {
	return func(l *Loader) {
		l.ocrMode = mode
		l.recognizer = factory
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// New returns a Loader. Without WithOCR, scanned PDFs load as blank pages.
func New(opts ...LoaderOption) *Loader {
	l := &Loader{ocrMode: config.OCRNever, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the file at path and returns its records.
func (l *Loader) Load(ctx context.Context, path string) ([]*models.Record, error) {
	ext := normalizeExt(filepath.Ext(path))
	if _, ok := formats[ext]; !ok {
		return nil, unsupported(ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return l.LoadBytes(ctx, content, filepath.Base(path), ext)
}

// LoadBytes parses content according to ext. source names the document in record metadata.
func (l *Loader) LoadBytes(ctx context.Context, content []byte, source, ext string) ([]*models.Record, error) {
	ext = normalizeExt(ext)
	load, ok := formats[ext]
	if !ok {
		return nil, unsupported(ext)
	}
	records, err := load(l, ctx, content, source)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}
	for _, r := range records {
		if r.Metadata == nil {
			r.Metadata = map[string]interface{}{}
		}
		r.Metadata["source"] = source
		r.Metadata["page"] = r.Page
		r.Metadata["file_type"] = strings.TrimPrefix(ext, ".")
	}
	l.logger.Debug("loaded document", zap.String("source", source), zap.Int("records", len(records)))
	return records, nil
}

// LoadAll loads every path in order. The first failure aborts the batch and
// no records are returned.
func (l *Loader) LoadAll(ctx context.Context, paths []string) ([]*models.Record, error) {
	var all []*models.Record
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := l.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

func unsupported(ext string) error {
	if ext == "" {
		return fmt.Errorf("%w: file has no extension", ErrUnsupportedFormat)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}
