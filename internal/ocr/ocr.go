// Package ocr recognises text in scanned PDF pages with the tesseract command line tool.
// Pages are rasterised with pdftoppm (poppler) first.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/config"
)

// EnvTesseractCmd names the environment variable consulted when tesseract is not on PATH.
const EnvTesseractCmd = "TESSERACT_CMD"

var (
	// ErrTesseractNotFound is returned when no tesseract binary can be located.
	ErrTesseractNotFound = errors.New("tesseract OCR not found")
	// ErrRasterizerNotFound is returned when pdftoppm cannot be located.
	ErrRasterizerNotFound = errors.New("pdftoppm not found")
)

// InstallInstructions returns the remediation text shown when OCR tools are missing.
func InstallInstructions() string {
	return strings.Join([]string{
		"Install Tesseract and ensure it is in PATH, or set the " + EnvTesseractCmd + " environment variable.",
		"Windows: https://github.com/UB-Mannheim/tesseract/wiki",
		"Linux: sudo apt install tesseract-ocr poppler-utils",
		"macOS: brew install tesseract poppler",
	}, "\n")
}

// CommandRunner executes external commands. Tests substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Locator finds binaries. The zero value is not usable; see DefaultLocator.
type Locator struct {
	LookPath func(file string) (string, error)
	Getenv   func(key string) string
	Exists   func(path string) bool
}

// DefaultLocator consults the real PATH and environment.
func DefaultLocator() Locator {
	return Locator{
		LookPath: exec.LookPath,
		Getenv:   os.Getenv,
		Exists: func(path string) bool {
			info, err := os.Stat(path)
			return err == nil && !info.IsDir()
		},
	}
}

// Tesseract resolves the tesseract binary: an explicitly configured path first,
// then PATH, then the TESSERACT_CMD environment variable.
func (l Locator) Tesseract(explicit string) (string, error) {
	if explicit != "" && l.Exists(explicit) {
		return explicit, nil
	}
	if p, err := l.LookPath("tesseract"); err == nil {
		return p, nil
	}
	if p := l.Getenv(EnvTesseractCmd); p != "" && l.Exists(p) {
		return p, nil
	}
	return "", fmt.Errorf("%w.\n%s", ErrTesseractNotFound, InstallInstructions())
}

// Rasterizer resolves the PDF page rasterizer command.
func (l Locator) Rasterizer(cmd string) (string, error) {
	if cmd == "" {
		cmd = "pdftoppm"
	}
	if filepath.IsAbs(cmd) && l.Exists(cmd) {
		return cmd, nil
	}
	if p, err := l.LookPath(cmd); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%w.\n%s", ErrRasterizerNotFound, InstallInstructions())
}

// Engine runs OCR over PDF files.
type Engine struct {
	tesseract  string
	rasterizer string
	runner     CommandRunner
	language   string
	dpi        int
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithLanguage sets the tesseract language code.
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithDPI sets the rasterisation resolution.
func WithDPI(dpi int) Option {
	return func(e *Engine) { e.dpi = dpi }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine for already-resolved binaries.
func New(tesseract, rasterizer string, opts ...Option) *Engine {
	e := &Engine{
		tesseract:  tesseract,
		rasterizer: rasterizer,
		runner:     execRunner{},
		language:   "eng",
		dpi:        300,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromConfig resolves the binaries named in cfg and returns an engine.
// A missing tesseract binary yields ErrTesseractNotFound with install instructions.
func NewFromConfig(cfg config.OCRConfig, loc Locator, opts ...Option) (*Engine, error) {
	tess, err := loc.Tesseract(cfg.TesseractCmd)
	if err != nil {
		return nil, err
	}
	raster, err := loc.Rasterizer(cfg.RasterizerCmd)
	if err != nil {
		return nil, err
	}
	base := []Option{}
	if cfg.Language != "" {
		base = append(base, WithLanguage(cfg.Language))
	}
	if cfg.DPI > 0 {
		base = append(base, WithDPI(cfg.DPI))
	}
	return New(tess, raster, append(base, opts...)...), nil
}

// RecognizeImage returns the text tesseract finds in a single image.
func (e *Engine) RecognizeImage(ctx context.Context, imagePath string) (string, error) {
	out, err := e.runner.Run(ctx, e.tesseract, imagePath, "stdout", "-l", e.language)
	if err != nil {
		return "", fmt.Errorf("failed to recognise %s: %w", filepath.Base(imagePath), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RecognizePDF rasterises every page of the PDF and returns the recognised text per page.
func (e *Engine) RecognizePDF(ctx context.Context, pdfPath string) ([]string, error) {
	dir, err := os.MkdirTemp("", "smartdoc-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create ocr workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := e.runner.Run(ctx, e.rasterizer, "-r", strconv.Itoa(e.dpi), "-png", pdfPath, prefix); err != nil {
		return nil, fmt.Errorf("failed to rasterise pdf: %w", err)
	}
	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to list page images: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("rasteriser produced no pages for %s", filepath.Base(pdfPath))
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(images)

	pages := make([]string, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := e.RecognizeImage(ctx, img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, text)
	}
	e.logger.Debug("ocr complete", zap.String("file", filepath.Base(pdfPath)), zap.Int("pages", len(pages)))
	return pages, nil
}
