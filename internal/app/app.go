// Package app builds the SmartDoc components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/embedding"
	"github.com/hyperjump/smartdoc/internal/indexer"
	"github.com/hyperjump/smartdoc/internal/llm"
	"github.com/hyperjump/smartdoc/internal/loader"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/ocr"
	"github.com/hyperjump/smartdoc/internal/rag"
	"github.com/hyperjump/smartdoc/internal/search"
	"github.com/hyperjump/smartdoc/internal/session"
	"github.com/hyperjump/smartdoc/internal/store"
)

// App holds initialized services.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Embedder  embedding.Embedder
	Store     *store.Store
	Loader    *loader.Loader
	Indexer   *indexer.Indexer
	Retriever *search.Retriever
	LLM       llm.Client
	Pipeline  *rag.Pipeline

	// llmErr is why LLM is nil; chat operations report it.
	llmErr   error
	locator  ocr.Locator
	embedder embedding.Embedder
}

// Option configures New.
type Option func(*App)

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.Logger = l }
}

// WithLLM uses client instead of the configured endpoint.
func WithLLM(client llm.Client) Option {
	return func(a *App) { a.LLM = client }
}

// WithEmbedder uses e instead of the configured provider.
func WithEmbedder(e embedding.Embedder) Option {
	return func(a *App) { a.embedder = e }
}

// WithOCRLocator overrides how the OCR binaries are found.
func WithOCRLocator(loc ocr.Locator) Option {
	return func(a *App) { a.locator = loc }
}

// New builds every component from cfg. A missing LLM key is not fatal here:
// indexing still works, and NewSession reports the error.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Logger: zap.NewNop(), locator: ocr.DefaultLocator()}
	for _, opt := range opts {
		opt(a)
	}
	logger := a.Logger

	if err := os.MkdirAll(cfg.Storage.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	a.Embedder = a.embedder
	if a.Embedder == nil {
		e, err := embedding.New(cfg.Embedding, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		a.Embedder = e
	}

	st, err := store.New(cfg.Storage.IndexDir, a.Embedder,
		store.WithKeyword(cfg.Index.Keyword),
		store.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize index store: %w", err)
	}
	a.Store = st

	a.Loader = loader.New(
		loader.WithOCR(cfg.OCR.Mode, a.recognizer),
		loader.WithLogger(logger),
	)
	a.Indexer = indexer.NewIndexer(st, a.Loader, cfg.Chunking,
		indexer.WithKeyStrategy(cfg.Index.KeyStrategy),
		indexer.WithLogger(logger))
	a.Retriever = search.NewRetrieverFromConfig(cfg.Retrieval, logger)

	if a.LLM == nil {
		client, err := llm.NewFromConfig(cfg.LLM, logger)
		if err != nil {
			a.llmErr = err
			logger.Warn("chat disabled", zap.Error(err))
		} else {
			a.LLM = client
		}
	}
	if a.LLM != nil {
		a.Pipeline = rag.NewPipeline(a.LLM, a.Retriever,
			rag.WithContextK(cfg.Retrieval.ContextK),
			rag.WithAnnotations(cfg.Retrieval.AnnotateOrDefault()),
			rag.WithFollowUpCount(cfg.FollowUps.Count),
			rag.WithLogger(logger))
	}
	return a, nil
}

// recognizer resolves the OCR binaries on first use.
func (a *App) recognizer() (loader.Recognizer, error) {
	engine, err := ocr.NewFromConfig(a.Config.OCR, a.locator, ocr.WithLogger(a.Logger))
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// ChatError reports why chat is unavailable, or nil.
func (a *App) ChatError() error {
	if a.Pipeline == nil {
		if a.llmErr != nil {
			return a.llmErr
		}
		return llm.ErrNoAPIKey
	}
	return nil
}

// NewSession starts an empty conversation.
func (a *App) NewSession() (*session.Session, error) {
	if err := a.ChatError(); err != nil {
		return nil, err
	}
	return session.New(a.Pipeline, session.WithLogger(a.Logger)), nil
}

// OpenDocuments indexes paths (or reuses their index) and returns a document
// ready to attach to a session.
func (a *App) OpenDocuments(ctx context.Context, paths []string, reindex bool) (*session.Document, *indexer.Result, error) {
	res, err := a.Indexer.Index(ctx, paths, reindex)
	if err != nil {
		return nil, nil, err
	}
	a.Logger.Info("document ready",
		zap.String("key", res.Key),
		zap.Strings("files", res.Files),
		zap.Bool("built", res.Built),
		zap.Int("chunks", res.Index.Count()))
	return &session.Document{Key: res.Key, Files: res.Files, Index: res.Index}, res, nil
}

// SaveUpload writes r into the upload directory under the base of name and
// returns the stored path. Unsupported extensions are refused before writing.
func (a *App) SaveUpload(name string, r io.Reader) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "", errors.New("upload has no file name")
	}
	if !loader.Supported(filepath.Ext(base)) {
		return "", fmt.Errorf("%s: %w: %s", base, loader.ErrUnsupportedFormat, filepath.Ext(base))
	}
	dst := filepath.Join(a.Config.Storage.UploadDir, base)
	tmp, err := os.CreateTemp(a.Config.Storage.UploadDir, "."+base+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return dst, nil
}

// Status reports the persisted indexes and active settings.
func (a *App) Status() (*models.Status, error) {
	manifests, err := a.Store.List()
	if err != nil {
		return nil, err
	}
	cfg := a.Config
	st := &models.Status{
		Indexes:     len(manifests),
		ChatEnabled: a.ChatError() == nil,
		Config: &models.StatusConfig{
			EmbeddingProvider:   cfg.Embedding.Provider,
			EmbeddingDimensions: a.Embedder.Dimensions(),
			ChunkSize:           cfg.Chunking.ChunkSize,
			ChunkOverlap:        cfg.Chunking.ChunkOverlap,
			TopK:                cfg.Retrieval.TopK,
			ContextK:            cfg.Retrieval.ContextK,
			Hybrid:              cfg.Retrieval.Hybrid,
			Model:               cfg.LLM.Model,
			UploadDir:           cfg.Storage.UploadDir,
			IndexDir:            cfg.Storage.IndexDir,
		},
	}
	if a.LLM != nil {
		st.Config.Model = a.LLM.ModelName()
	}
	for _, m := range manifests {
		st.Chunks += m.Chunks
		st.DiskUsageBytes += m.SizeBytes
	}
	return st, nil
}

// Close releases the embedder.
func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
}
