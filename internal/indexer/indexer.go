// Package indexer turns uploaded files into a persisted, searchable index.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/fileid"
	"github.com/hyperjump/smartdoc/internal/loader"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/store"
)

// Indexer runs Loader, metadata filtering and Chunker, and hands the chunks
// to the store, once per upload key.
type Indexer struct {
	store       *store.Store
	loader      *loader.Loader
	chunker     *Chunker
	keyStrategy string
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeyStrategy selects config.KeyContent or config.KeyFilename.
func WithKeyStrategy(strategy string) IndexerOption {
	return func(idx *Indexer) { idx.keyStrategy = strategy }
}

// NewIndexer creates an indexer over st using ld and the chunking settings in cfg.
func NewIndexer(st *store.Store, ld *loader.Loader, cfg config.ChunkingConfig, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:       st,
		loader:      ld,
		chunker:     NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		keyStrategy: config.KeyContent,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Result describes the outcome of Index.
type Result struct {
	Key     string
	Index   *store.Index
	Built   bool
	Files   []string
	Records int
	Chunks  int
}

// Key returns the store key for paths under the configured strategy.
func (idx *Indexer) Key(paths []string) (string, error) {
	if idx.keyStrategy == config.KeyFilename {
		return fileid.NameKey(paths)
	}
	return fileid.ContentKey(paths)
}

// Index builds or reuses the index for paths. An existing index for the same
// key is reused unless reindex is set; in that case nothing is loaded.
// Unsupported files fail before any work is done, and any failing file aborts
// the whole batch.
func (idx *Indexer) Index(ctx context.Context, paths []string, reindex bool) (*Result, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to index")
	}
	for _, p := range paths {
		if !loader.Supported(filepath.Ext(p)) {
			return nil, fmt.Errorf("%s: %w: %s", filepath.Base(p), loader.ErrUnsupportedFormat, filepath.Ext(p))
		}
	}
	key, err := idx.Key(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to compute index key: %w", err)
	}

	res := &Result{Key: key}
	for _, p := range paths {
		res.Files = append(res.Files, filepath.Base(p))
	}
	index, built, err := idx.store.Ensure(ctx, key, reindex, func(ctx context.Context) (*store.Contents, error) {
		return idx.produce(ctx, paths, res)
	})
	if err != nil {
		return nil, err
	}
	res.Index = index
	res.Built = built
	if !built {
		res.Chunks = index.Count()
	}
	idx.logger.Debug("document indexed",
		zap.String("key", key),
		zap.Strings("files", res.Files),
		zap.Bool("built", built),
		zap.Int("chunks", res.Chunks))
	return res, nil
}

func (idx *Indexer) produce(ctx context.Context, paths []string, res *Result) (*store.Contents, error) {
	var records []*models.Record
	sources := make([]*models.SourceFile, 0, len(paths))
	for _, p := range paths {
		recs, err := idx.loader.Load(ctx, p)
		if err != nil {
			return nil, err
		}
		digest, err := fileid.FileDigest(p)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
		sources = append(sources, &models.SourceFile{
			Name:      filepath.Base(p),
			Digest:    digest,
			Records:   len(recs),
			IndexedAt: time.Now().UTC(),
		})
	}
	chunks := idx.chunker.Chunk(FilterComplexMetadata(records))
	res.Records = len(records)
	res.Chunks = len(chunks)
	return &store.Contents{Chunks: chunks, Sources: sources}, nil
}

// SupportedFiles lists the loadable regular files directly inside dir, sorted by name.
func SupportedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !loader.Supported(filepath.Ext(e.Name())) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
