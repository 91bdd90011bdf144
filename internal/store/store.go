// Package store keeps one persisted, build-once index per upload key.
//
// Layout under the store root:
//
//	<key>/chunks.db      chunk text and metadata (SQLite)
//	<key>/vectors.bin    embedding vectors
//	<key>/keyword.bleve  optional BM25 index
//	<key>/manifest.yaml  written last; its presence marks a complete build
//	<key>.lock           advisory lock held while checking or building
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/smartdoc/internal/embedding"
	"github.com/hyperjump/smartdoc/internal/keyword"
	"github.com/hyperjump/smartdoc/internal/models"
	"github.com/hyperjump/smartdoc/internal/storage"
	"github.com/hyperjump/smartdoc/internal/vector"
)

const (
	chunksFile  = "chunks.db"
	vectorsFile = "vectors.bin"
	keywordDir  = "keyword.bleve"

	defaultBatchSize = 64
	lockRetryDelay   = 50 * time.Millisecond
)

var (
	// ErrIndexNotFound is returned when no complete build exists for a key.
	ErrIndexNotFound = errors.New("index not found")
	// ErrDimensionMismatch is returned when an index was built by a different embedder.
	ErrDimensionMismatch = errors.New("index was built with a different embedding dimension")
	// ErrInvalidKey is returned for keys that are not a single path element.
	ErrInvalidKey = errors.New("invalid index key")
)

// Contents is what a producer hands to the store for a fresh build.
type Contents struct {
	Chunks  []*models.Chunk
	Sources []*models.SourceFile
}

// Producer supplies the contents of an index. It is called only when a build is needed.
type Producer func(ctx context.Context) (*Contents, error)

// Store manages indexes under a root directory.
type Store struct {
	root      string
	embedder  embedding.Embedder
	keyword   bool
	batchSize int
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithKeyword builds a BM25 keyword index next to the vectors.
func WithKeyword(enabled bool) Option {
	return func(s *Store) {
		s.keyword = enabled
	}
}

// WithBatchSize sets how many chunks are embedded per EmbedBatch call.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a store rooted at root, creating the directory if needed.
func New(root string, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("store requires an embedder")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	s := &Store{
		root:      root,
		embedder:  embedder,
		batchSize: defaultBatchSize,
		logger:    zap.NewNop(),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the directory of the index for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.root, key)
}

func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Exists reports whether a complete build exists for key.
func (s *Store) Exists(key string) bool {
	if validKey(key) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.Path(key), manifestFile))
	return err == nil
}

// Ensure returns the index for key, building it from produce when it does not
// exist or when reindex is set. The existence check and the build run under
// an in-process mutex and a file lock, so concurrent callers build once.
// built reports whether produce was called.
func (s *Store) Ensure(ctx context.Context, key string, reindex bool, produce Producer) (idx *Index, built bool, err error) {
	if err := validKey(key); err != nil {
		return nil, false, err
	}
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	if s.Exists(key) && !reindex {
		idx, err := s.open(key)
		if err != nil {
			return nil, false, err
		}
		s.logger.Debug("index reused", zap.String("key", key), zap.Int("chunks", idx.Count()))
		return idx, false, nil
	}

	contents, err := produce(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.build(ctx, key, contents); err != nil {
		return nil, false, err
	}
	idx, err = s.open(key)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("index built", zap.String("key", key), zap.Int("chunks", idx.Count()), zap.Bool("reindex", reindex))
	return idx, true, nil
}

// Open opens an existing index.
func (s *Store) Open(ctx context.Context, key string) (*Index, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.open(key)
}

// Delete removes the index for key. Deleting a missing index returns ErrIndexNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	dir := s.Path(key)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, key)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", key, err)
	}
	s.logger.Info("index deleted", zap.String("key", key))
	return nil
}

// List returns the manifests of all complete builds, newest first.
func (s *Store) List() ([]*Manifest, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read index directory: %w", err)
	}
	var out []*Manifest
	for _, e := range entries {
		if !e.IsDir() || validKey(e.Name()) != nil {
			continue
		}
		dir := s.Path(e.Name())
		m, err := readManifest(dir)
		if err != nil {
			continue
		}
		if size, err := storage.DiskUsageBytes(dir); err == nil {
			m.SizeBytes = size
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BuiltAt.After(out[j].BuiltAt) })
	return out, nil
}

// lock takes the per-key mutex and file lock. The returned func releases both.
func (s *Store) lock(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()

	fl := flock.New(filepath.Join(s.root, key+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		m.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to lock index %s: %w", key, err)
	}
	return func() {
		_ = fl.Unlock()
		m.Unlock()
	}, nil
}

// build writes a fresh index into a staging directory and renames it into place.
func (s *Store) build(ctx context.Context, key string, contents *Contents) error {
	if contents == nil {
		contents = &Contents{}
	}
	staging := filepath.Join(s.root, "."+key+".building-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := s.writeContents(ctx, staging, contents); err != nil {
		return err
	}
	manifest := &Manifest{
		Key:        key,
		Chunks:     len(contents.Chunks),
		Dimensions: s.embedder.Dimensions(),
		Keyword:    s.keyword,
		BuiltAt:    time.Now().UTC(),
	}
	for _, src := range contents.Sources {
		manifest.Sources = append(manifest.Sources, src.Name)
	}
	if err := writeManifest(staging, manifest); err != nil {
		return err
	}

	dir := s.Path(key)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove previous index: %w", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return fmt.Errorf("failed to move index into place: %w", err)
	}
	return nil
}

func (s *Store) writeContents(ctx context.Context, dir string, contents *Contents) error {
	db, err := storage.NewSQLiteStorage(filepath.Join(dir, chunksFile))
	if err != nil {
		return err
	}
	defer db.Close()

	for _, src := range contents.Sources {
		if err := db.CreateSource(ctx, src); err != nil {
			return fmt.Errorf("failed to record source %s: %w", src.Name, err)
		}
	}
	if err := db.BatchCreateChunks(ctx, contents.Chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	vectors, err := vector.NewMemoryIndex(s.embedder.Dimensions())
	if err != nil {
		return err
	}
	for start := 0; start < len(contents.Chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(contents.Chunks))
		batch := contents.Chunks[start:end]
		ids := make([]string, len(batch))
		texts := make([]string, len(batch))
		for i, ch := range batch {
			ids[i] = ch.ID
			texts[i] = ch.Text
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if err := vectors.Add(ctx, ids, vecs); err != nil {
			return fmt.Errorf("failed to add vectors: %w", err)
		}
		s.logger.Debug("embedded chunks", zap.Int("done", end), zap.Int("total", len(contents.Chunks)))
	}
	if err := vectors.Save(filepath.Join(dir, vectorsFile)); err != nil {
		return fmt.Errorf("failed to save vectors: %w", err)
	}

	if s.keyword {
		kw, err := keyword.NewBleveIndex(filepath.Join(dir, keywordDir))
		if err != nil {
			return err
		}
		defer kw.Close()
		if err := kw.IndexChunks(ctx, contents.Chunks); err != nil {
			return fmt.Errorf("failed to build keyword index: %w", err)
		}
	}
	return nil
}

func (s *Store) open(key string) (*Index, error) {
	dir := s.Path(key)
	manifest, err := readManifest(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	if manifest.Dimensions != s.embedder.Dimensions() {
		return nil, fmt.Errorf("%w: index %s has %d, embedder has %d",
			ErrDimensionMismatch, key, manifest.Dimensions, s.embedder.Dimensions())
	}

	vectors, err := vector.NewMemoryIndex(manifest.Dimensions)
	if err != nil {
		return nil, err
	}
	if err := vectors.Load(filepath.Join(dir, vectorsFile)); err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	db, err := storage.NewSQLiteStorage(filepath.Join(dir, chunksFile))
	if err != nil {
		return nil, err
	}
	idx := &Index{
		key:      key,
		manifest: manifest,
		vectors:  vectors,
		chunks:   db,
		embedder: s.embedder,
		logger:   s.logger,
	}
	if manifest.Keyword {
		kw, err := keyword.NewBleveIndex(filepath.Join(dir, keywordDir))
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		idx.keyword = kw
	}
	return idx, nil
}
