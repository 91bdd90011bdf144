package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/smartdoc/internal/models"
)

func openTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_Chunks(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	chunks := []*models.Chunk{
		{ID: "c1", Index: 0, Source: "a.pdf", Page: 0, Text: "chunk one", Metadata: map[string]interface{}{"file_type": "pdf"}},
		{ID: "c2", Index: 1, Source: "a.pdf", Page: 1, Text: "chunk two"},
		{ID: "c3", Index: 2, Source: "b.txt", Page: 0, Text: "chunk three"},
	}
	if err := store.BatchCreateChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetChunk(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "chunk one" || got.Source != "a.pdf" || got.Metadata["file_type"] != "pdf" {
		t.Errorf("got %+v", got)
	}
	if _, err := store.GetChunk(ctx, "missing"); err == nil {
		t.Error("expected error for unknown chunk")
	}

	ordered, err := store.GetChunks(ctx, []string{"c3", "missing", "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ordered) != 2 || ordered[0].ID != "c3" || ordered[1].ID != "c1" {
		t.Errorf("GetChunks should keep request order and skip unknown IDs: %+v", ordered)
	}

	page, err := store.ListChunks(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "c2" || page[1].Page != 0 {
		t.Errorf("ListChunks(1, 10) = %+v", page)
	}

	n, err := store.CountChunks(ctx)
	if err != nil || n != 3 {
		t.Errorf("CountChunks: %v, %d", err, n)
	}
}

func TestSQLiteStorage_BatchCreateChunksRollsBack(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	dup := []*models.Chunk{
		{ID: "c1", Index: 0, Source: "a", Text: "x"},
		{ID: "c1", Index: 1, Source: "a", Text: "y"},
	}
	if err := store.BatchCreateChunks(ctx, dup); err == nil {
		t.Fatal("expected error for duplicate chunk IDs")
	}
	if n, _ := store.CountChunks(ctx); n != 0 {
		t.Errorf("failed batch should leave no rows, got %d", n)
	}
}

func TestSQLiteStorage_Sources(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	if err := store.CreateSource(ctx, &models.SourceFile{Name: "b.txt", Digest: "bb", Records: 1}); err != nil {
		t.Fatal(err)
	}
	src := &models.SourceFile{Name: "a.pdf", Digest: "aa", Records: 3}
	if err := store.CreateSource(ctx, src); err != nil {
		t.Fatal(err)
	}
	if src.IndexedAt.IsZero() {
		t.Error("IndexedAt should be set")
	}
	list, err := store.ListSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "a.pdf" || list[0].Records != 3 || list[1].Digest != "bb" {
		t.Errorf("ListSources = %+v", list)
	}
}
