package vector

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_AddSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, []string{"a", "b", "c"}, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 || idx.Dimensions() != 3 {
		t.Errorf("Size=%d Dimensions=%d", idx.Size(), idx.Dimensions())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}

	all, _ := idx.Search(ctx, []float32{1, 0, 0}, 10)
	if len(all) != 3 {
		t.Errorf("k larger than size should return all, got %d", len(all))
	}
}

func TestMemoryIndex_SearchEmpty(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil || len(results) != 0 {
		t.Errorf("empty index: %v, %d results", err, len(results))
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 5); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryIndex_AddErrors(t *testing.T) {
	if _, err := NewMemoryIndex(0); err == nil {
		t.Error("expected error for zero dimensions")
	}
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, nil); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 2, 3}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "vectors.bin")
	ctx := context.Background()
	idx, _ := NewMemoryIndex(2)
	_ = idx.Add(ctx, []string{"chunk-1", "chunk-22"}, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size = %d", loaded.Size())
	}
	results, _ := loaded.Search(ctx, []float32{0, 1}, 1)
	if results[0].ID != "chunk-22" {
		t.Errorf("top result = %s", results[0].ID)
	}

	wrong, _ := NewMemoryIndex(3)
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
	if err := loaded.Load(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSimilarity(t *testing.T) {
	if got := InnerProduct([]float32{1, 2}, []float32{3, 4}); got != 11 {
		t.Errorf("InnerProduct = %f", got)
	}
	if got := CosineSimilarity([]float32{2, 0}, []float32{5, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("CosineSimilarity = %f", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector similarity = %f", got)
	}
	if got := L2Norm([]float32{3, 4}); got != 5 {
		t.Errorf("L2Norm = %f", got)
	}
}
