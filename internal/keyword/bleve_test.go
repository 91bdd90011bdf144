package keyword

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/smartdoc/internal/models"
)

func openTestIndex(t *testing.T) (*BleveIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyword.bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	return idx, path
}

func TestBleveIndex_SearchFindsContent(t *testing.T) {
	idx, _ := openTestIndex(t)
	defer idx.Close()
	ctx := context.Background()

	chunks := []*models.Chunk{
		{ID: "c1", Text: "This report mentions Omnisyan and other findings.", Source: "monthly_report.docx"},
		{ID: "c2", Text: "The Bayes app is also referenced.", Source: "monthly_report.docx"},
	}
	if err := idx.IndexChunks(ctx, chunks); err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}

	results, err := idx.Search(ctx, "Omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Fatalf("Search(Omnisyan) = %+v", results)
	}

	// No stemming, so "bayes" matches "Bayes" exactly.
	results, _ = idx.Search(ctx, "bayes", 10, nil)
	if len(results) != 1 || results[0].ID != "c2" {
		t.Errorf("Search(bayes) = %+v", results)
	}

	// Underscores in file names are indexed as spaces.
	results, _ = idx.Search(ctx, "monthly", 10, nil)
	if len(results) != 2 {
		t.Errorf("Search(monthly) returned %d results, want 2", len(results))
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx, _ := openTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexChunks(ctx, []*models.Chunk{{ID: "c1", Text: "photosynthesis converts light"}})

	exact, _ := idx.Search(ctx, "photosynthesys", 10, nil)
	if len(exact) != 0 {
		t.Errorf("exact search should not match the typo, got %d", len(exact))
	}
	fuzzy, err := idx.Search(ctx, "photosynthesys", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) != 1 {
		t.Errorf("fuzzy search should match, got %d", len(fuzzy))
	}
}

func TestBleveIndex_EmptyQueryAndLimit(t *testing.T) {
	idx, _ := openTestIndex(t)
	defer idx.Close()
	ctx := context.Background()
	_ = idx.IndexChunks(ctx, []*models.Chunk{{ID: "c1", Text: "alpha"}})
	if r, err := idx.Search(ctx, "   ", 10, nil); err != nil || r != nil {
		t.Errorf("blank query: %v, %v", r, err)
	}
	if r, _ := idx.Search(ctx, "alpha", 0, nil); r != nil {
		t.Errorf("zero limit should return nil, got %v", r)
	}
}

func TestBleveIndex_BatchesAndReopen(t *testing.T) {
	idx, path := openTestIndex(t)
	ctx := context.Background()
	chunks := make([]*models.Chunk, batchSize+20)
	for i := range chunks {
		chunks[i] = &models.Chunk{ID: fmt.Sprintf("c%d", i), Text: fmt.Sprintf("shared term number%d", i)}
	}
	if err := idx.IndexChunks(ctx, chunks); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != uint64(len(chunks)) {
		t.Errorf("DocCount = %d, want %d", n, len(chunks))
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	results, _ := reopened.Search(ctx, "number7", 5, nil)
	if len(results) != 1 || results[0].ID != "c7" {
		t.Errorf("reopened search = %+v", results)
	}
}
