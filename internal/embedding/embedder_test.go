package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/smartdoc/internal/config"
	"github.com/hyperjump/smartdoc/internal/vector"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "The sky is blue.")
	b, _ := e.Embed(ctx, "The sky is blue.")
	if len(a) != 64 {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding not deterministic")
		}
	}
	if n := vector.L2Norm(a); math.Abs(n-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", n)
	}
	empty, _ := e.Embed(ctx, "   ")
	if n := vector.L2Norm(empty); math.Abs(n-1) > 1e-5 {
		t.Errorf("empty text norm = %f, want 1", n)
	}
}

func TestHashEmbedder_SharedWordsScoreHigher(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "what color is the sky")
	related, _ := e.Embed(ctx, "The sky is blue.")
	unrelated, _ := e.Embed(ctx, "Quarterly revenue grew eleven percent.")
	if vector.InnerProduct(q, related) <= vector.InnerProduct(q, unrelated) {
		t.Error("text sharing words should score higher")
	}
}

func TestNew_providers(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: config.ProviderHash, Dimensions: 32, CacheSize: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 32 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}

	e, err = New(config.EmbeddingConfig{Provider: config.ProviderOllama, Dimensions: 384}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*OllamaProvider); !ok {
		t.Errorf("expected ollama provider, got %T", e)
	}

	if _, err := New(config.EmbeddingConfig{Provider: "word2vec"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_missingModelIsFatal(t *testing.T) {
	_, err := New(config.EmbeddingConfig{
		Provider:   config.ProviderONNX,
		ModelPath:  t.TempDir() + "/missing.onnx",
		Dimensions: 384,
		MaxTokens:  256,
	}, nil)
	if err == nil {
		t.Fatal("expected model load failure")
	}
}

func TestOllamaProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "all-minilm:l6-v2" || req.Prompt == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.6, 0.8, 0}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(WithBaseURL(srv.URL+"/"), WithDimensions(3))
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 0.8 {
		t.Errorf("vectors = %v", vecs)
	}

	wrongDims := NewOllamaProvider(WithBaseURL(srv.URL), WithDimensions(384))
	if _, err := wrongDims.Embed(context.Background(), "a"); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestOllamaProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllamaProvider(WithBaseURL(srv.URL))
	_, err := p.Embed(context.Background(), "a")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("unexpected cancel: %v", err)
	}
}
