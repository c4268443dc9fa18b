package rag

import (
	"context"
	"errors"
	"testing"
)

func vec(vals ...float32) []float32 { return vals }

func TestMemoryChunkStoreReplaceAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChunkStore()

	chunks := []Chunk{
		{EpisodeID: 1, Index: 0, Content: "first", Embedding: vec(1, 0)},
		{EpisodeID: 1, Index: 1, Content: "second", Embedding: vec(0, 1)},
	}
	if err := store.ReplaceChunks(ctx, 1, chunks); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	count, err := store.CountChunks(ctx, 1)
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountChunks() = %d, want 2", count)
	}

	// Replacing swaps the whole set, it does not accumulate.
	if err := store.ReplaceChunks(ctx, 1, chunks[:1]); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
	count, _ = store.CountChunks(ctx, 1)
	if count != 1 {
		t.Errorf("CountChunks() after replace = %d, want 1", count)
	}
}

func TestMemoryChunkStoreSearchRanking(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChunkStore()

	err := store.ReplaceChunks(ctx, 1, []Chunk{
		{EpisodeID: 1, Index: 0, Content: "orthogonal", Embedding: vec(0, 1)},
		{EpisodeID: 1, Index: 1, Content: "exact", Embedding: vec(1, 0)},
		{EpisodeID: 1, Index: 2, Content: "close", Embedding: vec(1, 0.5)},
	})
	if err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	results, err := store.Search(ctx, vec(1, 0), WithEpisode(1), WithTopK(2))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Content != "exact" {
		t.Errorf("top result = %q, want %q", results[0].Content, "exact")
	}
	if results[1].Content != "close" {
		t.Errorf("second result = %q, want %q", results[1].Content, "close")
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by descending similarity")
	}
}

func TestMemoryChunkStoreSearchEpisodeIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChunkStore()

	// The other episode's chunk is a perfect match for the query; the
	// episode filter must still exclude it.
	if err := store.ReplaceChunks(ctx, 1, []Chunk{
		{EpisodeID: 1, Index: 0, Content: "requested episode", Embedding: vec(0, 1)},
	}); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
	if err := store.ReplaceChunks(ctx, 2, []Chunk{
		{EpisodeID: 2, Index: 0, Content: "other episode", Embedding: vec(1, 0)},
	}); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	results, err := store.Search(ctx, vec(1, 0), WithEpisode(1), WithTopK(10))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d results, want 1", len(results))
	}
	if results[0].EpisodeID != 1 {
		t.Errorf("result from episode %d leaked through the filter", results[0].EpisodeID)
	}
}

func TestMemoryChunkStoreSearchTopKBound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChunkStore()

	if err := store.ReplaceChunks(ctx, 1, []Chunk{
		{EpisodeID: 1, Index: 0, Embedding: vec(1, 0)},
		{EpisodeID: 1, Index: 1, Embedding: vec(0, 1)},
	}); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	// Asking for more than exists returns what exists.
	results, err := store.Search(ctx, vec(1, 0), WithEpisode(1), WithTopK(50))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Search() returned %d results, want 2", len(results))
	}
}

func TestMemoryChunkStoreSearchInvalidTopK(t *testing.T) {
	store := NewMemoryChunkStore()
	_, err := store.Search(context.Background(), vec(1, 0), WithTopK(0))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Search(topK=0) error = %v, want ErrValidation", err)
	}
}

func TestMemoryChunkStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChunkStore()

	if err := store.ReplaceChunks(ctx, 1, []Chunk{
		{EpisodeID: 1, Index: 1, Content: "b", Embedding: vec(0, 1)},
		{EpisodeID: 1, Index: 0, Content: "a", Embedding: vec(1, 0)},
		{EpisodeID: 1, Index: 2, Content: "c", Embedding: vec(1, 1)},
	}); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}

	chunks, err := store.ListChunks(ctx, 1, 2)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	if len(chunks) != 2 || chunks[0].Content != "a" || chunks[1].Content != "b" {
		t.Errorf("ListChunks() = %v, want first two chunks in index order", chunks)
	}

	if err := store.DeleteChunks(ctx, 1); err != nil {
		t.Fatalf("DeleteChunks() error = %v", err)
	}
	count, _ := store.CountChunks(ctx, 1)
	if count != 0 {
		t.Errorf("CountChunks() after delete = %d, want 0", count)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: vec(1, 0), b: vec(1, 0), want: 1},
		{name: "orthogonal", a: vec(1, 0), b: vec(0, 1), want: 0},
		{name: "opposite", a: vec(1, 0), b: vec(-1, 0), want: -1},
		{name: "zero vector", a: vec(0, 0), b: vec(1, 0), want: 0},
		{name: "length mismatch", a: vec(1), b: vec(1, 0), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}
