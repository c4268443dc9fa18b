package rag

import (
	"context"
	"testing"

	"github.com/koopa0/podrag/internal/testutil"
)

// axisVector returns a 768-dimension unit vector pointing along one
// axis. Distinct axes are orthogonal, so cosine similarity between
// them is zero and ranking in tests is unambiguous.
func axisVector(axis int) []float32 {
	vec := make([]float32, VectorDimension)
	vec[axis%int(VectorDimension)] = 1
	return vec
}

func blendVector(primary, secondary int, weight float32) []float32 {
	vec := axisVector(primary)
	vec[secondary%int(VectorDimension)] = weight
	return vec
}

func seedChunks(t *testing.T, store *PostgresChunkStore, episodeID int64, chunks []Chunk) {
	t.Helper()
	if err := store.ReplaceChunks(context.Background(), episodeID, chunks); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
}

func TestPostgresChunkStoreReplaceAndList(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewPostgresChunkStore(testDB.Pool, nil)
	if err != nil {
		t.Fatalf("NewPostgresChunkStore: %v", err)
	}
	ctx := context.Background()

	seedChunks(t, store, 1, []Chunk{
		{EpisodeID: 1, Index: 0, Content: "first", Metadata: map[string]string{"episode_number": "1"}, Embedding: axisVector(0)},
		{EpisodeID: 1, Index: 1, Content: "second", Metadata: map[string]string{"episode_number": "1"}, Embedding: axisVector(1)},
		{EpisodeID: 1, Index: 2, Content: "third", Metadata: map[string]string{"episode_number": "1"}, Embedding: axisVector(2)},
	})

	count, err := store.CountChunks(ctx, 1)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 3 {
		t.Errorf("CountChunks = %d, want 3", count)
	}

	// Replacing swaps the whole set, leftovers from the first write
	// must not survive.
	seedChunks(t, store, 1, []Chunk{
		{EpisodeID: 1, Index: 0, Content: "rewritten", Embedding: axisVector(3)},
	})

	chunks, err := store.ListChunks(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ListChunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "rewritten" {
		t.Fatalf("ListChunks after replace = %v, want only the rewritten chunk", chunks)
	}

	if err := store.DeleteChunks(ctx, 1); err != nil {
		t.Fatalf("DeleteChunks: %v", err)
	}
	count, err = store.CountChunks(ctx, 1)
	if err != nil {
		t.Fatalf("CountChunks: %v", err)
	}
	if count != 0 {
		t.Errorf("CountChunks after delete = %d, want 0", count)
	}
}

func TestPostgresChunkStoreSearchRanking(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewPostgresChunkStore(testDB.Pool, nil)
	if err != nil {
		t.Fatalf("NewPostgresChunkStore: %v", err)
	}
	ctx := context.Background()

	seedChunks(t, store, 1, []Chunk{
		{EpisodeID: 1, Index: 0, Content: "exact match", Embedding: axisVector(0)},
		{EpisodeID: 1, Index: 1, Content: "partial match", Embedding: blendVector(0, 1, 1)},
		{EpisodeID: 1, Index: 2, Content: "unrelated", Embedding: axisVector(5)},
	})

	results, err := store.Search(ctx, axisVector(0), WithEpisode(1), WithTopK(2))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Content != "exact match" {
		t.Errorf("top result = %q, want the exact match", results[0].Content)
	}
	if results[1].Content != "partial match" {
		t.Errorf("second result = %q, want the partial match", results[1].Content)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("exact match similarity = %f, want ~1", results[0].Similarity)
	}
	if results[0].Similarity <= results[1].Similarity {
		t.Errorf("similarities not descending: %f then %f",
			results[0].Similarity, results[1].Similarity)
	}
}

func TestPostgresChunkStoreSearchEpisodeFilter(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	store, err := NewPostgresChunkStore(testDB.Pool, nil)
	if err != nil {
		t.Fatalf("NewPostgresChunkStore: %v", err)
	}
	ctx := context.Background()

	// Episode 2 holds a perfect match for the query. With the filter on
	// episode 1 it must never appear, even when episode 1 only has a
	// weak match.
	seedChunks(t, store, 1, []Chunk{
		{EpisodeID: 1, Index: 0, Content: "weak", Embedding: blendVector(0, 1, 4)},
	})
	seedChunks(t, store, 2, []Chunk{
		{EpisodeID: 2, Index: 0, Content: "perfect but wrong episode", Embedding: axisVector(0)},
	})

	results, err := store.Search(ctx, axisVector(0), WithEpisode(1), WithTopK(5))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search returned %d results, want 1", len(results))
	}
	if results[0].EpisodeID != 1 || results[0].Content != "weak" {
		t.Errorf("filtered search returned %+v, want the episode 1 chunk", results[0])
	}

	unfiltered, err := store.Search(ctx, axisVector(0), WithTopK(5))
	if err != nil {
		t.Fatalf("Search without filter: %v", err)
	}
	if len(unfiltered) != 2 {
		t.Fatalf("unfiltered search returned %d results, want 2", len(unfiltered))
	}
	if unfiltered[0].EpisodeID != 2 {
		t.Errorf("unfiltered top result from episode %d, want the perfect match from episode 2",
			unfiltered[0].EpisodeID)
	}
}
