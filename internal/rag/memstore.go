package rag

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryChunkStore is a brute-force in-memory ChunkStore used when no
// database is configured. Search scans every candidate chunk, which is
// fine at podcast scale.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[int64][]Chunk // keyed by episode ID, ordered by chunk index
}

// NewMemoryChunkStore creates an empty in-memory chunk store.
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{chunks: make(map[int64][]Chunk)}
}

// ReplaceChunks swaps the episode's chunk set under the store lock, so
// concurrent readers see either the old set or the new set.
func (s *MemoryChunkStore) ReplaceChunks(_ context.Context, episodeID int64, chunks []Chunk) error {
	stored := make([]Chunk, len(chunks))
	for i, chunk := range chunks {
		stored[i] = cloneChunk(chunk)
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Index < stored[j].Index })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[episodeID] = stored
	return nil
}

// Search ranks candidates by cosine similarity, highest first, with
// chunk order breaking ties. WithEpisode filters candidates before
// ranking.
func (s *MemoryChunkStore) Search(_ context.Context, query []float32, opts ...SearchOption) ([]ScoredChunk, error) {
	cfg, err := buildSearchConfig(opts)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var candidates []ScoredChunk
	for episodeID, chunks := range s.chunks {
		if cfg.hasEpisode && episodeID != cfg.episodeID {
			continue
		}
		for _, chunk := range chunks {
			candidates = append(candidates, ScoredChunk{
				Chunk:      cloneChunk(chunk),
				Similarity: cosineSimilarity(query, chunk.Embedding),
			})
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if candidates[i].EpisodeID != candidates[j].EpisodeID {
			return candidates[i].EpisodeID < candidates[j].EpisodeID
		}
		return candidates[i].Index < candidates[j].Index
	})

	if len(candidates) > cfg.topK {
		candidates = candidates[:cfg.topK]
	}
	return candidates, nil
}

// ListChunks returns up to limit chunks for an episode in chunk order.
// limit <= 0 means no limit.
func (s *MemoryChunkStore) ListChunks(_ context.Context, episodeID int64, limit int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.chunks[episodeID]
	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}
	out := make([]Chunk, len(stored))
	for i, chunk := range stored {
		out[i] = cloneChunk(chunk)
	}
	return out, nil
}

// DeleteChunks removes all chunks for an episode.
func (s *MemoryChunkStore) DeleteChunks(_ context.Context, episodeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, episodeID)
	return nil
}

// CountChunks returns the number of stored chunks for an episode.
func (s *MemoryChunkStore) CountChunks(_ context.Context, episodeID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[episodeID]), nil
}

func cloneChunk(chunk Chunk) Chunk {
	out := chunk
	out.Embedding = append([]float32(nil), chunk.Embedding...)
	if chunk.Metadata != nil {
		out.Metadata = make(map[string]string, len(chunk.Metadata))
		for k, v := range chunk.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// cosineSimilarity returns the cosine of the angle between a and b, or
// 0 when either vector is zero or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
