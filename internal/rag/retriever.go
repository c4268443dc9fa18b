package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/koopa0/podrag/internal/log"
)

// Searcher is the slice of ChunkStore the retriever needs.
type Searcher interface {
	Search(ctx context.Context, query []float32, opts ...SearchOption) ([]ScoredChunk, error)
}

// Retriever embeds a question and finds the most similar chunks within
// a single episode.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
	logger   log.Logger
}

// NewRetriever creates a retriever returning at most topK chunks per
// question. topK is validated here so a misconfigured value fails at
// startup, not on the first question.
func NewRetriever(embedder Embedder, searcher Searcher, topK int, logger log.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: top-k must be at least 1, got %d", ErrValidation, topK)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
		logger:   logger.With("component", "retriever"),
	}, nil
}

// Retrieve returns up to topK chunks from the given episode ranked by
// similarity to the question. Fewer results mean the episode has fewer
// stored chunks; an empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, episodeID int64) ([]ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrValidation)
	}

	query, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err := r.searcher.Search(ctx, query, WithEpisode(episodeID), WithTopK(r.topK))
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	r.logger.Debug("retrieved chunks", "episode_id", episodeID, "count", len(results))
	return results, nil
}
