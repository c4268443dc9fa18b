package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/koopa0/podrag/internal/log"
)

// VectorDimension is the embedding dimension stored in the database.
// The vector(768) column in episode_chunks must match.
const VectorDimension int32 = 768

const (
	// defaultEmbedBatchSize bounds documents per embedding request.
	defaultEmbedBatchSize = 64

	// defaultEmbedRateLimit caps embedding requests per second.
	defaultEmbedRateLimit = 5
)

// Embedder turns text into vectors. Implementations must return vectors
// of VectorDimension elements and preserve input order in EmbedBatch.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenkitEmbedder adapts a Genkit embedding model to the Embedder
// interface, adding batching and client-side rate limiting.
type GenkitEmbedder struct {
	embedder  ai.Embedder
	limiter   *rate.Limiter
	batchSize int
	reduceDim bool
	logger    log.Logger
}

// EmbedderOption configures a GenkitEmbedder.
type EmbedderOption func(*GenkitEmbedder)

// WithRateLimit caps embedding requests per second.
func WithRateLimit(rps float64) EmbedderOption {
	return func(e *GenkitEmbedder) {
		e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithBatchSize sets the maximum documents per embedding request.
func WithBatchSize(n int) EmbedderOption {
	return func(e *GenkitEmbedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithReducedDimension requests VectorDimension-sized vectors from the
// model. Only Google embedding models honor the option; leave it off
// for models that already emit the right dimension.
func WithReducedDimension() EmbedderOption {
	return func(e *GenkitEmbedder) {
		e.reduceDim = true
	}
}

// NewGenkitEmbedder wraps a Genkit embedder.
func NewGenkitEmbedder(embedder ai.Embedder, logger log.Logger, opts ...EmbedderOption) (*GenkitEmbedder, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	e := &GenkitEmbedder{
		embedder:  embedder,
		limiter:   rate.NewLimiter(rate.Limit(defaultEmbedRateLimit), 1),
		batchSize: defaultEmbedBatchSize,
		logger:    logger.With("component", "embedder"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the embedding vector for a single text.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts, preserving order. Requests are chunked
// into batches so a long transcript does not produce one oversized
// provider call.
func (e *GenkitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch starting at %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *GenkitEmbedder) embedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limit: %w", ErrEmbeddingProvider, err)
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	req := &ai.EmbedRequest{Input: docs}
	if e.reduceDim {
		dim := VectorDimension
		req.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := e.embedder.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d documents",
			ErrEmbeddingProvider, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbeddingProvider, i)
		}
		vectors[i] = emb.Embedding
	}

	e.logger.Debug("embedded documents", "count", len(texts))
	return vectors, nil
}
