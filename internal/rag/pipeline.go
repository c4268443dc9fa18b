package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/koopa0/podrag/internal/episode"
	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/session"
)

// State is an episode's position in the ingestion lifecycle.
type State string

const (
	StateUnprocessed State = "unprocessed"
	StateChunking    State = "chunking"
	StateEmbedding   State = "embedding"
	StateStoring     State = "storing"
	StateProcessed   State = "processed"
	StateFailed      State = "failed"
)

// Status describes an episode's ingestion state. Reason is set only
// when State is StateFailed. Chunks is the stored chunk count for
// processed episodes.
type Status struct {
	EpisodeNumber int64  `json:"episode_number"`
	State         State  `json:"state"`
	Reason        string `json:"reason,omitempty"`
	Chunks        int    `json:"chunks,omitempty"`
}

// PipelineConfig holds the tunables for ingestion and retrieval.
type PipelineConfig struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	SummaryTopK  int
}

// Pipeline orchestrates ingestion (chunk, embed, store) and querying
// (retrieve, generate) for episodes. Transient states are tracked in
// memory per episode number; the durable processed flag lives on the
// episode record.
type Pipeline struct {
	episodes  episode.Store
	chunks    ChunkStore
	embedder  Embedder
	generator Generator
	chunker   *Chunker
	retriever *Retriever

	summaryTopK int
	logger      log.Logger

	mu     sync.Mutex
	states map[int64]Status
}

// NewPipeline wires the ingestion and query paths. Configuration is
// validated here so bad values fail at startup.
func NewPipeline(
	episodes episode.Store,
	chunks ChunkStore,
	embedder Embedder,
	generator Generator,
	cfg PipelineConfig,
	logger log.Logger,
) (*Pipeline, error) {
	if episodes == nil {
		return nil, errors.New("episode store is required")
	}
	if chunks == nil {
		return nil, errors.New("chunk store is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.SummaryTopK < 1 {
		return nil, fmt.Errorf("%w: summary top-k must be at least 1, got %d", ErrValidation, cfg.SummaryTopK)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	retriever, err := NewRetriever(embedder, chunks, cfg.TopK, logger)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		episodes:    episodes,
		chunks:      chunks,
		embedder:    embedder,
		generator:   generator,
		chunker:     chunker,
		retriever:   retriever,
		summaryTopK: cfg.SummaryTopK,
		logger:      logger.With("component", "pipeline"),
	}, nil
}

// Process ingests an episode's transcript: chunk, embed, store, then
// mark processed. Processing an already processed episode is a no-op
// unless reprocess is set, in which case the chunk set is rebuilt from
// scratch. Reprocessing is idempotent: running it twice leaves the
// same chunks as running it once.
func (p *Pipeline) Process(ctx context.Context, episodeNumber int64, reprocess bool) (Status, error) {
	ep, err := p.episodes.Get(ctx, episodeNumber)
	if err != nil {
		return Status{}, err
	}

	if ep.Processed && !reprocess {
		count, err := p.chunks.CountChunks(ctx, ep.ID)
		if err != nil {
			return Status{}, err
		}
		return Status{EpisodeNumber: episodeNumber, State: StateProcessed, Chunks: count}, nil
	}

	if err := p.beginIngest(episodeNumber); err != nil {
		return Status{}, err
	}

	status, err := p.ingest(ctx, ep)
	if err != nil {
		p.setState(Status{EpisodeNumber: episodeNumber, State: StateFailed, Reason: err.Error()})
		return Status{}, err
	}
	p.setState(status)
	return status, nil
}

func (p *Pipeline) ingest(ctx context.Context, ep *episode.Episode) (Status, error) {
	number := ep.EpisodeNumber

	if !ep.HasTranscript() {
		return Status{}, fmt.Errorf("%w: episode %d has no transcript", ErrValidation, number)
	}

	p.setState(Status{EpisodeNumber: number, State: StateChunking})
	texts, err := p.chunker.Chunk(ep.Transcript)
	if err != nil {
		return Status{}, fmt.Errorf("chunking episode %d: %w", number, err)
	}

	p.setState(Status{EpisodeNumber: number, State: StateEmbedding})
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Status{}, fmt.Errorf("embedding episode %d: %w", number, err)
	}
	if len(vectors) != len(texts) {
		return Status{}, fmt.Errorf("%w: got %d vectors for %d chunks",
			ErrEmbeddingProvider, len(vectors), len(texts))
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			EpisodeID: ep.ID,
			Index:     i,
			Content:   text,
			Metadata: map[string]string{
				"episode_number": strconv.FormatInt(number, 10),
				"episode_title":  ep.Title,
			},
			Embedding: vectors[i],
		}
	}

	p.setState(Status{EpisodeNumber: number, State: StateStoring})
	if err := p.chunks.ReplaceChunks(ctx, ep.ID, chunks); err != nil {
		return Status{}, fmt.Errorf("storing chunks for episode %d: %w", number, err)
	}

	if err := p.episodes.SetProcessed(ctx, number, true); err != nil {
		return Status{}, fmt.Errorf("marking episode %d processed: %w", number, err)
	}

	p.logger.Info("processed episode", "episode", number, "chunks", len(chunks))
	return Status{EpisodeNumber: number, State: StateProcessed, Chunks: len(chunks)}, nil
}

// Ask answers a question about one processed episode, grounded on its
// retrieved chunks. When sess is non-nil its history shapes the answer
// and the exchange is appended to it afterwards.
func (p *Pipeline) Ask(ctx context.Context, episodeNumber int64, question string, sess *session.Session) (string, []ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return "", nil, fmt.Errorf("%w: question is empty", ErrValidation)
	}

	ep, err := p.episodes.Get(ctx, episodeNumber)
	if err != nil {
		return "", nil, err
	}
	if !ep.Processed {
		return "", nil, fmt.Errorf("%w: episode %d", ErrNotProcessed, episodeNumber)
	}

	chunks, err := p.retriever.Retrieve(ctx, question, ep.ID)
	if err != nil {
		return "", nil, err
	}

	var history []session.Turn
	if sess != nil {
		history = sess.Turns()
	}

	answer, err := p.generator.Answer(ctx, AnswerRequest{
		EpisodeNumber: episodeNumber,
		EpisodeTitle:  ep.Title,
		Question:      question,
		Chunks:        chunks,
		History:       history,
	})
	if err != nil {
		return "", nil, err
	}

	if sess != nil {
		sess.Append(session.RoleUser, question)
		sess.Append(session.RoleAssistant, answer)
	}
	return answer, chunks, nil
}

// Summary returns the episode's summary, generating and caching it on
// first request. The cached value is served on later calls without
// touching the model.
func (p *Pipeline) Summary(ctx context.Context, episodeNumber int64) (string, error) {
	ep, err := p.episodes.Get(ctx, episodeNumber)
	if err != nil {
		return "", err
	}
	if !ep.Processed {
		return "", fmt.Errorf("%w: episode %d", ErrNotProcessed, episodeNumber)
	}
	if ep.Summary != nil && *ep.Summary != "" {
		return *ep.Summary, nil
	}

	chunks, err := p.chunks.ListChunks(ctx, ep.ID, p.summaryTopK)
	if err != nil {
		return "", err
	}

	summary, err := p.generator.Summarize(ctx, ep.Title, chunks)
	if err != nil {
		return "", err
	}

	if err := p.episodes.SetSummary(ctx, episodeNumber, summary); err != nil {
		return "", fmt.Errorf("caching summary for episode %d: %w", episodeNumber, err)
	}
	return summary, nil
}

// Status reports the episode's ingestion state. In-flight and failed
// states come from memory; otherwise the durable processed flag
// decides.
func (p *Pipeline) Status(ctx context.Context, episodeNumber int64) (Status, error) {
	p.mu.Lock()
	status, ok := p.states[episodeNumber]
	p.mu.Unlock()
	if ok {
		return status, nil
	}

	ep, err := p.episodes.Get(ctx, episodeNumber)
	if err != nil {
		return Status{}, err
	}
	if !ep.Processed {
		return Status{EpisodeNumber: episodeNumber, State: StateUnprocessed}, nil
	}

	count, err := p.chunks.CountChunks(ctx, ep.ID)
	if err != nil {
		return Status{}, err
	}
	return Status{EpisodeNumber: episodeNumber, State: StateProcessed, Chunks: count}, nil
}

// beginIngest claims the episode for ingestion, rejecting a second
// concurrent run in this process. Cross-process runs serialize on the
// chunk store's advisory lock instead.
func (p *Pipeline) beginIngest(episodeNumber int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.states == nil {
		p.states = make(map[int64]Status)
	}
	switch p.states[episodeNumber].State {
	case StateChunking, StateEmbedding, StateStoring:
		return fmt.Errorf("%w: episode %d", ErrAlreadyRunning, episodeNumber)
	}
	p.states[episodeNumber] = Status{EpisodeNumber: episodeNumber, State: StateChunking}
	return nil
}

func (p *Pipeline) setState(status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.states == nil {
		p.states = make(map[int64]Status)
	}
	p.states[status.EpisodeNumber] = status
}
