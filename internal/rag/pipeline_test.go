package rag

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/koopa0/podrag/internal/episode"
	"github.com/koopa0/podrag/internal/session"
)

// fakeEmbedder produces deterministic pseudo-random vectors from the
// input text, so identical texts always rank as exact matches.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func newFakeEmbedder() *fakeEmbedder { return &fakeEmbedder{} }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return textVector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = textVector(text)
	}
	return vectors, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func textVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, 8)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>33)) / float32(1<<30)
	}
	return v
}

type fakeGenerator struct {
	mu             sync.Mutex
	answerCalls    int
	summarizeCalls int
	lastRequest    AnswerRequest
}

func (f *fakeGenerator) Answer(_ context.Context, req AnswerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answerCalls++
	f.lastRequest = req
	return "answer: " + req.Question, nil
}

func (f *fakeGenerator) Summarize(_ context.Context, episodeTitle string, chunks []Chunk) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no chunks to summarize", ErrValidation)
	}
	return "summary: " + episodeTitle, nil
}

type pipelineFixture struct {
	pipeline  *Pipeline
	episodes  *episode.MemoryStore
	chunks    *MemoryChunkStore
	embedder  *fakeEmbedder
	generator *fakeGenerator
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		episodes:  episode.NewMemoryStore(),
		chunks:    NewMemoryChunkStore(),
		embedder:  newFakeEmbedder(),
		generator: &fakeGenerator{},
	}

	var err error
	f.pipeline, err = NewPipeline(f.episodes, f.chunks, f.embedder, f.generator, PipelineConfig{
		ChunkSize:    100,
		ChunkOverlap: 20,
		TopK:         4,
		SummaryTopK:  300,
	}, nil)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return f
}

func (f *pipelineFixture) saveEpisode(t *testing.T, number int64, transcript ...string) *episode.Episode {
	t.Helper()

	ep := &episode.Episode{
		EpisodeNumber: number,
		Title:         fmt.Sprintf("Episode %d", number),
		Transcript:    transcript,
	}
	if err := f.episodes.Save(context.Background(), ep); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return ep
}

func TestPipelineProcess(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	ep := f.saveEpisode(t, 1, strings.Repeat("a", 150), strings.Repeat("b", 150))

	status, err := f.pipeline.Process(ctx, 1, false)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if status.State != StateProcessed {
		t.Errorf("state = %q, want %q", status.State, StateProcessed)
	}
	if status.Chunks < 2 {
		t.Errorf("chunks = %d, want at least 2", status.Chunks)
	}

	got, err := f.episodes.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Processed {
		t.Error("episode not marked processed")
	}

	count, err := f.chunks.CountChunks(ctx, ep.ID)
	if err != nil {
		t.Fatalf("CountChunks() error = %v", err)
	}
	if count != status.Chunks {
		t.Errorf("stored %d chunks, status reported %d", count, status.Chunks)
	}

	stored, err := f.chunks.ListChunks(ctx, ep.ID, 0)
	if err != nil {
		t.Fatalf("ListChunks() error = %v", err)
	}
	for i, chunk := range stored {
		if chunk.Index != i {
			t.Errorf("chunk %d has index %d, want contiguous indices", i, chunk.Index)
		}
		if chunk.Metadata["episode_number"] != "1" {
			t.Errorf("chunk %d metadata = %v, want episode_number=1", i, chunk.Metadata)
		}
	}
}

func TestPipelineProcessAlreadyProcessedIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1, strings.Repeat("a", 150))

	if _, err := f.pipeline.Process(ctx, 1, false); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	callsAfterFirst := f.embedder.callCount()

	status, err := f.pipeline.Process(ctx, 1, false)
	if err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if status.State != StateProcessed {
		t.Errorf("state = %q, want %q", status.State, StateProcessed)
	}
	if f.embedder.callCount() != callsAfterFirst {
		t.Error("second Process() without reprocess re-embedded the transcript")
	}
}

func TestPipelineReprocessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	ep := f.saveEpisode(t, 1, strings.Repeat("a", 500))

	first, err := f.pipeline.Process(ctx, 1, false)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		status, err := f.pipeline.Process(ctx, 1, true)
		if err != nil {
			t.Fatalf("reprocess %d error = %v", i, err)
		}
		if status.Chunks != first.Chunks {
			t.Errorf("reprocess %d produced %d chunks, want %d", i, status.Chunks, first.Chunks)
		}
	}

	count, _ := f.chunks.CountChunks(ctx, ep.ID)
	if count != first.Chunks {
		t.Errorf("chunks accumulated across reprocess: %d, want %d", count, first.Chunks)
	}
}

func TestPipelineProcessUnknownEpisode(t *testing.T) {
	f := newPipelineFixture(t)
	if _, err := f.pipeline.Process(context.Background(), 99, false); !errors.Is(err, episode.ErrNotFound) {
		t.Errorf("Process(unknown) error = %v, want episode.ErrNotFound", err)
	}
}

func TestPipelineProcessEmptyTranscript(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1)

	if _, err := f.pipeline.Process(ctx, 1, false); !errors.Is(err, ErrValidation) {
		t.Errorf("Process(no transcript) error = %v, want ErrValidation", err)
	}

	status, err := f.pipeline.Status(ctx, 1)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != StateFailed || status.Reason == "" {
		t.Errorf("status = %+v, want failed state with reason", status)
	}
}

func TestPipelineAsk(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1, strings.Repeat("x", 300))
	if _, err := f.pipeline.Process(ctx, 1, false); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	sess := session.New(10)
	answer, chunks, err := f.pipeline.Ask(ctx, 1, "what is this about?", sess)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer == "" {
		t.Error("Ask() returned empty answer")
	}
	if len(chunks) == 0 {
		t.Error("Ask() returned no supporting chunks")
	}

	turns := sess.Turns()
	if len(turns) != 2 {
		t.Fatalf("session has %d turns, want 2", len(turns))
	}
	if turns[0].Role != session.RoleUser || turns[1].Role != session.RoleAssistant {
		t.Errorf("session turns = %+v, want user then assistant", turns)
	}
}

func TestPipelineAskScopedToEpisode(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1, strings.Repeat("a", 300))
	f.saveEpisode(t, 2, strings.Repeat("b", 300))
	for _, n := range []int64{1, 2} {
		if _, err := f.pipeline.Process(ctx, n, false); err != nil {
			t.Fatalf("Process(%d) error = %v", n, err)
		}
	}

	_, chunks, err := f.pipeline.Ask(ctx, 2, "anything", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	ep2, _ := f.episodes.Get(ctx, 2)
	for _, chunk := range chunks {
		if chunk.EpisodeID != ep2.ID {
			t.Errorf("chunk from episode %d leaked into answer for episode 2", chunk.EpisodeID)
		}
	}
}

func TestPipelineAskValidation(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1, strings.Repeat("a", 300))

	// Unprocessed episode.
	if _, _, err := f.pipeline.Ask(ctx, 1, "question", nil); !errors.Is(err, ErrNotProcessed) {
		t.Errorf("Ask(unprocessed) error = %v, want ErrNotProcessed", err)
	}

	// Empty question rejected before any provider call.
	before := f.embedder.callCount()
	if _, _, err := f.pipeline.Ask(ctx, 1, "  ", nil); !errors.Is(err, ErrValidation) {
		t.Errorf("Ask(blank) error = %v, want ErrValidation", err)
	}
	if f.embedder.callCount() != before {
		t.Error("blank question reached the embedder")
	}

	// Unknown episode.
	if _, _, err := f.pipeline.Ask(ctx, 99, "question", nil); !errors.Is(err, episode.ErrNotFound) {
		t.Errorf("Ask(unknown) error = %v, want episode.ErrNotFound", err)
	}
}

func TestPipelineSummaryCached(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1, strings.Repeat("a", 300))
	if _, err := f.pipeline.Process(ctx, 1, false); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	first, err := f.pipeline.Summary(ctx, 1)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	second, err := f.pipeline.Summary(ctx, 1)
	if err != nil {
		t.Fatalf("second Summary() error = %v", err)
	}
	if first != second {
		t.Errorf("cached summary differs: %q vs %q", first, second)
	}
	if f.generator.summarizeCalls != 1 {
		t.Errorf("Summarize called %d times, want 1", f.generator.summarizeCalls)
	}
}

func TestPipelineSummaryRequiresProcessed(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1, strings.Repeat("a", 300))

	if _, err := f.pipeline.Summary(ctx, 1); !errors.Is(err, ErrNotProcessed) {
		t.Errorf("Summary(unprocessed) error = %v, want ErrNotProcessed", err)
	}
}

func TestPipelineStatus(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.saveEpisode(t, 1, strings.Repeat("a", 300))

	status, err := f.pipeline.Status(ctx, 1)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != StateUnprocessed {
		t.Errorf("state = %q, want %q", status.State, StateUnprocessed)
	}

	if _, err := f.pipeline.Process(ctx, 1, false); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	status, err = f.pipeline.Status(ctx, 1)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.State != StateProcessed || status.Chunks == 0 {
		t.Errorf("status = %+v, want processed with chunk count", status)
	}

	if _, err := f.pipeline.Status(ctx, 99); !errors.Is(err, episode.ErrNotFound) {
		t.Errorf("Status(unknown) error = %v, want episode.ErrNotFound", err)
	}
}
