package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/session"
)

// AnswerRequest carries everything the generator needs to answer one
// question: the retrieved chunks and the conversation so far.
type AnswerRequest struct {
	EpisodeNumber int64
	EpisodeTitle  string
	Question      string
	Chunks        []ScoredChunk
	History       []session.Turn
}

// Generator produces grounded answers and episode summaries.
type Generator interface {
	Answer(ctx context.Context, req AnswerRequest) (string, error)
	Summarize(ctx context.Context, episodeTitle string, chunks []Chunk) (string, error)
}

const answerSystemPrompt = `You are an assistant that answers questions about a podcast episode.
Ground every answer in the transcript excerpts provided in the user message.
If the excerpts do not contain enough information to answer the question,
say so rather than making up information. Do not use knowledge from outside
the excerpts.`

const summarySystemPrompt = `You summarize podcast episodes from transcript excerpts.
Write a concise summary covering the main topics, guests and conclusions.
Use only the provided excerpts.`

const noContextNotice = "(no transcript excerpts matched this question)"

// GenkitGenerator implements Generator on top of a Genkit model.
type GenkitGenerator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
	logger      log.Logger
}

// NewGenkitGenerator creates a generator calling the named model, e.g.
// "googleai/gemini-3-flash-preview".
func NewGenkitGenerator(g *genkit.Genkit, modelName string, temperature float64, logger log.Logger) (*GenkitGenerator, error) {
	if g == nil {
		return nil, errors.New("genkit instance is required")
	}
	if modelName == "" {
		return nil, errors.New("model name is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &GenkitGenerator{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
		logger:      logger.With("component", "generator"),
	}, nil
}

// Answer generates a grounded answer. When no chunks were retrieved the
// prompt says so explicitly, steering the model toward admitting the
// gap instead of inventing content.
func (gen *GenkitGenerator) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	messages := historyMessages(req.History)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(buildAnswerPrompt(req))))

	return gen.generate(ctx, answerSystemPrompt, messages)
}

// Summarize generates an episode summary from its stored chunks.
func (gen *GenkitGenerator) Summarize(ctx context.Context, episodeTitle string, chunks []Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no chunks to summarize", ErrValidation)
	}

	messages := []*ai.Message{
		ai.NewUserMessage(ai.NewTextPart(buildSummaryPrompt(episodeTitle, chunks))),
	}
	return gen.generate(ctx, summarySystemPrompt, messages)
}

func (gen *GenkitGenerator) generate(ctx context.Context, system string, messages []*ai.Message) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(gen.modelName),
		ai.WithSystem(system),
		ai.WithMessages(messages...),
	}
	if gen.temperature > 0 {
		opts = append(opts, ai.WithConfig(&ai.GenerationCommonConfig{Temperature: gen.temperature}))
	}

	resp, err := genkit.Generate(ctx, gen.g, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationProvider, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: model returned empty response", ErrGenerationProvider)
	}

	gen.logger.Debug("generated response", "model", gen.modelName, "length", len(text))
	return text, nil
}

// historyMessages converts session turns to model messages, dropping
// roles the model API does not know.
func historyMessages(turns []session.Turn) []*ai.Message {
	messages := make([]*ai.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case session.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Content)))
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(turn.Content)))
		}
	}
	return messages
}

func buildAnswerPrompt(req AnswerRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Episode %d: %s\n\n", req.EpisodeNumber, req.EpisodeTitle)
	b.WriteString("Transcript excerpts:\n")
	if len(req.Chunks) == 0 {
		b.WriteString(noContextNotice + "\n")
	}
	for i, chunk := range req.Chunks {
		fmt.Fprintf(&b, "--- Excerpt %d ---\n%s\n", i+1, chunk.Content)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", req.Question)
	return b.String()
}

func buildSummaryPrompt(episodeTitle string, chunks []Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Episode: %s\n\nTranscript excerpts:\n", episodeTitle)
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "--- Excerpt %d ---\n%s\n", i+1, chunk.Content)
	}
	b.WriteString("\nSummarize this episode.")
	return b.String()
}
