package rag

import "errors"

// Sentinel errors. Callers branch on these with errors.Is; the API layer
// maps them to status codes.
var (
	// ErrValidation marks rejected input (empty question, bad top-k,
	// empty transcript). Nothing was sent to a provider or stored.
	ErrValidation = errors.New("validation failed")

	// ErrNotProcessed is returned when a question targets an episode
	// whose transcript has not been ingested yet.
	ErrNotProcessed = errors.New("episode not processed")

	// ErrAlreadyRunning is returned when ingestion is requested for an
	// episode that is already mid-ingestion.
	ErrAlreadyRunning = errors.New("ingestion already running")

	// ErrEmbeddingProvider wraps failures from the embedding model.
	ErrEmbeddingProvider = errors.New("embedding provider failure")

	// ErrGenerationProvider wraps failures from the chat model.
	ErrGenerationProvider = errors.New("generation provider failure")

	// ErrStorage wraps chunk store failures.
	ErrStorage = errors.New("storage failure")
)
