// Package app wires the application together: configuration, storage,
// model providers and the RAG pipeline. Setup builds the dependency
// graph; Close tears it down in reverse order.
package app

import (
	"context"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/podrag/internal/config"
	"github.com/koopa0/podrag/internal/episode"
	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/rag"
	"github.com/koopa0/podrag/internal/scraper"
	"github.com/koopa0/podrag/internal/session"
)

// EpisodeSource is the part of the scraper the sync flow needs.
type EpisodeSource interface {
	DiscoverEpisodes(ctx context.Context) ([]scraper.EpisodeRef, error)
	FetchDetails(ctx context.Context, episodeURL string) (*scraper.EpisodeDetails, error)
}

// App is the application container. Pool is nil when running in
// memory-only mode.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool
	Genkit   *genkit.Genkit
	Embedder rag.Embedder

	Episodes episode.Store
	Chunks   rag.ChunkStore
	Pipeline *rag.Pipeline
	Scraper  EpisodeSource
	Sessions *session.Manager

	dbCleanup   func()
	otelCleanup func()
}

// Close releases resources in reverse initialization order. Safe to
// call on a partially initialized App.
func (a *App) Close() error {
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.dbCleanup = nil
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}
	return nil
}

// Ready reports whether the storage backend is reachable. In memory
// mode there is nothing to probe.
func (a *App) Ready(ctx context.Context) error {
	if a.Pool == nil {
		return nil
	}
	return a.Pool.Ping(ctx)
}
