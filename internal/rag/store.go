package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/podrag/internal/log"
)

// Chunk is one transcript window with its embedding.
type Chunk struct {
	EpisodeID int64
	Index     int
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// ScoredChunk is a search hit. Similarity is cosine similarity in
// [-1, 1], higher is closer.
type ScoredChunk struct {
	Chunk
	Similarity float32
}

// ChunkStore persists chunks and answers similarity queries.
//
// ReplaceChunks atomically swaps an episode's chunk set: readers never
// observe a mix of old and new chunks. Search with WithEpisode applies
// the episode filter before ranking, so results from other episodes can
// never displace matches from the requested one.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, episodeID int64, chunks []Chunk) error
	Search(ctx context.Context, query []float32, opts ...SearchOption) ([]ScoredChunk, error)
	ListChunks(ctx context.Context, episodeID int64, limit int) ([]Chunk, error)
	DeleteChunks(ctx context.Context, episodeID int64) error
	CountChunks(ctx context.Context, episodeID int64) (int, error)
}

const (
	defaultSearchTopK    = 4
	defaultSearchTimeout = 10 * time.Second
)

type searchConfig struct {
	topK       int
	episodeID  int64
	hasEpisode bool
	timeout    time.Duration
}

// SearchOption configures a similarity search.
type SearchOption func(*searchConfig)

// WithTopK sets the maximum number of results.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) { c.topK = k }
}

// WithEpisode restricts results to a single episode. The filter is a
// hard predicate, not a ranking boost.
func WithEpisode(episodeID int64) SearchOption {
	return func(c *searchConfig) {
		c.episodeID = episodeID
		c.hasEpisode = true
	}
}

// WithSearchTimeout bounds how long a search may run.
func WithSearchTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) (searchConfig, error) {
	cfg := searchConfig{topK: defaultSearchTopK, timeout: defaultSearchTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.topK < 1 {
		return cfg, fmt.Errorf("%w: top-k must be at least 1, got %d", ErrValidation, cfg.topK)
	}
	return cfg, nil
}

// PostgresChunkStore stores chunks in the episode_chunks table with
// pgvector embeddings.
type PostgresChunkStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresChunkStore creates a chunk store backed by the given pool.
// The pool's connections must have pgvector types registered.
func NewPostgresChunkStore(pool *pgxpool.Pool, logger log.Logger) (*PostgresChunkStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresChunkStore{pool: pool, logger: logger.With("component", "chunk_store")}, nil
}

// ReplaceChunks swaps the episode's chunks inside one transaction. A
// transaction-scoped advisory lock on the episode ID serializes
// concurrent ingestion of the same episode across processes.
func (s *PostgresChunkStore) ReplaceChunks(ctx context.Context, episodeID int64, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, episodeID); err != nil {
		return fmt.Errorf("%w: acquiring episode lock: %w", ErrStorage, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM episode_chunks WHERE episode_id = $1`, episodeID); err != nil {
		return fmt.Errorf("%w: deleting old chunks: %w", ErrStorage, err)
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		metadata, err := json.Marshal(metadataOrEmpty(chunk.Metadata))
		if err != nil {
			return fmt.Errorf("%w: marshaling chunk %d metadata: %w", ErrStorage, chunk.Index, err)
		}
		vec := pgvector.NewVector(chunk.Embedding)
		batch.Queue(
			`INSERT INTO episode_chunks (episode_id, chunk_index, content, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			episodeID, chunk.Index, chunk.Content, metadata, vec)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: inserting chunks: %w", ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing chunks: %w", ErrStorage, err)
	}

	s.logger.Debug("replaced chunks", "episode_id", episodeID, "count", len(chunks))
	return nil
}

// Search runs a cosine similarity query. Ties on similarity break on
// chunk order so results are stable.
func (s *PostgresChunkStore) Search(ctx context.Context, query []float32, opts ...SearchOption) ([]ScoredChunk, error) {
	cfg, err := buildSearchConfig(opts)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec := pgvector.NewVector(query)
	var rows pgx.Rows
	if cfg.hasEpisode {
		rows, err = s.pool.Query(queryCtx, `
			SELECT episode_id, chunk_index, content, metadata,
			       1 - (embedding <=> $1) AS similarity
			FROM episode_chunks
			WHERE episode_id = $2
			ORDER BY embedding <=> $1, chunk_index
			LIMIT $3`,
			vec, cfg.episodeID, cfg.topK)
	} else {
		rows, err = s.pool.Query(queryCtx, `
			SELECT episode_id, chunk_index, content, metadata,
			       1 - (embedding <=> $1) AS similarity
			FROM episode_chunks
			ORDER BY embedding <=> $1, episode_id, chunk_index
			LIMIT $2`,
			vec, cfg.topK)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %w", ErrStorage, err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var (
			sc       ScoredChunk
			metadata []byte
		)
		if err := rows.Scan(&sc.EpisodeID, &sc.Index, &sc.Content, &metadata, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning search result: %w", ErrStorage, err)
		}
		if err := json.Unmarshal(metadata, &sc.Metadata); err != nil {
			return nil, fmt.Errorf("%w: unmarshaling chunk metadata: %w", ErrStorage, err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: similarity search: %w", ErrStorage, err)
	}
	return results, nil
}

// ListChunks returns up to limit chunks for an episode in chunk order.
// limit <= 0 means no limit. Embeddings are not loaded.
func (s *PostgresChunkStore) ListChunks(ctx context.Context, episodeID int64, limit int) ([]Chunk, error) {
	query := `
		SELECT episode_id, chunk_index, content, metadata
		FROM episode_chunks
		WHERE episode_id = $1
		ORDER BY chunk_index`
	args := []any{episodeID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: listing chunks: %w", ErrStorage, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			chunk    Chunk
			metadata []byte
		)
		if err := rows.Scan(&chunk.EpisodeID, &chunk.Index, &chunk.Content, &metadata); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk: %w", ErrStorage, err)
		}
		if err := json.Unmarshal(metadata, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("%w: unmarshaling chunk metadata: %w", ErrStorage, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing chunks: %w", ErrStorage, err)
	}
	return chunks, nil
}

// DeleteChunks removes all chunks for an episode.
func (s *PostgresChunkStore) DeleteChunks(ctx context.Context, episodeID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM episode_chunks WHERE episode_id = $1`, episodeID); err != nil {
		return fmt.Errorf("%w: deleting chunks: %w", ErrStorage, err)
	}
	return nil
}

// CountChunks returns the number of stored chunks for an episode.
func (s *PostgresChunkStore) CountChunks(ctx context.Context, episodeID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM episode_chunks WHERE episode_id = $1`, episodeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %w", ErrStorage, err)
	}
	return count, nil
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
