package episode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/podrag/internal/log"
)

// PostgresStore stores episodes in the episodes table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresStore creates an episode store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger log.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "episode_store")}, nil
}

const saveEpisodeSQL = `
INSERT INTO episodes (episode_number, title, url, transcript, published_date)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (episode_number) DO UPDATE SET
    title          = EXCLUDED.title,
    url            = EXCLUDED.url,
    transcript     = CASE WHEN EXCLUDED.transcript <> '[]'::jsonb
                          THEN EXCLUDED.transcript
                          ELSE episodes.transcript END,
    published_date = COALESCE(EXCLUDED.published_date, episodes.published_date),
    updated_at     = now()
RETURNING id, processed, created_at, updated_at`

// Save upserts an episode by episode number. An empty transcript never
// overwrites a stored one, and the processed flag is left untouched on
// update. The episode's ID, Processed and timestamps are filled in from
// the stored row.
func (s *PostgresStore) Save(ctx context.Context, ep *Episode) error {
	if ep == nil {
		return errors.New("episode is required")
	}

	transcript, err := json.Marshal(transcriptOrEmpty(ep.Transcript))
	if err != nil {
		return fmt.Errorf("marshaling transcript: %w", err)
	}

	err = s.pool.QueryRow(ctx, saveEpisodeSQL,
		ep.EpisodeNumber, ep.Title, ep.URL, transcript, ep.PublishedDate,
	).Scan(&ep.ID, &ep.Processed, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving episode %d: %w", ep.EpisodeNumber, err)
	}

	s.logger.Debug("saved episode", "episode", ep.EpisodeNumber, "title", ep.Title)
	return nil
}

const episodeColumns = `id, episode_number, title, url, summary, transcript,
    processed, published_date, created_at, updated_at`

// Get returns the episode with the given number, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, episodeNumber int64) (*Episode, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE episode_number = $1`,
		episodeNumber)

	ep, err := scanEpisode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: episode %d", ErrNotFound, episodeNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("loading episode %d: %w", episodeNumber, err)
	}
	return ep, nil
}

// List returns all episodes, newest episode number first.
func (s *PostgresStore) List(ctx context.Context) ([]*Episode, error) {
	return s.list(ctx,
		`SELECT `+episodeColumns+` FROM episodes ORDER BY episode_number DESC`)
}

// ListProcessed returns processed episodes, newest episode number first.
func (s *PostgresStore) ListProcessed(ctx context.Context) ([]*Episode, error) {
	return s.list(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE processed ORDER BY episode_number DESC`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]*Episode, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning episode: %w", err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing episodes: %w", err)
	}
	return episodes, nil
}

// SetProcessed flips the processed flag for an episode.
func (s *PostgresStore) SetProcessed(ctx context.Context, episodeNumber int64, processed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE episodes SET processed = $2, updated_at = now() WHERE episode_number = $1`,
		episodeNumber, processed)
	if err != nil {
		return fmt.Errorf("updating processed flag for episode %d: %w", episodeNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: episode %d", ErrNotFound, episodeNumber)
	}
	return nil
}

// SetSummary stores the cached summary for an episode.
func (s *PostgresStore) SetSummary(ctx context.Context, episodeNumber int64, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE episodes SET summary = $2, updated_at = now() WHERE episode_number = $1`,
		episodeNumber, summary)
	if err != nil {
		return fmt.Errorf("updating summary for episode %d: %w", episodeNumber, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: episode %d", ErrNotFound, episodeNumber)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (*Episode, error) {
	var (
		ep         Episode
		transcript []byte
	)
	err := row.Scan(
		&ep.ID, &ep.EpisodeNumber, &ep.Title, &ep.URL, &ep.Summary,
		&transcript, &ep.Processed, &ep.PublishedDate, &ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(transcript, &ep.Transcript); err != nil {
		return nil, fmt.Errorf("unmarshaling transcript: %w", err)
	}
	return &ep, nil
}

func transcriptOrEmpty(segments []string) []string {
	if segments == nil {
		return []string{}
	}
	return segments
}
