// Package episode manages podcast episode records: metadata scraped from
// the podcast directory, raw transcripts, cached summaries and the
// processed flag that gates retrieval.
package episode

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no episode exists for the requested number.
var ErrNotFound = errors.New("episode not found")

// Episode is a single podcast episode. EpisodeNumber is the natural key
// used by the scraper and the API; ID is the storage surrogate key that
// chunk rows reference.
type Episode struct {
	ID            int64
	EpisodeNumber int64
	Title         string
	URL           string
	Summary       *string
	Transcript    []string
	Processed     bool
	PublishedDate *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasTranscript reports whether any non-empty transcript segment exists.
func (e *Episode) HasTranscript() bool {
	for _, seg := range e.Transcript {
		if seg != "" {
			return true
		}
	}
	return false
}

// Store persists episodes. Save upserts by episode number and never
// clears an already stored transcript with an empty one, so re-running
// the scraper on the directory page is safe.
type Store interface {
	Save(ctx context.Context, ep *Episode) error
	Get(ctx context.Context, episodeNumber int64) (*Episode, error)
	List(ctx context.Context) ([]*Episode, error)
	ListProcessed(ctx context.Context) ([]*Episode, error)
	SetProcessed(ctx context.Context, episodeNumber int64, processed bool) error
	SetSummary(ctx context.Context, episodeNumber int64, summary string) error
}
