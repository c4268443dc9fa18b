package episode

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory episode store used when no database is
// configured. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	episodes map[int64]*Episode // keyed by episode number
	nextID   int64
}

// NewMemoryStore creates an empty in-memory episode store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{episodes: make(map[int64]*Episode), nextID: 1}
}

// Save upserts an episode by episode number, mirroring the SQL store's
// rules: empty transcripts never clear stored ones, and the processed
// flag survives updates.
func (s *MemoryStore) Save(_ context.Context, ep *Episode) error {
	if ep == nil {
		return fmt.Errorf("episode is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.episodes[ep.EpisodeNumber]
	if !ok {
		stored := cloneEpisode(ep)
		stored.ID = s.nextID
		s.nextID++
		stored.Processed = false
		stored.Summary = nil
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.episodes[ep.EpisodeNumber] = stored
		applyStored(ep, stored)
		return nil
	}

	existing.Title = ep.Title
	existing.URL = ep.URL
	if len(ep.Transcript) > 0 {
		existing.Transcript = append([]string(nil), ep.Transcript...)
	}
	if ep.PublishedDate != nil {
		d := *ep.PublishedDate
		existing.PublishedDate = &d
	}
	existing.UpdatedAt = now
	applyStored(ep, existing)
	return nil
}

// Get returns the episode with the given number, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, episodeNumber int64) (*Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.episodes[episodeNumber]
	if !ok {
		return nil, fmt.Errorf("%w: episode %d", ErrNotFound, episodeNumber)
	}
	return cloneEpisode(ep), nil
}

// List returns all episodes, newest episode number first.
func (s *MemoryStore) List(_ context.Context) ([]*Episode, error) {
	return s.list(func(*Episode) bool { return true }), nil
}

// ListProcessed returns processed episodes, newest episode number first.
func (s *MemoryStore) ListProcessed(_ context.Context) ([]*Episode, error) {
	return s.list(func(ep *Episode) bool { return ep.Processed }), nil
}

func (s *MemoryStore) list(keep func(*Episode) bool) []*Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var episodes []*Episode
	for _, ep := range s.episodes {
		if keep(ep) {
			episodes = append(episodes, cloneEpisode(ep))
		}
	}
	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].EpisodeNumber > episodes[j].EpisodeNumber
	})
	return episodes
}

// SetProcessed flips the processed flag for an episode.
func (s *MemoryStore) SetProcessed(_ context.Context, episodeNumber int64, processed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.episodes[episodeNumber]
	if !ok {
		return fmt.Errorf("%w: episode %d", ErrNotFound, episodeNumber)
	}
	ep.Processed = processed
	ep.UpdatedAt = time.Now()
	return nil
}

// SetSummary stores the cached summary for an episode.
func (s *MemoryStore) SetSummary(_ context.Context, episodeNumber int64, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.episodes[episodeNumber]
	if !ok {
		return fmt.Errorf("%w: episode %d", ErrNotFound, episodeNumber)
	}
	ep.Summary = &summary
	ep.UpdatedAt = time.Now()
	return nil
}

func cloneEpisode(ep *Episode) *Episode {
	out := *ep
	out.Transcript = append([]string(nil), ep.Transcript...)
	if ep.Summary != nil {
		v := *ep.Summary
		out.Summary = &v
	}
	if ep.PublishedDate != nil {
		d := *ep.PublishedDate
		out.PublishedDate = &d
	}
	return &out
}

func applyStored(dst, stored *Episode) {
	dst.ID = stored.ID
	dst.Processed = stored.Processed
	dst.CreatedAt = stored.CreatedAt
	dst.UpdatedAt = stored.UpdatedAt
}
