package app

import (
	"context"
	"fmt"

	"github.com/koopa0/podrag/internal/episode"
)

// SyncResult summarizes one scraper run.
type SyncResult struct {
	Discovered int // episode links found on the directory page
	Fetched    int // transcripts downloaded this run
	Failed     int // episode pages that could not be fetched
}

// Sync scrapes the directory page and upserts every discovered episode.
// With fetchTranscripts set it also downloads transcripts for episodes
// that do not have one yet; individual page failures are logged and
// counted but do not abort the run.
func (a *App) Sync(ctx context.Context, fetchTranscripts bool) (SyncResult, error) {
	var result SyncResult

	refs, err := a.Scraper.DiscoverEpisodes(ctx)
	if err != nil {
		return result, fmt.Errorf("discovering episodes: %w", err)
	}
	result.Discovered = len(refs)

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ep := &episode.Episode{
			EpisodeNumber: ref.Number,
			Title:         ref.Title,
			URL:           ref.URL,
		}
		if err := a.Episodes.Save(ctx, ep); err != nil {
			return result, fmt.Errorf("saving episode %d: %w", ref.Number, err)
		}

		if !fetchTranscripts {
			continue
		}

		stored, err := a.Episodes.Get(ctx, ref.Number)
		if err != nil {
			return result, fmt.Errorf("loading episode %d: %w", ref.Number, err)
		}
		if stored.HasTranscript() {
			continue
		}

		details, err := a.Scraper.FetchDetails(ctx, ref.URL)
		if err != nil {
			a.Logger.Warn("fetching episode page failed",
				"episode", ref.Number, "url", ref.URL, "error", err)
			result.Failed++
			continue
		}

		stored.Transcript = details.Transcript
		stored.PublishedDate = details.PublishedDate
		if err := a.Episodes.Save(ctx, stored); err != nil {
			return result, fmt.Errorf("saving transcript for episode %d: %w", ref.Number, err)
		}
		result.Fetched++
	}

	a.Logger.Info("sync complete",
		"discovered", result.Discovered, "fetched", result.Fetched, "failed", result.Failed)
	return result, nil
}
