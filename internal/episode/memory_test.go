package episode

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ep := &Episode{
		EpisodeNumber: 42,
		Title:         "Episode 42",
		URL:           "https://example.com/podcast/42",
		Transcript:    []string{"hello", "world"},
	}
	if err := store.Save(ctx, ep); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ep.ID == 0 {
		t.Error("Save() did not assign an ID")
	}

	got, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Episode 42" || len(got.Transcript) != 2 {
		t.Errorf("Get() = %+v, want saved episode", got)
	}
	if got.Processed {
		t.Error("new episode should not be processed")
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSaveUpsertKeepsTranscriptAndFlag(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := &Episode{
		EpisodeNumber: 7,
		Title:         "Original",
		Transcript:    []string{"segment one", "segment two"},
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.SetProcessed(ctx, 7, true); err != nil {
		t.Fatalf("SetProcessed() error = %v", err)
	}

	// Re-scraping the directory yields metadata without a transcript.
	update := &Episode{EpisodeNumber: 7, Title: "Updated title"}
	if err := store.Save(ctx, update); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if update.ID != first.ID {
		t.Errorf("upsert assigned new ID %d, want %d", update.ID, first.ID)
	}

	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Updated title" {
		t.Errorf("title = %q, want %q", got.Title, "Updated title")
	}
	if len(got.Transcript) != 2 {
		t.Errorf("transcript was cleared by metadata-only save: %v", got.Transcript)
	}
	if !got.Processed {
		t.Error("processed flag was cleared by save")
	}
}

func TestMemoryStoreListOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, n := range []int64{3, 1, 2} {
		if err := store.Save(ctx, &Episode{EpisodeNumber: n}); err != nil {
			t.Fatalf("Save(%d) error = %v", n, err)
		}
	}

	episodes, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("List() returned %d episodes, want 3", len(episodes))
	}
	for i, want := range []int64{3, 2, 1} {
		if episodes[i].EpisodeNumber != want {
			t.Errorf("List()[%d].EpisodeNumber = %d, want %d", i, episodes[i].EpisodeNumber, want)
		}
	}
}

func TestMemoryStoreListProcessed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for n := int64(1); n <= 3; n++ {
		if err := store.Save(ctx, &Episode{EpisodeNumber: n}); err != nil {
			t.Fatalf("Save(%d) error = %v", n, err)
		}
	}
	if err := store.SetProcessed(ctx, 2, true); err != nil {
		t.Fatalf("SetProcessed() error = %v", err)
	}

	processed, err := store.ListProcessed(ctx)
	if err != nil {
		t.Fatalf("ListProcessed() error = %v", err)
	}
	if len(processed) != 1 || processed[0].EpisodeNumber != 2 {
		t.Errorf("ListProcessed() = %v, want only episode 2", processed)
	}
}

func TestMemoryStoreSetSummary(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Save(ctx, &Episode{EpisodeNumber: 5}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.SetSummary(ctx, 5, "a summary"); err != nil {
		t.Fatalf("SetSummary() error = %v", err)
	}

	got, err := store.Get(ctx, 5)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Summary == nil || *got.Summary != "a summary" {
		t.Errorf("summary = %v, want %q", got.Summary, "a summary")
	}

	if err := store.SetSummary(ctx, 99, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetSummary(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Save(ctx, &Episode{EpisodeNumber: 1, Transcript: []string{"a"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, _ := store.Get(ctx, 1)
	got.Title = "mutated"
	got.Transcript[0] = "mutated"
	got.PublishedDate = &time.Time{}

	fresh, _ := store.Get(ctx, 1)
	if fresh.Title == "mutated" || fresh.Transcript[0] == "mutated" {
		t.Error("Get() returned a reference to internal state")
	}
}

func TestEpisodeHasTranscript(t *testing.T) {
	if (&Episode{}).HasTranscript() {
		t.Error("empty episode should not have a transcript")
	}
	if (&Episode{Transcript: []string{"", ""}}).HasTranscript() {
		t.Error("blank segments should not count as a transcript")
	}
	if !(&Episode{Transcript: []string{"", "text"}}).HasTranscript() {
		t.Error("episode with a non-empty segment should have a transcript")
	}
}
