package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/koopa0/podrag/internal/episode"
	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/rag"
)

// EpisodeHandler serves episode listing, ingestion and summaries.
type EpisodeHandler struct {
	pipeline *rag.Pipeline
	episodes episode.Store
	logger   log.Logger
}

// NewEpisodeHandler creates an episode handler.
func NewEpisodeHandler(pipeline *rag.Pipeline, episodes episode.Store, logger log.Logger) *EpisodeHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &EpisodeHandler{pipeline: pipeline, episodes: episodes, logger: logger}
}

// RegisterRoutes registers episode routes on the given mux.
func (h *EpisodeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/episodes", h.list)
	mux.HandleFunc("POST /api/episodes/{number}/process", h.process)
	mux.HandleFunc("GET /api/episodes/{number}/status", h.status)
	mux.HandleFunc("GET /api/episodes/{number}/summary", h.summary)
}

// EpisodeResponse is one episode in the listing.
type EpisodeResponse struct {
	EpisodeNumber int64      `json:"episode_number"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Processed     bool       `json:"processed"`
	HasTranscript bool       `json:"has_transcript"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
}

func (h *EpisodeHandler) list(w http.ResponseWriter, r *http.Request) {
	episodes, err := h.episodes.List(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]EpisodeResponse, 0, len(episodes))
	for _, ep := range episodes {
		out = append(out, EpisodeResponse{
			EpisodeNumber: ep.EpisodeNumber,
			Title:         ep.Title,
			URL:           ep.URL,
			Processed:     ep.Processed,
			HasTranscript: ep.HasTranscript(),
			PublishedDate: ep.PublishedDate,
		})
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"episodes": out})
}

func (h *EpisodeHandler) process(w http.ResponseWriter, r *http.Request) {
	number, ok := episodeNumber(w, r, h.logger)
	if !ok {
		return
	}
	reprocess := r.URL.Query().Get("reprocess") == "true"

	status, err := h.pipeline.Process(r.Context(), number, reprocess)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, status)
}

func (h *EpisodeHandler) status(w http.ResponseWriter, r *http.Request) {
	number, ok := episodeNumber(w, r, h.logger)
	if !ok {
		return
	}

	status, err := h.pipeline.Status(r.Context(), number)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, status)
}

// SummaryResponse carries an episode summary.
type SummaryResponse struct {
	EpisodeNumber int64  `json:"episode_number"`
	Summary       string `json:"summary"`
}

func (h *EpisodeHandler) summary(w http.ResponseWriter, r *http.Request) {
	number, ok := episodeNumber(w, r, h.logger)
	if !ok {
		return
	}

	summary, err := h.pipeline.Summary(r.Context(), number)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, SummaryResponse{EpisodeNumber: number, Summary: summary})
}

// episodeNumber parses the {number} path segment, writing a 400 on
// malformed input.
func episodeNumber(w http.ResponseWriter, r *http.Request, logger log.Logger) (int64, bool) {
	raw := r.PathValue("number")
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || number < 1 {
		writeError(w, logger, http.StatusBadRequest, "validation_failed",
			"episode number must be a positive integer")
		return 0, false
	}
	return number, true
}
