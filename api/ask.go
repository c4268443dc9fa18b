package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/rag"
	"github.com/koopa0/podrag/internal/session"
)

// maxAskBodyBytes bounds the request body for the ask endpoint.
const maxAskBodyBytes = 64 * 1024

// AskHandler serves chat sessions and questions.
type AskHandler struct {
	pipeline *rag.Pipeline
	sessions *session.Manager
	logger   log.Logger
}

// NewAskHandler creates an ask handler.
func NewAskHandler(pipeline *rag.Pipeline, sessions *session.Manager, logger log.Logger) *AskHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &AskHandler{pipeline: pipeline, sessions: sessions, logger: logger}
}

// RegisterRoutes registers session and ask routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.deleteSession)
	mux.HandleFunc("POST /api/ask", h.ask)
}

// SessionResponse is the created-session body.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

func (h *AskHandler) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := h.sessions.Create()
	writeJSON(w, h.logger, http.StatusCreated, SessionResponse{SessionID: sess.ID.String()})
}

func (h *AskHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "validation_failed", "malformed session id")
		return
	}
	h.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// AskRequest is a question about one episode. SessionID is optional;
// without it the question is answered statelessly.
type AskRequest struct {
	EpisodeNumber int64  `json:"episode_number"`
	Question      string `json:"question"`
	SessionID     string `json:"session_id,omitempty"`
}

// SourceChunk identifies one retrieved chunk backing an answer.
type SourceChunk struct {
	ChunkIndex int     `json:"chunk_index"`
	Similarity float32 `json:"similarity"`
}

// AskResponse is the grounded answer with its supporting chunks.
type AskResponse struct {
	EpisodeNumber int64         `json:"episode_number"`
	Answer        string        `json:"answer"`
	Sources       []SourceChunk `json:"sources"`
	SessionID     string        `json:"session_id,omitempty"`
}

func (h *AskHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	body := http.MaxBytesReader(w, r.Body, maxAskBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "validation_failed", "malformed JSON body")
		return
	}
	if req.EpisodeNumber < 1 {
		writeError(w, h.logger, http.StatusBadRequest, "validation_failed",
			"episode_number must be a positive integer")
		return
	}

	var sess *session.Session
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "validation_failed", "malformed session id")
			return
		}
		sess, err = h.sessions.Get(id)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
	}

	answer, chunks, err := h.pipeline.Ask(r.Context(), req.EpisodeNumber, req.Question, sess)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	sources := make([]SourceChunk, 0, len(chunks))
	for _, chunk := range chunks {
		sources = append(sources, SourceChunk{ChunkIndex: chunk.Index, Similarity: chunk.Similarity})
	}
	writeJSON(w, h.logger, http.StatusOK, AskResponse{
		EpisodeNumber: req.EpisodeNumber,
		Answer:        answer,
		Sources:       sources,
		SessionID:     req.SessionID,
	})
}
