package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koopa0/podrag/internal/episode"
	"github.com/koopa0/podrag/internal/log"
	"github.com/koopa0/podrag/internal/rag"
	"github.com/koopa0/podrag/internal/session"
)

// writeJSON writes a JSON response with the given status code. If
// encoding fails after WriteHeader the status is already on the wire,
// so the error is only logged.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
	}
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, logger log.Logger, status int, errCode, message string) {
	writeJSON(w, logger, status, ErrorResponse{Error: errCode, Message: message})
}

// writeDomainError maps domain errors to HTTP status codes:
// validation 400, unknown resources 404, state conflicts 409, provider
// failures 502, everything else 500.
func writeDomainError(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, rag.ErrValidation):
		writeError(w, logger, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, episode.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "episode_not_found", err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, rag.ErrNotProcessed):
		writeError(w, logger, http.StatusConflict, "episode_not_processed", err.Error())
	case errors.Is(err, rag.ErrAlreadyRunning):
		writeError(w, logger, http.StatusConflict, "ingestion_running", err.Error())
	case errors.Is(err, rag.ErrEmbeddingProvider), errors.Is(err, rag.ErrGenerationProvider):
		logger.Error("provider failure", "error", err)
		writeError(w, logger, http.StatusBadGateway, "provider_failure", "upstream model provider failed")
	default:
		logger.Error("internal error", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
