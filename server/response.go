package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"lectureRAG/core"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeError maps err to a status code and an error kind name.
func writeError(w http.ResponseWriter, err error) {
	status, kind := Classify(err)
	writeJSON(w, status, ErrorResponse{Error: kind, Message: err.Error()})
}

// Classify returns the HTTP status and error kind name for err.
func Classify(err error) (int, string) {
	if errors.Is(err, core.ErrUpstreamTimeout) {
		return http.StatusGatewayTimeout, "upstream_timeout"
	}
	switch core.KindOf(err) {
	case core.ErrInvalidInput:
		return http.StatusBadRequest, "invalid_input"
	case core.ErrEmptyKnowledgeBase:
		return http.StatusNotFound, "empty_knowledge_base"
	case core.ErrNoResults:
		return http.StatusNotFound, "no_results"
	case core.ErrTranscriptNotFound:
		return http.StatusNotFound, "transcript_not_found"
	case core.ErrDuplicateLecture:
		return http.StatusConflict, "duplicate_lecture"
	case core.ErrDuplicateID:
		return http.StatusConflict, "duplicate_id"
	case core.ErrTranscription:
		return http.StatusBadGateway, "transcription_failure"
	case core.ErrEmbedding:
		return http.StatusBadGateway, "embedding_failure"
	case core.ErrCompletion:
		return http.StatusBadGateway, "completion_failure"
	case core.ErrDownload:
		return http.StatusBadGateway, "download_failure"
	case core.ErrVectorStore:
		return http.StatusBadGateway, "vector_store_failure"
	case core.ErrTranscode:
		return http.StatusInternalServerError, "transcode_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
