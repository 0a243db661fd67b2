package server

import (
	"context"
	"net/http"
	"time"

	"lectureRAG/storage"
)

// HealthResponse reports whether the vector store answers.
type HealthResponse struct {
	Status    string `json:"status"`
	Vectors   int    `json:"vectors"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// health 健康检查：向量存储可达并返回记录数
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Timestamp: time.Now().Unix()}
	n, err := s.store.Count(ctx, storage.Filter{})
	if err != nil {
		s.log.Warn("Health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Vectors = n
	writeJSON(w, http.StatusOK, resp)
}
