package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"lectureRAG/core"
	"lectureRAG/processors"
)

// IngestRequest ingests either a local media file or a remote video.
type IngestRequest struct {
	Path     string `json:"path,omitempty"`
	Kind     string `json:"kind,omitempty"` // "video" (default) or "audio"
	URL      string `json:"url,omitempty"`
	Sequence *int   `json:"sequence,omitempty"`
}

type QueryRequest struct {
	Question string `json:"question"`
	Lecture  string `json:"lecture,omitempty"`
}

type ListResponse struct {
	Lectures []core.LectureInfo `json:"lectures"`
}

// decodeJSON reads a bounded JSON body; unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: request body: %v", core.ErrInvalidInput, err)
	}
	return nil
}

// titleParam returns the decoded {title} path segment. chi matches on
// RawPath when it is set (e.g. an escaped slash), leaving the segment encoded;
// otherwise the segment is already decoded and must not be unescaped again.
func titleParam(r *http.Request) string {
	raw := chi.URLParam(r, "title")
	if r.URL.RawPath == "" {
		return raw
	}
	if t, err := url.PathUnescape(raw); err == nil {
		return t
	}
	return raw
}

func (s *Server) listLectures(w http.ResponseWriter, r *http.Request) {
	lectures, err := s.lectures.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Lectures: lectures})
}

// ingestLecture 同步执行完整导入流程，完成后返回结果
func (s *Server) ingestLecture(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Path, req.URL = strings.TrimSpace(req.Path), strings.TrimSpace(req.URL)
	if (req.Path == "") == (req.URL == "") {
		writeError(w, fmt.Errorf("%w: exactly one of path or url is required", core.ErrInvalidInput))
		return
	}

	opts := processors.IngestOptions{Sequence: req.Sequence}
	var (
		res *core.IngestResult
		err error
	)
	switch {
	case req.URL != "":
		res, err = s.lectures.IngestURL(r.Context(), req.URL, opts)
	case req.Kind == "" || req.Kind == core.MediaVideo:
		res, err = s.lectures.IngestVideo(r.Context(), req.Path, opts)
	case req.Kind == core.MediaAudio:
		res, err = s.lectures.IngestAudio(r.Context(), req.Path, opts)
	default:
		err = fmt.Errorf("%w: kind must be %q or %q, got %q", core.ErrInvalidInput, core.MediaVideo, core.MediaAudio, req.Kind)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) deleteLecture(w http.ResponseWriter, r *http.Request) {
	res, err := s.lectures.Delete(r.Context(), titleParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) reindexLecture(w http.ResponseWriter, r *http.Request) {
	res, err := s.lectures.Reindex(r.Context(), titleParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) summarizeLecture(w http.ResponseWriter, r *http.Request) {
	sum, err := s.summarizer.Summarize(r.Context(), titleParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ans, err := s.answerer.Ask(r.Context(), req.Question, req.Lecture)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
