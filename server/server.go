// Package server exposes lecture ingestion, question answering and
// summaries over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lectureRAG/core"
	"lectureRAG/processors"
	"lectureRAG/storage"
)

// maxBodyBytes bounds JSON request bodies; media is passed by path or URL.
const maxBodyBytes = 1 << 20

// LectureService is the lifecycle surface used by the handlers.
type LectureService interface {
	IngestVideo(ctx context.Context, path string, opts processors.IngestOptions) (*core.IngestResult, error)
	IngestAudio(ctx context.Context, path string, opts processors.IngestOptions) (*core.IngestResult, error)
	IngestURL(ctx context.Context, rawURL string, opts processors.IngestOptions) (*core.IngestResult, error)
	Delete(ctx context.Context, title string) (*core.DeleteResult, error)
	Reindex(ctx context.Context, title string) (*core.IngestResult, error)
	List(ctx context.Context) ([]core.LectureInfo, error)
}

type QueryService interface {
	Ask(ctx context.Context, question, title string) (*core.Answer, error)
}

type SummaryService interface {
	Summarize(ctx context.Context, title string) (*core.LectureSummary, error)
}

type Deps struct {
	Lectures   LectureService
	Answerer   QueryService
	Summarizer SummaryService
	Store      storage.VectorStore
	Metrics    *core.Metrics
	Logger     *slog.Logger
}

// Server 聚合所有 HTTP 处理器
type Server struct {
	lectures   LectureService
	answerer   QueryService
	summarizer SummaryService
	store      storage.VectorStore
	metrics    *core.Metrics
	log        *slog.Logger
}

func New(d Deps) *Server {
	s := &Server{
		lectures:   d.Lectures,
		answerer:   d.Answerer,
		summarizer: d.Summarizer,
		store:      d.Store,
		metrics:    d.Metrics,
		log:        d.Logger,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/lectures", func(r chi.Router) {
		r.Get("/", s.listLectures)
		r.Post("/", s.ingestLecture)
		r.Delete("/{title}", s.deleteLecture)
		r.Post("/{title}/reindex", s.reindexLecture)
		r.Post("/{title}/summary", s.summarizeLecture)
	})
	r.Post("/query", s.query)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method_not_allowed", Message: "method not allowed"})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
