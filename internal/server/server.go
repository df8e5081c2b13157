// Package server exposes the dataset over a read-only JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mathmine/internal/export"
	"mathmine/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Store is the part of the dataset store the API reads.
type Store interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListPapers(ctx context.Context, filter store.PaperFilter) ([]store.Paper, error)
	ListTheorems(ctx context.Context, filter store.TheoremFilter) ([]store.Theorem, error)
	GetTheorem(ctx context.Context, id int64) (*store.Theorem, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the API.
type Server struct {
	store  Store
	logger *zap.Logger
	router *mux.Router
	server *http.Server
}

// New builds a server and its routes.
func New(st Store, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: st, logger: logger, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/papers", s.handlePapers).Methods(http.MethodGet)
	api.HandleFunc("/theorems", s.handleTheorems).Methods(http.MethodGet)
	api.HandleFunc("/theorems/{id:[0-9]+}", s.handleTheorem).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.handleRuns).Methods(http.MethodGet)
	api.HandleFunc("/export.jsonl", s.handleExportJSONL).Methods(http.MethodGet)
	api.HandleFunc("/export.parquet", s.handleExportParquet).Methods(http.MethodGet)
	s.router.Use(s.loggingMiddleware)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	papers, err := s.store.ListPapers(r.Context(), store.PaperFilter{
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": nonNil(papers)})
}

func (s *Server) handleTheorems(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	theorems, err := s.store.ListTheorems(r.Context(), store.TheoremFilter{
		PaperLink: q.Get("paper"),
		RunID:     q.Get("run"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"theorems": nonNil(theorems),
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleTheorem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid theorem id")
		return
	}
	theorem, err := s.store.GetTheorem(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, theorem)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, _, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs)})
}

func (s *Server) handleExportJSONL(w http.ResponseWriter, r *http.Request) {
	theorems, err := s.store.ListTheorems(r.Context(), store.TheoremFilter{RunID: r.URL.Query().Get("run")})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := export.WriteJSONL(w, theorems); err != nil {
		s.logger.Warn("jsonl export interrupted", zap.Error(err))
	}
}

func (s *Server) handleExportParquet(w http.ResponseWriter, r *http.Request) {
	theorems, err := s.store.ListTheorems(r.Context(), store.TheoremFilter{RunID: r.URL.Query().Get("run")})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="theorems.parquet"`)
	if err := export.WriteParquet(w, theorems); err != nil {
		s.logger.Warn("parquet export interrupted", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// pagination reads limit and offset. limit defaults to defaultPageSize and
// is capped at maxPageSize.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	limit = min(limit, maxPageSize)
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
