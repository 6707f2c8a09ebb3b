package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"db-sync/internal/scheduler"
	"db-sync/internal/state"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gookit/slog"
)

// Jobs is the read side of the scheduler.
type Jobs interface {
	Entries() []scheduler.Entry
}

// Server exposes scheduler and state store status over HTTP.
type Server struct {
	jobs  Jobs
	store state.Store
	http  *http.Server
}

func New(addr string, jobs Jobs, store state.Store) *Server {
	s := &Server{jobs: jobs, store: store}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router wires the status endpoints.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Get("/jobs", s.listJobs)
	r.Get("/runs", s.listRuns)
	r.Get("/checkpoints", s.listCheckpoints)
	r.Get("/watermarks", s.listWatermarks)
	return r
}

// ListenAndServe blocks until ctx is done, then shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		slog.Infof("status server listening on %s", s.http.Addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobs.Entries())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Errorf("list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read run history")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

func (s *Server) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps, err := s.store.ListCheckpoints(r.Context())
	if err != nil {
		slog.Errorf("list checkpoints: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read checkpoints")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cps))
}

func (s *Server) listWatermarks(w http.ResponseWriter, r *http.Request) {
	wms, err := s.store.ListWatermarks(r.Context())
	if err != nil {
		slog.Errorf("list watermarks: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read watermarks")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(wms))
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
