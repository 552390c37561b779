// Package httpapi exposes a small read-mostly HTTP view of the
// coordinator next to the worker TCP port: fleet status, the task in
// flight, and a solve trigger mirroring the operator command.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/hashfleet.net/internal/coordinator"
	"gitlab.com/hashfleet.net/internal/coordinator/registry"
	"gitlab.com/hashfleet.net/internal/core/ports/primary"
	"gitlab.com/hashfleet.net/internal/domain"
)

// Server serves the coordinator status API.
type Server struct {
	port        int
	registry    *registry.Registry
	distributor *coordinator.Distributor
	logger      primary.Logger
	router      *mux.Router
	srv         *http.Server
}

// NewServer creates a new status API server
func NewServer(port int, reg *registry.Registry, distributor *coordinator.Distributor, logger primary.Logger) *Server {
	s := &Server{
		port:        port,
		registry:    reg,
		distributor: distributor,
		logger:      logger,
	}
	s.Init()
	return s
}

// Init builds the route table.
func (s *Server) Init() {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/workers", s.handleWorkers).Methods(http.MethodGet)
	r.HandleFunc("/api/task", s.handleTask).Methods(http.MethodGet)
	r.HandleFunc("/api/solve", s.handleSolve).Methods(http.MethodPost)
	s.router = r
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves in a goroutine; errors other than a clean close are fatal
// for the status API only, never for the coordinator.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("Status API listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status API error", "error", err)
		}
	}()
}

// Stop shuts the status API down.
func (s *Server) Stop(ctx context.Context) {
	if s.srv == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("Status API forced to shutdown", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot()
	workers := make([]domain.WorkerInfo, 0, len(snapshot))
	for _, h := range snapshot {
		workers = append(workers, h.Info())
	}
	writeJSON(w, http.StatusOK, workers)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task := s.distributor.ActiveTask()
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active task"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Difficulty int `json:"difficulty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.distributor.Solve(r.Context(), body.Difficulty); err != nil {
		s.logger.Error("Failed to start mining via API", "difficulty", body.Difficulty, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, coordinator.ErrTaskActive) || errors.Is(err, coordinator.ErrNoWorkers) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"difficulty": body.Difficulty})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
