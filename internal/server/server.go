// Package server exposes the watcher's read API over HTTP: the activity
// feed, queue and token views, archive statistics, scheduler control and
// a websocket stream of live activity.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"queue-market-watch/internal/detect"
	"queue-market-watch/internal/observability"
	"queue-market-watch/internal/scheduler"
	"queue-market-watch/internal/storage"
)

// Options configures the Server.
type Options struct {
	// Engine is the detection engine serving reads. Required.
	Engine *detect.Engine

	// Schedulers are the pausable consumer contexts, addressed by name
	// in the control endpoints.
	Schedulers []*scheduler.Scheduler

	// Archive backs the /v1/stats endpoint. Optional; without it the
	// endpoint reports 501.
	Archive storage.ArchiveStore

	// Hub streams live activity to websocket clients. Optional; without
	// it /ws reports 501.
	Hub *Hub

	// Logger for operational messages. Defaults to stderr.
	Logger *log.Logger

	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// Server is the HTTP read API.
type Server struct {
	engine     *detect.Engine
	schedulers map[string]*scheduler.Scheduler
	archive    storage.ArchiveStore
	hub        *Hub
	logger     *log.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP API server.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if opts.Addr == "" {
		return nil, errors.New("addr is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}

	schedulers := make(map[string]*scheduler.Scheduler, len(opts.Schedulers))
	for _, s := range opts.Schedulers {
		schedulers[s.Name()] = s
	}

	s := &Server{
		engine:     opts.Engine,
		schedulers: schedulers,
		archive:    opts.Archive,
		hub:        opts.Hub,
		logger:     logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/activities", s.handleActivities).Methods(http.MethodGet)
	api.HandleFunc("/queues", s.handleQueues).Methods(http.MethodGet)
	api.HandleFunc("/queues/{id:[0-9]+}/tokens", s.handleQueueTokens).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/scheduler/{name}/pause", s.handleSchedulerPause).Methods(http.MethodPost)
	api.HandleFunc("/scheduler/{name}/resume", s.handleSchedulerResume).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains connections and closes the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	scheds := make(map[string]string, len(s.schedulers))
	for name, sch := range s.schedulers {
		scheds[name] = sch.State().String()
	}

	status := map[string]interface{}{
		"queues":     len(s.engine.Queues()),
		"schedulers": scheds,
	}
	if s.hub != nil {
		status["ws_clients"] = s.hub.ClientCount()
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := s.engine.History(r.Context())
	if err != nil {
		s.logger.Printf("history: %v", err)
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit < len(acts) {
			acts = acts[:limit]
		}
	}

	s.writeJSON(w, http.StatusOK, acts)
}

func (s *Server) handleQueues(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Queues())
}

func (s *Server) handleQueueTokens(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid queue id")
		return
	}

	snap, ok := s.engine.Snapshot(uint32(id))
	if !ok {
		s.writeError(w, http.StatusNotFound, "queue not observed")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotImplemented, "archive not configured")
		return
	}

	counts, err := s.archive.CountByKind(r.Context())
	if err != nil {
		s.logger.Printf("stats: %v", err)
		s.writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

func (s *Server) schedulerByName(w http.ResponseWriter, r *http.Request) (*scheduler.Scheduler, bool) {
	name := mux.Vars(r)["name"]
	sch, ok := s.schedulers[name]
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown scheduler")
		return nil, false
	}
	return sch, true
}

func (s *Server) handleSchedulerPause(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.schedulerByName(w, r)
	if !ok {
		return
	}
	sch.Pause()
	s.writeJSON(w, http.StatusOK, map[string]string{"state": sch.State().String()})
}

func (s *Server) handleSchedulerResume(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.schedulerByName(w, r)
	if !ok {
		return
	}
	sch.Resume()
	s.writeJSON(w, http.StatusOK, map[string]string{"state": sch.State().String()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusNotImplemented, "live feed not configured")
		return
	}
	s.hub.HandleWS(w, r)
}
