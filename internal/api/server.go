// Package api serves the caregiver control surface: episode actions,
// escalation retry, the live event stream and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/episode"
	"github.com/synheart/synheart-seizure/internal/models"
)

// Controller is the slice of the episode machine the API drives.
type Controller interface {
	Snapshot() models.EpisodeSnapshot
	Start() error
	Confirm() error
	Cancel() error
	EndEpisode() error
	SubmitReport(ctx context.Context, checklist models.Checklist) (models.EpisodeSummary, error)
	RetryEscalation() error
}

// FallReporter injects a watch fall into the telemetry stream.
type FallReporter interface {
	ReportFall(ctx context.Context) error
}

// Config holds the server configuration
type Config struct {
	Host  string
	Port  int
	Token string
}

// Handlers are optional read-only endpoints mounted beside the API.
type Handlers struct {
	Metrics   http.Handler
	WebSocket http.Handler
	SSE       http.Handler
}

// Server is the control API server
type Server struct {
	config     Config
	machine    Controller
	falls      FallReporter
	extra      Handlers
	idempotent *IdempotencyStore
	logger     *zap.Logger
	server     *http.Server
	mu         sync.RWMutex
	stats      Stats
}

// Stats holds server statistics
type Stats struct {
	Actions    int
	Reports    int
	Duplicates int
	Rejected   int
}

// NewServer creates a new control server. falls may be nil.
func NewServer(config Config, machine Controller, falls FallReporter, extra Handlers, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:     config,
		machine:    machine,
		falls:      falls,
		extra:      extra,
		idempotent: NewIdempotencyStore(),
		logger:     logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/episode", s.handleSnapshot)
	mux.HandleFunc("POST /v1/episode/start", s.action("start", s.machine.Start))
	mux.HandleFunc("POST /v1/episode/confirm", s.action("confirm", s.machine.Confirm))
	mux.HandleFunc("POST /v1/episode/cancel", s.action("cancel", s.machine.Cancel))
	mux.HandleFunc("POST /v1/episode/end", s.action("end", s.machine.EndEpisode))
	mux.HandleFunc("POST /v1/episode/report", s.auth(s.handleReport))
	mux.HandleFunc("POST /v1/escalation/retry", s.action("retry", s.machine.RetryEscalation))
	mux.HandleFunc("POST /v1/telemetry/fall", s.auth(s.handleFall))
	if s.extra.Metrics != nil {
		mux.Handle("GET /metrics", s.extra.Metrics)
	}
	if s.extra.WebSocket != nil {
		mux.Handle("GET /events", s.extra.WebSocket)
	}
	if s.extra.SSE != nil {
		mux.Handle("GET /events/sse", s.extra.SSE)
	}
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	// no WriteTimeout: /events streams stay open
	s.server = &http.Server{
		Addr:        s.Address(),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("control api listening", zap.String("addr", s.Address()))

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Address returns host:port
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// GetStats returns current server statistics
func (s *Server) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Server) count(f func(*Stats)) {
	s.mu.Lock()
	f(&s.stats)
	s.mu.Unlock()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "synheart-seizure",
		"episode": "/v1/episode",
		"events":  "/events",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.machine.Snapshot())
}

// action wraps a bodiless machine event. Success returns the new snapshot.
func (s *Server) action(name string, fn func() error) http.HandlerFunc {
	return s.auth(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			s.writeMachineError(w, name, err)
			return
		}
		s.count(func(st *Stats) { st.Actions++ })
		s.logger.Info("episode action", zap.String("action", name))
		writeJSON(w, http.StatusOK, s.machine.Snapshot())
	})
}

// ReportResponse is returned by a report and replayed for a repeated key.
type ReportResponse struct {
	Status      string                `json:"status"`
	Duplicate   bool                  `json:"duplicate"`
	Summary     models.EpisodeSummary `json:"summary"`
	Observation models.Observation    `json:"observation"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.writeError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if prev, ok := s.idempotent.Get(key); ok {
			s.count(func(st *Stats) { st.Duplicates++ })
			prev.Duplicate = true
			writeJSON(w, http.StatusOK, prev)
			return
		}
	}

	var checklist models.Checklist
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&checklist); err != nil {
		s.count(func(st *Stats) { st.Rejected++ })
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	summary, err := s.machine.SubmitReport(r.Context(), checklist)
	if err != nil {
		s.writeMachineError(w, "report", err)
		return
	}

	resp := ReportResponse{Status: "ok", Summary: summary, Observation: summary.Observation()}
	if key != "" {
		s.idempotent.Put(key, resp)
	}
	s.count(func(st *Stats) { st.Reports++ })
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFall(w http.ResponseWriter, r *http.Request) {
	if s.falls == nil {
		s.writeError(w, http.StatusNotImplemented, "no telemetry source accepts falls")
		return
	}
	if err := s.falls.ReportFall(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.validateAuth(r) {
			s.count(func(st *Stats) { st.Rejected++ })
			s.writeError(w, http.StatusUnauthorized, "invalid or missing authorization token")
			return
		}
		next(w, r)
	}
}

// validateAuth accepts everything when no token is configured.
func (s *Server) validateAuth(r *http.Request) bool {
	if s.config.Token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return false
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return false
	}

	return parts[1] == s.config.Token
}

func (s *Server) writeMachineError(w http.ResponseWriter, action string, err error) {
	s.count(func(st *Stats) { st.Rejected++ })
	var verr *models.ValidationError
	switch {
	case errors.Is(err, episode.ErrInvalidTransition), errors.Is(err, episode.ErrEscalationRunning):
		s.logger.Debug("action rejected", zap.String("action", action), zap.Error(err))
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("action failed", zap.String("action", action), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// IdempotencyStore remembers report responses by Idempotency-Key
type IdempotencyStore struct {
	seen map[string]ReportResponse
	mu   sync.RWMutex
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		seen: make(map[string]ReportResponse),
	}
}

// Get returns the stored response for key
func (s *IdempotencyStore) Get(key string) (ReportResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp, ok := s.seen[key]
	return resp, ok
}

// Put records the response for key
func (s *IdempotencyStore) Put(key string, resp ReportResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = resp
}
