// Package opsserver exposes a narrow, read-only HTTP surface over the
// resilience core's current mode, component health, and gate state — for
// operator dashboards and alerting, never for placing or managing trades.
package opsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/sentience-labs/resilience-core/internal/degradation"
)

// StateReader is the read-only surface the ops server needs from the
// system state service.
type StateReader interface {
	Snapshot() degradation.StateSnapshot
	History() []degradation.ModeTransition
}

// GateReader is the read-only surface the ops server needs from the
// trading gate.
type GateReader interface {
	Mode() degradation.SystemMode
	Stage() *degradation.RecoveryStage
	CheckPermission(action degradation.ActionType) degradation.PermissionResult
}

// Config configures the ops server.
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	State      StateReader
	Gate       GateReader
}

// Server is the ops-surface HTTP server.
type Server struct {
	router *chi.Mux
	http   *http.Server
	log    zerolog.Logger
	state  StateReader
	gate   GateReader
}

// New constructs the ops server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "ops_server").Logger(),
		state:  cfg.State,
		gate:   cfg.Gate,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/state", s.handleState)
	s.router.Get("/gate", s.handleGate)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// Start begins serving in the background. Call Stop to shut down cleanly.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("ops server stopped unexpectedly")
		}
	}()
	s.log.Info().Str("addr", s.http.Addr).Msg("ops server listening")
}

// Stop gracefully shuts down the ops server.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snapshot := s.state.Snapshot()
	components := make(map[string]string, len(snapshot.Components))
	for source, status := range snapshot.Components {
		components[string(source)] = status.Level.String()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"Mode":       snapshot.Mode.String(),
		"Stage":      snapshot.Stage,
		"Components": components,
	})
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	mode := s.gate.Mode()
	stage := s.gate.Stage()
	permissions := make(map[string]degradation.PermissionResult)
	for _, action := range []degradation.ActionType{
		degradation.ActionOpen, degradation.ActionSend, degradation.ActionAmend,
		degradation.ActionCancel, degradation.ActionReduceOnly, degradation.ActionQuery,
	} {
		permissions[string(action)] = s.gate.CheckPermission(action)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"mode":        mode.String(),
		"stage":       stage,
		"permissions": permissions,
	})
}
