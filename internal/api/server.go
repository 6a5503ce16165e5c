// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lookup-tracker/internal/adapter"
	"github.com/lookup-tracker/internal/models"

	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// TrackerService defines the lookup operations exposed over HTTP.
type TrackerService interface {
	Submit(ctx context.Context, params map[string]string, requester string) (string, error)
	CheckResult(ctx context.Context, searchID string) (json.RawMessage, error)
}

// BalanceService defines the provider balance operation.
type BalanceService interface {
	CheckBalance(ctx context.Context) (*adapter.BalanceResult, error)
}

// JobReader defines read/maintenance access to stored jobs.
type JobReader interface {
	GetByID(ctx context.Context, searchID string) (*models.LookupJob, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	tracker    TrackerService
	balance    BalanceService
	jobs       JobReader
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, tracker TrackerService, balance BalanceService, jobs JobReader) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 60 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		router:  mux.NewRouter(),
		tracker: tracker,
		balance: balance,
		jobs:    jobs,
		config:  config,
	}

	s.setupRoutes()
	s.setupMiddleware()

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/lookups", s.handleSubmitLookup).Methods(http.MethodPost)
	api.HandleFunc("/lookups/{id}", s.handleGetLookup).Methods(http.MethodGet)
	api.HandleFunc("/lookups/{id}/result", s.handleGetResult).Methods(http.MethodGet)
	api.HandleFunc("/balance", s.handleGetBalance).Methods(http.MethodGet)
	api.HandleFunc("/admin/purge", s.handlePurge).Methods(http.MethodPost)
}

func (s *Server) setupMiddleware() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
}

// Router returns the underlying router (used by tests).
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
