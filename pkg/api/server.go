// Package api implements the HTTP surface of the workflow service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pixelmuse/pixelmuse/pkg/config"
	"github.com/pixelmuse/pixelmuse/pkg/engine"
	"github.com/pixelmuse/pixelmuse/pkg/graph"
	"github.com/pixelmuse/pixelmuse/pkg/middleware"
	"github.com/pixelmuse/pixelmuse/pkg/nodes"
	"github.com/pixelmuse/pixelmuse/pkg/scheduler"
	"github.com/pixelmuse/pixelmuse/pkg/services"
	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

// Server represents the HTTP API server
type Server struct {
	config    *config.Config
	router    *mux.Router
	server    *http.Server
	store     storage.Provider
	registry  *nodes.Registry
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	accounts  *services.AccountService
	stream    *StreamHub
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, store storage.Provider, registry *nodes.Registry, eng *engine.Engine, sched *scheduler.Scheduler, accounts *services.AccountService) *Server {
	s := &Server{
		config:    cfg,
		router:    mux.NewRouter(),
		store:     store,
		registry:  registry,
		engine:    eng,
		scheduler: sched,
		accounts:  accounts,
		stream:    NewStreamHub(),
	}

	eng.SetPublisher(s.stream)
	s.setupRoutes()
	return s
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.accounts)

	// API router with version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes (no authentication required)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost, http.MethodOptions)

	// The external cron caller authenticates with a shared secret header,
	// not a user token.
	api.HandleFunc("/workflow-schedules/process", s.handleProcessSchedules).Methods(http.MethodPost, http.MethodOptions)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	authenticated.HandleFunc("/accounts/me", s.handleGetCurrentAccount).Methods(http.MethodGet, http.MethodOptions)
	authenticated.HandleFunc("/nodes", s.handleListNodeTypes).Methods(http.MethodGet, http.MethodOptions)

	// Workflow routes
	workflows := authenticated.PathPrefix("/workflows").Subrouter()
	workflows.HandleFunc("", s.handleListWorkflows).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("", s.handleCreateWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/import", s.handleImportWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleGetWorkflow).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleUpdateWorkflow).Methods(http.MethodPut, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete, http.MethodOptions)
	workflows.HandleFunc("/{id}/export", s.handleExportWorkflow).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}/execute", s.handleExecuteWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}/executions", s.handleListExecutions).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}/schedule", s.handleGetWorkflowSchedule).Methods(http.MethodGet, http.MethodOptions)

	// Execution routes
	executions := authenticated.PathPrefix("/workflow-executions").Subrouter()
	executions.HandleFunc("/{id}", s.handleGetExecution).Methods(http.MethodGet, http.MethodOptions)
	executions.HandleFunc("/{id}/stream", s.handleStreamExecution).Methods(http.MethodGet)

	// Schedule routes
	schedules := authenticated.PathPrefix("/workflow-schedules").Subrouter()
	schedules.HandleFunc("", s.handleListSchedules).Methods(http.MethodGet, http.MethodOptions)
	schedules.HandleFunc("", s.handleCreateSchedule).Methods(http.MethodPost, http.MethodOptions)
	schedules.HandleFunc("/{id}", s.handleUpdateSchedule).Methods(http.MethodPut, http.MethodOptions)
	schedules.HandleFunc("/{id}", s.handleDeleteSchedule).Methods(http.MethodDelete, http.MethodOptions)

	// CORS middleware for all routes
	s.router.Use(middleware.CORS)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleCreateAccount handles account creation
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accountID, err := s.accounts.CreateAccount(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve account")
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// handleLogin exchanges credentials for a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	accountID, err := s.accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve account")
		return
	}

	token, err := s.accounts.GenerateToken(account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"user_id": accountID,
	})
}

// handleGetCurrentAccount handles retrieving the current account
func (s *Server) handleGetCurrentAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	account, err := s.accounts.GetAccount(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// handleListNodeTypes returns the node catalog the builder renders its
// palette from.
func (s *Server) handleListNodeTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": s.registry.Definitions(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeGraphError maps a validation or trigger failure to its status code.
func writeGraphError(w http.ResponseWriter, err error) bool {
	var insufficient *engine.InsufficientCreditsError
	switch {
	case errors.Is(err, storage.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "Workflow not found")
	case errors.Is(err, engine.ErrEmptyGraph):
		writeError(w, http.StatusBadRequest, "Workflow graph is empty")
	case errors.Is(err, graph.ErrInvalidGraph):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":     "insufficient credits",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	default:
		return false
	}
	return true
}
