package api

import (
	"context"
	"net/http"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// Server represents the HTTP control-plane server in front of the Engine.
type Server struct {
	registry   *Registry
	handlers   *Handlers
	httpServer *http.Server
}

// NewServer creates a new Server instance. store and engine are shared with
// the rest of the process (cmd/engine-server wires them from the same
// sqlite-backed ProjectStore and Engine used by the CLI).
func NewServer(addr string, store contracts.ProjectStore, engine contracts.Engine) *Server {
	registry := NewRegistry()
	handlers := NewHandlers(store, engine, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/projects", handlers.HandleStartProject)
	mux.HandleFunc("GET /api/v1/projects/{id}", handlers.HandleGetStatus)
	mux.HandleFunc("POST /api/v1/projects/{id}/abort", handlers.HandleAbort)
	mux.HandleFunc("POST /api/v1/projects/{id}/pause", handlers.HandlePause)
	mux.HandleFunc("POST /api/v1/projects/{id}/resume", handlers.HandleResume)

	return &Server{
		registry: registry,
		handlers: handlers,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start starts the HTTP server. Blocks until the server is stopped or an
// error occurs.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server, waiting for in-flight project
// executions to observe cancellation before closing the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, id := range s.registry.RunningIDs() {
		s.handlers.engine.Cancel(id, "server shutting down")
	}

	if deadline, ok := ctx.Deadline(); ok {
		waitTimeout := time.Until(deadline) / 2
		if waitTimeout > 0 {
			s.registry.WaitAll(waitTimeout)
		}
	}

	return s.httpServer.Shutdown(ctx)
}

// Registry returns the Registry for testing purposes.
func (s *Server) Registry() *Registry { return s.registry }

// Handlers returns the Handlers for testing purposes.
func (s *Server) Handlers() *Handlers { return s.handlers }
