package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chadmayfield/waterqd/internal/query"
	"github.com/chadmayfield/waterqd/internal/store"
)

// Options tunes the API server.
type Options struct {
	CORSOrigin   string // empty disables CORS headers
	DefaultLimit int    // nearest-query limit when the request omits one
	MaxLimit     int    // upper clamp for the nearest-query limit; 0 means none
}

// Server is the REST API server.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
}

// NewServer creates a new API server with all routes registered.
func NewServer(s store.Store, logger *slog.Logger, opts Options) *Server {
	h := &Handlers{
		Store:        s,
		Finder:       query.NewFinder(s),
		Logger:       logger,
		StartTime:    time.Now(),
		DefaultLimit: opts.DefaultLimit,
		MaxLimit:     opts.MaxLimit,
	}

	srv := &http.Server{
		Handler:      h.Routes(opts.CORSOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, handlers: h}
}

// Routes returns the mux with every endpoint and the middleware chain applied.
func (h *Handlers) Routes(corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("POST /api/v1/observations", h.CreateObservation)
	mux.HandleFunc("GET /api/v1/observations", h.ListObservations)
	mux.HandleFunc("GET /api/v1/observations/closest", h.ClosestObservations)
	mux.HandleFunc("GET /api/v1/observations/filter", h.FilterObservations)
	mux.HandleFunc("GET /api/v1/observations/{id}", h.GetObservation)
	mux.HandleFunc("PUT /api/v1/observations/{id}", h.UpdateObservation)
	mux.HandleFunc("DELETE /api/v1/observations/{id}", h.DeleteObservation)

	// Apply middleware (outermost runs first).
	var handler http.Handler = mux
	handler = ContentType(handler)
	handler = SecurityHeaders(handler)
	handler = CORS(corsOrigin)(handler)
	handler = Logger(handler)
	handler = RequestID(handler)
	handler = Recovery(handler)
	return handler
}

// ListenAndServe starts the HTTP server. Blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer.Addr = addr
	slog.Info("api server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetVersion sets the version string for the health endpoint.
func (s *Server) SetVersion(v string) { s.handlers.Version = v }

// SetStorageInfo sets storage driver and path for the health endpoint.
func (s *Server) SetStorageInfo(driver, path string) {
	s.handlers.StorageDriver = driver
	s.handlers.StoragePath = path
}
