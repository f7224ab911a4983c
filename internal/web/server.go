// Package web wires the HTTP API of the attendance service.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/capture"
	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/database"
	"github.com/facegate/facegate/internal/identify"
	"github.com/facegate/facegate/internal/session"
	"github.com/facegate/facegate/internal/verify"
	"github.com/facegate/facegate/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server represents the web server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server

	store    database.Store
	registry *session.Registry
	engine   *verify.Engine
	guard    *capture.Guard
	index    *identify.Index
	issuer   *auth.TokenIssuer
}

// NewServer creates a new web server around the already-constructed service
// dependencies.
func NewServer(
	cfg *config.Config,
	store database.Store,
	registry *session.Registry,
	engine *verify.Engine,
	index *identify.Index,
) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:   cfg,
		router:   r,
		store:    store,
		registry: registry,
		engine:   engine,
		guard:    capture.NewGuard(),
		index:    index,
		issuer:   auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
	}

	// Middleware stack.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for frame streams
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
