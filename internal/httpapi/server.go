// Package httpapi exposes the engine's six-endpoint HTTP surface over
// echo: an *echo.Echo built once, routes registered in one place, with
// permissive CORS and recover middleware from echo/middleware.
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ragmemory/internal/container"
	"ragmemory/internal/ingest"
	"ragmemory/internal/model"
	"ragmemory/internal/persistence/pg"
	"ragmemory/internal/persistence/snapshot"
	"ragmemory/internal/query"
)

// ingester is the narrow surface both ingest.Orchestrator and
// ingest.RelationalOrchestrator satisfy.
type ingester interface {
	Ingest(ctx context.Context, tag string, sessions []model.Session) ([]string, error)
}

// Server wires the pipeline, ingester, and whichever backend is active
// into the HTTP surface.
type Server struct {
	echo *echo.Echo

	pipeline *query.Pipeline
	ingest   ingester

	registry *container.Registry // nil when the relational backend is active
	snap     *snapshot.Backend   // nil when the relational backend is active
	pgBackend *pg.Backend        // nil when the in-memory backend is active
}

// NewServer constructs the HTTP surface. Exactly one of (registry, snap)
// or pgBackend should be non-nil, matching the backend ing was built
// against.
func NewServer(pipeline *query.Pipeline, ing ingester, registry *container.Registry, snap *snapshot.Backend, pgBackend *pg.Backend) *Server {
	s := &Server{
		pipeline:  pipeline,
		ingest:    ing,
		registry:  registry,
		snap:      snap,
		pgBackend: pgBackend,
	}
	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler to pass to http.Server.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/containers", s.handleContainers)
	s.echo.POST("/ingest", s.handleIngest)
	s.echo.POST("/search", s.handleSearch)
	s.echo.POST("/store", s.handleStore)
	s.echo.DELETE("/clear/:tag", s.handleClear)
}
