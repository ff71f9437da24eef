// Package web exposes a trained face database over HTTP: model metadata,
// recognition of uploaded images, and top-k neighbor queries.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/eigenfaces/internal/facedb"
	"github.com/kozaktomas/eigenfaces/internal/imageset"
)

// Server serves recognition requests against one loaded database. The
// database is read-only once the server starts, so concurrent requests
// are safe without locking.
type Server struct {
	db         *facedb.Database
	index      *facedb.Index
	metric     facedb.Metric
	imgCfg     imageset.Config
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer wires the routes and middleware around a loaded database.
func NewServer(db *facedb.Database, metric facedb.Metric, imgCfg imageset.Config, host string, port int) (*Server, error) {
	index, err := db.BuildIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to build neighbor index: %w", err)
	}

	r := chi.NewRouter()
	s := &Server{
		db:     db,
		index:  index,
		metric: metric,
		imgCfg: imgCfg,
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/model", s.handleModel)
	r.Post("/api/recognize", s.handleRecognize)
	r.Post("/api/neighbors", s.handleNeighbors)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
