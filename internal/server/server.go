// Package server exposes the service over a REST API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldline/geostack/internal/config"
	"github.com/fieldline/geostack/internal/logging"
	"github.com/fieldline/geostack/internal/service"
)

// Server bundles the router and its dependencies.
type Server struct {
	cfg    config.ServerConfig
	svc    *service.Service
	engine *gin.Engine
	log    *slog.Logger
}

// New constructs a server with routes and middleware. gatherer serves
// /metrics; pass nil to disable the endpoint.
func New(cfg config.ServerConfig, svc *service.Service, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{cfg: cfg, svc: svc, engine: engine, log: logging.Component("server")}
	s.registerRoutes(gatherer)
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("listening", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.engine.Group("/api/v1")

	v1.POST("/readings", s.handleSubmitReading)
	v1.GET("/stations", s.handleListStations)
	v1.GET("/stations/:id/buffer", s.handleBufferStatus)
	v1.POST("/stations/:id/process", s.handleProcessBuffer)
	v1.POST("/stations/:id/clear", s.handleClearBuffer)

	v1.POST("/datasets", s.handleCreateDataset)
	v1.GET("/datasets", s.handleListDatasets)
	v1.POST("/datasets/:id/versions", s.handlePublishVersion)
	v1.GET("/datasets/:id/versions", s.handleListVersions)

	v1.POST("/stacks", s.handleCreateStack)
	v1.GET("/stacks", s.handleListStacks)
	v1.GET("/stacks/:id", s.handleGetStack)
	v1.POST("/stacks/:id/items", s.handleAddItem)
	v1.DELETE("/stacks/:id/items/:item_id", s.handleRemoveItem)
	v1.PUT("/stacks/:id/order", s.handleReorder)
	v1.POST("/stacks/:id/generate", s.handleGenerate)
	v1.GET("/stacks/:id/artifact", s.handleArtifact)
}
