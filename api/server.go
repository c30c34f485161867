// Package api exposes the HTTP surface of the service: people, research
// structures and source records, plus health and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/health"
	"github.com/CRISalid-esr/crisalid-ikg/metric"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

const shutdownTimeout = 10 * time.Second

// PeopleService is the people reconciliation used by the routes
type PeopleService interface {
	CreatePerson(ctx context.Context, p model.Person) (model.Person, error)
	UpdatePerson(ctx context.Context, p model.Person) (model.Person, error)
	GetPerson(ctx context.Context, uid string) (model.Person, error)
}

// StructureService is the research structure reconciliation used by the routes
type StructureService interface {
	CreateStructure(ctx context.Context, rs model.ResearchStructure) (model.ResearchStructure, error)
	UpdateStructure(ctx context.Context, rs model.ResearchStructure) (model.ResearchStructure, error)
	GetStructure(ctx context.Context, uid string) (model.ResearchStructure, error)
}

// SourceRecordReader loads source records
type SourceRecordReader interface {
	GetSourceRecord(ctx context.Context, uid string) (model.SourceRecord, error)
}

// Dependencies are the collaborators of the routes. Health and Metrics may
// be nil, in which case their routes are not mounted.
type Dependencies struct {
	People        PeopleService
	Structures    StructureService
	SourceRecords SourceRecordReader
	Health        *health.Monitor
	Metrics       *metric.MetricsRegistry
	Logger        *slog.Logger
}

// Server serves the API
type Server struct {
	addr   string
	engine *gin.Engine
	logger *slog.Logger
}

// NewServer builds the gin engine with every route mounted under cfg.BasePath()
func NewServer(cfg config.APIConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	h := &handlers{deps: deps, logger: logger}
	base := engine.Group(cfg.BasePath())
	{
		base.POST("/person", h.createPerson)
		base.PUT("/person", h.updatePerson)
		base.GET("/person/:uid", h.getPerson)

		base.POST("/organizations/research-structure", h.createStructure)
		base.PUT("/organizations/research-structure", h.updateStructure)
		base.GET("/organizations/research-structure/:uid", h.getStructure)

		base.GET("/source-records/:uid", h.getSourceRecord)

		if deps.Health != nil {
			base.GET("/health", h.health)
		}
		if deps.Metrics != nil {
			base.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
		}
	}

	return &Server{addr: cfg.Addr, engine: engine, logger: logger}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens until ctx is done, then shuts the server down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.WrapFatal(err, "Server", "Run", "listen on "+s.addr)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WrapTransient(err, "Server", "Run", "shutdown")
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
