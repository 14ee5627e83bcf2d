// Package server exposes a small local HTTP facade over the image index
// and service health, plus a Prometheus metrics endpoint.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"aictl/internal/health"
	"aictl/internal/imageindex"
	"aictl/internal/logging"
	"aictl/internal/utils"
	"aictl/internal/version"
)

// Searcher is the slice of the image index the facade needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts imageindex.SearchOptions) ([]imageindex.Match, error)
	Count() int
}

// Config wires the server.
type Config struct {
	Addr     string
	Searcher Searcher // optional, /api/search returns 503 without it
	Health   *health.Registry
	Logger   logging.Logger
	Debug    bool
}

// Server is the HTTP facade.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	searcher   Searcher
	healthReg  *health.Registry
	metrics    *Metrics
	logger     logging.Logger
	startTime  time.Time
}

// New builds the server and its routes.
func New(config Config) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := config.Logger
	if logging.IsNil(logger) {
		logger = utils.NewComponentLogger("server")
	}
	healthReg := config.Health
	if healthReg == nil {
		healthReg = health.NewRegistry()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		engine:    engine,
		searcher:  config.Searcher,
		healthReg: healthReg,
		metrics:   NewMetrics(),
		logger:    logger,
		startTime: time.Now(),
	}

	engine.Use(s.metrics.Middleware())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/search", s.handleSearch)
	s.engine.GET("/metrics", s.metrics.Handler())
}

type healthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Uptime   string                 `json:"uptime"`
	Services []health.ServiceHealth `json:"services"`
}

func (s *Server) handleHealth(c *gin.Context) {
	services := s.healthReg.All()

	status := "ok"
	for _, svc := range services {
		if svc.State == health.StateDown {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:   status,
		Version:  version.Version,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Services: services,
	})
}

type searchResponse struct {
	Query   string             `json:"query"`
	Count   int                `json:"count"`
	Results []imageindex.Match `json:"results"`
}

func (s *Server) handleSearch(c *gin.Context) {
	if s.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image index not configured"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	opts := imageindex.SearchOptions{
		TopK:   10,
		Person: c.Query("person"),
		Scene:  c.Query("scene"),
	}
	if raw := c.Query("top"); raw != "" {
		top, err := strconv.Atoi(raw)
		if err != nil || top <= 0 || top > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top must be an integer between 1 and 100"})
			return
		}
		opts.TopK = top
	}

	matches, err := s.searcher.Search(c.Request.Context(), query, opts)
	if err != nil {
		s.logger.Error("Search failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	s.metrics.observeSearch(len(matches))

	if matches == nil {
		matches = []imageindex.Match{}
	}
	c.JSON(http.StatusOK, searchResponse{Query: query, Count: len(matches), Results: matches})
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("Serving on http://%s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
