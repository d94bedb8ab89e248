package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Jorgeperez0825/botnext/internal/engine"
	"github.com/Jorgeperez0825/botnext/internal/events"
)

// Options configures the dashboard server.
type Options struct {
	Engine            engine.Service
	Bus               *events.Bus
	Logger            logrus.FieldLogger
	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string
	RequestsPerSecond float64
	RequestTimeout    time.Duration
	Version           string
}

// Server wires HTTP endpoints around the engine read model and the event bus.
type Server struct {
	Router *gin.Engine
	Engine engine.Service
	Bus    *events.Bus
	Logger logrus.FieldLogger

	jwtSecret         string
	adminUser         string
	adminPasswordHash string
	version           string
	started           time.Time

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(opts.Logger))
	r.Use(NewRateLimiter(opts.RequestsPerSecond, int(opts.RequestsPerSecond*5)).Middleware())
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:            r,
		Engine:            opts.Engine,
		Bus:               opts.Bus,
		Logger:            opts.Logger,
		jwtSecret:         opts.JWTSecret,
		adminUser:         opts.AdminUser,
		adminPasswordHash: opts.AdminPasswordHash,
		version:           opts.Version,
		started:           time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/trades/recent", s.getRecentTrades)
		api.GET("/signals/recent", s.getRecentSignals)
		api.GET("/pairs", s.getPairs)
		api.GET("/performance", s.getPerformance)
		api.GET("/prices", s.getPrices)
		api.GET("/metrics", s.getMetrics)

		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.jwtSecret))
		{
			protected.POST("/bot/pause", s.pauseBot)
			protected.POST("/bot/resume", s.resumeBot)
			protected.POST("/pairs/:symbol/evaluate", s.evaluatePair)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.mu.Unlock()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops a running server; a later Start returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
