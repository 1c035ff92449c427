// Package server assembles the admission-control core behind a gin API.
package server

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tradegate/tradegate/internal/audit"
	"github.com/tradegate/tradegate/internal/cache"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/decision"
	"github.com/tradegate/tradegate/internal/evaluators"
	"github.com/tradegate/tradegate/internal/health"
	"github.com/tradegate/tradegate/internal/logging"
	"github.com/tradegate/tradegate/internal/middleware"
	"github.com/tradegate/tradegate/internal/monitoring"
	"github.com/tradegate/tradegate/internal/ratelimit"
	"github.com/tradegate/tradegate/internal/resilience"
	"github.com/tradegate/tradegate/internal/venue"
)

// Server wraps the HTTP server and the decision core it fronts.
type Server struct {
	router       *gin.Engine
	orchestrator *decision.Orchestrator
	limiter      *ratelimit.Limiter
	breakers     *resilience.Registry
	caches       *cache.Manager
	monitor      *health.Monitor
	journal      *audit.Journal
	venue        *venue.Client
	stream       *Stream
	logger       *logging.Logger
	config       *config.Config
	metrics      *monitoring.Metrics
}

// NewServer wires every component from configuration.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("initializing tradegate server",
		zap.String("port", cfg.Server.Port),
		zap.String("mode", cfg.Decision.Mode),
	)

	metrics := monitoring.NewMetrics()

	limiter := ratelimit.NewLimiter([]ratelimit.Limit{
		{Name: ratelimit.OrdersPerSecond, MaxUnits: cfg.RateLimit.OrdersPerSecond, Window: time.Second},
		{Name: ratelimit.WeightPerMinute, MaxUnits: cfg.RateLimit.WeightPerMinute, Window: time.Minute},
		{Name: ratelimit.OrdersPerDay, MaxUnits: cfg.RateLimit.OrdersPerDay, Window: 24 * time.Hour},
	})

	breakers := resilience.NewRegistry(resilience.Settings{
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		SuccessThreshold:  cfg.Breaker.SuccessThreshold,
		OpenTimeout:       cfg.Breaker.OpenTimeout,
		HalfOpenMaxProbes: cfg.Breaker.HalfOpenMaxProbes,
		OnStateChange: func(name string, from, to resilience.State) {
			metrics.RecordBreakerTransition(name, from.String(), to.String())
			metrics.RecordBreakerState(name, float64(to))
			logger.Warn("breaker state change",
				zap.String("dependency", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	caches := cache.NewManager(cfg.Cache.MaxSize, cfg.Cache.DefaultTTL)

	monitor := health.NewMonitor(logger,
		health.WithMinHealth(cfg.Health.MinHealthForNormalMode),
		health.WithFlagThreshold(cfg.Health.FailureFlagThreshold),
	)

	journal, err := audit.Open(cfg.Audit.Path, audit.Options{
		MaxSizeMB:   cfg.Audit.MaxSizeMB,
		KeepEntries: cfg.Audit.KeepEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open decision journal: %w", err)
	}

	policy, err := cfg.DecisionPolicy()
	if err != nil {
		journal.Close()
		return nil, err
	}

	venueClient := venue.NewClient(cfg.Venue, cfg.Cache.TickerTTL, cfg.RateLimit.AcquireTimeout, limiter, breakers, caches, metrics, logger)

	orchestrator := decision.NewOrchestrator(
		[]decision.Evaluator{
			evaluators.NewTechnical(),
			evaluators.NewRisk(),
			evaluators.NewTemporal(),
			evaluators.NewHistory(),
		},
		monitor,
		logger,
		decision.Options{
			Mode:             cfg.Decision.Mode,
			EvaluatorTimeout: cfg.Decision.EvaluatorTimeout,
			Policy:           policy,
			Executor:         venueClient,
			Journal:          journal,
			Metrics:          metrics,
		},
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.HTTPLimit.Enabled {
		logger.Info("inbound rate limiting enabled",
			zap.Int("rps", cfg.HTTPLimit.RequestsPerSecond),
			zap.Int("burst", cfg.HTTPLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.HTTPLimit))
	}

	s := &Server{
		router:       router,
		orchestrator: orchestrator,
		limiter:      limiter,
		breakers:     breakers,
		caches:       caches,
		monitor:      monitor,
		journal:      journal,
		venue:        venueClient,
		stream:       NewStream(logger),
		logger:       logger,
		config:       cfg,
		metrics:      metrics,
	}
	s.registerRoutes()

	logger.Info("server initialized")
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/stream", s.stream.HandleConnection)

	v1 := s.router.Group("/v1")
	v1.POST("/decide", s.handleDecide)
	v1.GET("/status", s.handleStatus)
	v1.GET("/decisions/recent", s.handleRecentDecisions)
	v1.POST("/pause", s.handlePause)
	v1.POST("/resume", s.handleResume)
}

// Router exposes the configured engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close releases resources held by the server.
func (s *Server) Close() error {
	s.logger.Info("shutting down server")
	s.stream.Close()
	if err := s.journal.Close(); err != nil {
		s.logger.Error("failed to close journal", zap.Error(err))
		return err
	}
	return nil
}
