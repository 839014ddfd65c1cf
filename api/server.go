// Package api assembles the HTTP server: middleware, health, metrics,
// documentation and the routes of every domain package.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/Aidin1998/talabin/docs"
	"github.com/Aidin1998/talabin/internal/accounts"
	"github.com/Aidin1998/talabin/internal/config"
	"github.com/Aidin1998/talabin/internal/fiat"
	"github.com/Aidin1998/talabin/internal/installments"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/internal/pricing"
	"github.com/Aidin1998/talabin/internal/trading"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/internal/ws"
	"github.com/Aidin1998/talabin/pkg/validation"
)

// Services are the domain services exposed over HTTP. Hub may be nil, which
// disables the price stream.
type Services struct {
	Verifier     *userauth.Verifier
	Accounts     *accounts.Service
	Ledger       *ledger.Service
	Oracle       *pricing.Oracle
	Engine       *trading.Engine
	Fiat         *fiat.Service
	Installments *installments.Service
	Hub          *ws.Hub
}

// Server represents the API server
type Server struct {
	router   *gin.Engine
	logger   *zap.Logger
	cfg      config.ServerConfig
	services Services
	http     *http.Server
}

var registerValidators sync.Once

// NewServer creates a new API server with every route registered
func NewServer(logger *zap.Logger, cfg config.ServerConfig, serviceName string, services Services) (*Server, error) {
	registerValidators.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			validation.RegisterCustomValidators(v)
		}
	})

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(serviceName))
	router.Use(requestTrace(), securityHeaders(), httpMetrics())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	server := &Server{
		router:   router,
		logger:   logger,
		cfg:      cfg,
		services: services,
		http: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
	if err := server.registerRoutes(); err != nil {
		return nil, err
	}
	return server, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Trace-ID"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves HTTP until Shutdown is called. It returns nil after a
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() error {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	limit, err := rateLimit(s.cfg.RateLimit, s.logger)
	if err != nil {
		return err
	}
	v1 := s.router.Group("/api/v1", limit)
	v1.GET("/health", s.healthCheck)

	user := v1.Group("", userauth.RequireAuth(s.services.Verifier))
	admin := v1.Group("/admin", userauth.RequireAuth(s.services.Verifier), userauth.RequireStaff(s.services.Accounts))

	pricing.Routes(v1, admin, pricing.NewHandler(s.services.Oracle, s.services.Hub, s.logger))
	accounts.Routes(user, admin, accounts.NewHandler(s.services.Accounts, s.logger))
	ledger.Routes(user, ledger.NewHandler(s.services.Ledger))
	trading.Routes(user, trading.NewHandler(s.services.Engine, s.logger))
	fiat.Routes(user, admin, fiat.NewHandler(s.services.Fiat, s.logger))
	installments.Routes(user, admin, installments.NewHandler(s.services.Installments, s.logger))
	return nil
}

// healthCheck reports whether the database answers.
func (s *Server) healthCheck(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if sqlDB, err := s.services.Ledger.DB().DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
	})
}
