// Package server wires the gin router and owns the HTTP server lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/api/middleware"
	"github.com/chainfund/custodian/internal/api/rest"
	"github.com/chainfund/custodian/internal/ledger"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/providers/alchemy"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/withdraw"
)

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server wraps the HTTP server
type Server struct {
	config      Config
	store       store.Store
	ledger      *ledger.Service
	coordinator *withdraw.Coordinator
	alchemy     alchemy.Client
	httpServer  *http.Server
}

// New creates a new API server
func New(cfg Config, st store.Store, ledgerSvc *ledger.Service, coordinator *withdraw.Coordinator, alchemyClient alchemy.Client) *Server {
	return &Server{
		config:      cfg,
		store:       st,
		ledger:      ledgerSvc,
		coordinator: coordinator,
		alchemy:     alchemyClient,
	}
}

// Start initializes and starts the HTTP server. It blocks until the server
// stops.
func (s *Server) Start() error {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	restHandler := rest.NewHandler(s.ledger, s.coordinator, s.store, s.alchemy)
	rest.SetupRoutes(router, restHandler)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server", zap.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	return nil
}
