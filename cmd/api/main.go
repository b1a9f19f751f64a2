package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/api/server"
	"github.com/chainfund/custodian/internal/config"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/ledger"
	"github.com/chainfund/custodian/internal/logger"
	"github.com/chainfund/custodian/internal/providers/alchemy"
	"github.com/chainfund/custodian/internal/store"
	"github.com/chainfund/custodian/internal/withdraw"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting custodian API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	dataStore := store.NewPGStore(db)

	// Business services
	maxTip := decimal.Zero
	if cfg.Ledger.MaxTipAmount != "" {
		maxTip, err = decimal.NewFromString(cfg.Ledger.MaxTipAmount)
		if err != nil {
			logger.FatalCtx(ctx, "Invalid ledger.max_tip_amount", zap.Error(err))
		}
	}
	ledgerSvc := ledger.NewService(dataStore, maxTip)

	httpClient := adapter.NewHTTPClient(30 * time.Second)
	submitter := withdraw.NewSignerClient(cfg.Signer.URL, httpClient)
	coordinator := withdraw.NewCoordinator(dataStore, submitter)

	alchemyClient := alchemy.NewClient(map[domain.Chain]string{
		domain.ChainEthereum: cfg.Alchemy.EthereumURL,
		domain.ChainPolygon:  cfg.Alchemy.PolygonURL,
	}, cfg.Alchemy.APIKey, httpClient)

	// Create and start server
	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}, dataStore, ledgerSvc, coordinator, alchemyClient)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
